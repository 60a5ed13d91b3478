package comprehensive

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/itohio/deltacal/pkg/calibration"
	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/rctx"
)

// SegmentResult reports the probed depths along a segmented line plus
// its two perpendicular-offset points (spec.md 4.G).
type SegmentResult struct {
	Points   []calibration.Point
	DepthsMM []float32
}

// ProbeSegmentedLine probes N+1 points evenly spaced along a-to-b, plus
// two points offset perpendicular to the line's midpoint by one segment
// length (spec.md 4.G, "surface analysis along tower-to-opposite
// lines").
func (s *Strategy) ProbeSegmentedLine(ctx *rctx.Context, idle probe.Idle, a, b calibration.Point, segments int) (SegmentResult, error) {
	if segments < 1 {
		segments = 1
	}

	points := make([]calibration.Point, 0, segments+3)
	for i := 0; i <= segments; i++ {
		t := float32(i) / float32(segments)
		points = append(points, lerp(a, b, t))
	}

	dx, dy := b.X-a.X, b.Y-a.Y
	length := math32.Sqrt(dx*dx + dy*dy)
	segLen := length / float32(segments)
	var ux, uy float32
	if length > 0 {
		ux, uy = -dy/length, dx/length
	}
	mid := lerp(a, b, 0.5)
	points = append(points,
		calibration.Point{X: mid.X + ux*segLen, Y: mid.Y + uy*segLen},
		calibration.Point{X: mid.X - ux*segLen, Y: mid.Y - uy*segLen},
	)

	depths := make([]float32, len(points))
	for i, p := range points {
		d, err := s.prober.ProbeDistance(ctx, idle, p.X, p.Y)
		if err != nil {
			return SegmentResult{}, fmt.Errorf("comprehensive: segmented line point %d: %w", i, err)
		}
		depths[i] = d
	}

	return SegmentResult{Points: points, DepthsMM: depths}, nil
}

func lerp(a, b calibration.Point, t float32) calibration.Point {
	return calibration.Point{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
	}
}
