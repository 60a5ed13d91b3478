package comprehensive

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/itohio/deltacal/pkg/calibration"
	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/rctx"
)

// TwelvePoints returns the 12 depth-map test points of spec.md 4.G, at
// 30-degree increments around the probe-radius circle. Indices 0, 4 and
// 8 coincide with the tower-base points of calibration.TowerPoints (the
// Z, Y and X towers respectively, given the 90/210/330-degree tower
// layout); the remaining 9 points satisfy the "diametrically opposite"
// and "midpoint" descriptions of spec.md 4.G by the geometry's own
// 3-fold symmetry, without needing separate enumeration.
func TwelvePoints(probeRadius float32) [12]calibration.Point {
	var pts [12]calibration.Point
	for i := 0; i < 12; i++ {
		pts[i] = pointAtDegrees(probeRadius, float32(90-30*i))
	}
	return pts
}

// DepthMapResult reports a full 12-point depth map relative to a center
// probe (spec.md 4.G, "origin_steps − steps").
type DepthMapResult struct {
	OriginSteps int64
	DeviationMM [12]float32
	BestMM      float32
	WorstMM     float32
}

// AcquireDepthMap probes the center, then each of the 12 points, storing
// each deviation on the strategy's bus for later strategies/status
// reporting (spec.md 3, "Bus" ambient data model).
func (s *Strategy) AcquireDepthMap(ctx *rctx.Context, idle probe.Idle) (DepthMapResult, error) {
	origin, err := s.prober.ProbeAt(ctx, idle, 0, 0)
	if err != nil && !isNotTriggered(err) {
		return DepthMapResult{}, fmt.Errorf("comprehensive: probe center: %w", err)
	}

	points := TwelvePoints(s.cfg.ProbeRadius)
	var result DepthMapResult
	result.OriginSteps = origin

	for i, p := range points {
		steps, err := s.prober.ProbeAt(ctx, idle, p.X, p.Y)
		if err != nil && !isNotTriggered(err) {
			return DepthMapResult{}, fmt.Errorf("comprehensive: probe point %d: %w", i, err)
		}
		deviationSteps := origin - steps
		mm := float32(deviationSteps) / s.cfg.StepsPerMMZ
		result.DeviationMM[i] = mm
		s.bus.Set(fmt.Sprintf("depthmap.%d", i), mm)

		if i == 0 || mm < result.BestMM {
			result.BestMM = mm
		}
		if i == 0 || mm > result.WorstMM {
			result.WorstMM = mm
		}
	}
	return result, nil
}

func pointAtDegrees(radius, degrees float32) calibration.Point {
	rad := degrees * (math32.Pi / 180)
	return calibration.Point{X: radius * math32.Cos(rad), Y: radius * math32.Sin(rad)}
}

func isNotTriggered(err error) bool {
	return errors.Is(err, probe.ErrNotTriggered)
}
