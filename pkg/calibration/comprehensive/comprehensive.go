// Package comprehensive implements the Comprehensive Strategy of
// spec.md 4.G: the probe repeatability test, the 12-point bed depth map,
// find-bed-center-height, the segmented-line probe, and the open-ended
// heuristic surface-calibration loop.
package comprehensive

import (
	"github.com/itohio/deltacal/pkg/bus"
	"github.com/itohio/deltacal/pkg/calibration"
	"github.com/itohio/deltacal/pkg/geom"
	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/rctx"
)

// Prober is the move-probe-return port the strategy needs: ProbeDistance
// for mm-scale depth comparisons, ProbeAt for the step-scale checks the
// repeatability test and depth map use directly (spec.md 4.G, "reject
// samples > 50 000 steps").
type Prober interface {
	calibration.Prober
	ProbeAt(ctx *rctx.Context, idle probe.Idle, x, y float32) (int64, error)
}

// Config parameterizes a Strategy.
type Config struct {
	ProbeRadius float32
	StepsPerMMZ float32
	// ProbeOffsetZ is folded into find_bed_center_height's bed_height
	// computation (spec.md 4.G).
	ProbeOffsetZ float32
	// EccentricityFeedrate is the fast feedrate (mm/min) used for the
	// repeatability test's eccentricity excursion moves.
	EccentricityFeedrate float32
}

// Strategy is the Comprehensive Strategy.
type Strategy struct {
	prober   Prober
	geometry *geom.Facade
	bus      *bus.Bus
	cfg      Config
}

// New builds a Strategy probing via prober, adjusting geometry through
// geometry, and persisting depth-map/bed-height scalars on b.
func New(prober Prober, geometry *geom.Facade, b *bus.Bus, cfg Config) *Strategy {
	if cfg.EccentricityFeedrate <= 0 {
		cfg.EccentricityFeedrate = 3000
	}
	return &Strategy{prober: prober, geometry: geometry, bus: b, cfg: cfg}
}

// Code names the G-code this strategy primarily answers to, for status-line
// prefixing; the comprehensive strategy's primary command
// is G29, with G31 driving the heuristic loop.
func (s *Strategy) Code() string { return "G29" }
