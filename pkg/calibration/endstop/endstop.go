// Package endstop implements the Endstop-Trim Strategy of spec.md 4.E:
// iterative per-tower trim adjustment driving the three tower-base probe
// depths to within a target tolerance of one another.
package endstop

import (
	"fmt"

	"github.com/itohio/deltacal/pkg/calibration"
	"github.com/itohio/deltacal/pkg/geom"
	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/rctx"
)

// DefaultTarget is the default maximum trim deviation, in mm, at which
// the strategy declares convergence (spec.md 4.E).
const DefaultTarget float32 = 0.03

// InitialTrimScale is the starting per-iteration trim gain (spec.md 4.E).
const InitialTrimScale float32 = 1.3

// MaxIterations bounds the trim loop (spec.md 4.E, "Retry up to 20
// iterations").
const MaxIterations = 20

// gimbalLockDamping is the factor trimscale is multiplied by when the
// deviation fails to improve between iterations (spec.md 4.E, "gimbal
// lock avoidance").
const gimbalLockDamping float32 = 0.9

// gimbalLockFloor is the minimum trimscale the damping is allowed to
// reduce toward; below trimscale*0.95 < 0.9 damping stops being applied.
const gimbalLockFloor float32 = 0.9

// gimbalLockGuardScale is the factor applied to trimscale when checking
// against gimbalLockFloor, distinct from gimbalLockDamping itself
// (spec.md 4.E, "trimscale*0.95 >= 0.9").
const gimbalLockGuardScale float32 = 0.95

// Config parameterizes a Strategy run.
type Config struct {
	// ProbeRadius is the radius (mm) of the circle the three tower-base
	// test points lie on.
	ProbeRadius float32
	// Target is the convergence tolerance in mm; 0 selects DefaultTarget.
	Target float32
	// Keep, if true, starts from the trims already on the bus instead of
	// resetting all three to zero (spec.md 4.E, "keep" mode).
	Keep bool
}

// Result reports the outcome of a Run.
type Result struct {
	Iterations int
	Deviation  float32 // mm, max(depth)-min(depth) at the final iteration
	Trims      [3]float32
}

// Strategy is the Endstop-Trim Strategy.
type Strategy struct {
	prober   calibration.Prober
	geometry *geom.Facade
	cfg      Config
}

// New builds a Strategy probing via prober and adjusting trims through
// geometry.
func New(prober calibration.Prober, geometry *geom.Facade, cfg Config) *Strategy {
	if cfg.Target <= 0 {
		cfg.Target = DefaultTarget
	}
	return &Strategy{prober: prober, geometry: geometry, cfg: cfg}
}

// Code names the status-line prefix this pass reports under ("[ES]" in
// G32's output), matching the config section it owns.
func (s *Strategy) Code() string { return "ES" }

// Run executes the endstop-trim loop of spec.md 4.E.
func (s *Strategy) Run(ctx *rctx.Context, idle probe.Idle) (Result, error) {
	if !s.cfg.Keep {
		for i := 0; i < 3; i++ {
			if err := s.geometry.SetTrim(i, 0); err != nil {
				return Result{}, fmt.Errorf("endstop: reset trim: %w", err)
			}
		}
	}

	points := calibration.TowerPoints(s.cfg.ProbeRadius)
	trimscale := float32(InitialTrimScale)
	previousDeviation := float32(1 << 30)

	var depths [3]float32
	var deviation float32

	for iter := 0; iter < MaxIterations; iter++ {
		for i, p := range points {
			d, err := s.prober.ProbeDistance(ctx, idle, p.X, p.Y)
			if err != nil {
				return Result{}, fmt.Errorf("endstop: probe tower %d: %w", i, err)
			}
			depths[i] = d
		}

		min, max := depths[0], depths[0]
		for _, d := range depths[1:] {
			if d < min {
				min = d
			}
			if d > max {
				max = d
			}
		}
		deviation = max - min

		if deviation <= s.cfg.Target {
			if err := s.geometry.NormalizeTrim(); err != nil {
				return Result{}, fmt.Errorf("endstop: normalize trim: %w", err)
			}
			var trims [3]float32
			for i := range trims {
				trims[i] = s.geometry.Trim(i)
			}
			return Result{Iterations: iter + 1, Deviation: deviation, Trims: trims}, nil
		}

		for i, d := range depths {
			adjusted := s.geometry.Trim(i) + (min-d)*trimscale
			if err := s.geometry.SetTrim(i, adjusted); err != nil {
				return Result{}, fmt.Errorf("endstop: set trim %d: %w", i, err)
			}
		}

		if deviation >= previousDeviation && trimscale*gimbalLockGuardScale >= gimbalLockFloor {
			trimscale *= gimbalLockDamping
		}
		previousDeviation = deviation
	}

	var trims [3]float32
	for i := range trims {
		trims[i] = s.geometry.Trim(i)
	}
	return Result{Iterations: MaxIterations, Deviation: deviation, Trims: trims}, calibration.ErrNonconvergence
}
