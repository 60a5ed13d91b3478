// Package radius implements the Delta-Radius Strategy of spec.md 4.F:
// comparing a center probe against the mean of the three tower-base
// probes and nudging delta_radius to close the gap.
package radius

import (
	"fmt"

	"github.com/itohio/deltacal/pkg/calibration"
	"github.com/itohio/deltacal/pkg/geom"
	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/rctx"
)

// DefaultTarget is the default convergence tolerance in mm (spec.md 4.F).
const DefaultTarget float32 = 0.03

// MaxIterations bounds the loop (spec.md 4.F, "≤10 iterations").
const MaxIterations = 10

// Gain scales the measured center/rim difference into a delta_radius
// adjustment (spec.md 4.F, "delta_radius += d · 2.5").
const Gain float32 = 2.5

// Config parameterizes a Strategy run.
type Config struct {
	ProbeRadius float32
	Target      float32 // 0 selects DefaultTarget
}

// Result reports the outcome of a Run.
type Result struct {
	Iterations  int
	Deviation   float32 // mm, |center_depth - mean(tower_base_depths)| at the final iteration
	DeltaRadius float32
}

// Strategy is the Delta-Radius Strategy.
type Strategy struct {
	prober   calibration.Prober
	geometry *geom.Facade
	cfg      Config
}

// New builds a Strategy probing via prober and adjusting delta_radius
// through geometry.
func New(prober calibration.Prober, geometry *geom.Facade, cfg Config) *Strategy {
	if cfg.Target <= 0 {
		cfg.Target = DefaultTarget
	}
	return &Strategy{prober: prober, geometry: geometry, cfg: cfg}
}

// Code names the status-line prefix this pass reports under ("[DR]" in
// G32's output).
func (s *Strategy) Code() string { return "DR" }

// Run executes the delta-radius loop of spec.md 4.F.
func (s *Strategy) Run(ctx *rctx.Context, idle probe.Idle) (Result, error) {
	points := calibration.TowerPoints(s.cfg.ProbeRadius)
	var deviation, deltaRadius float32

	for iter := 0; iter < MaxIterations; iter++ {
		centerMM, err := s.prober.ProbeDistance(ctx, idle, 0, 0)
		if err != nil {
			return Result{}, fmt.Errorf("radius: probe center: %w", err)
		}

		var sum float32
		for i, p := range points {
			d, err := s.prober.ProbeDistance(ctx, idle, p.X, p.Y)
			if err != nil {
				return Result{}, fmt.Errorf("radius: probe tower %d: %w", i, err)
			}
			sum += d
		}
		mean := sum / float32(len(points))

		deviation = centerMM - mean
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation <= s.cfg.Target {
			deltaRadius, err = s.geometry.Get(geom.ParamDeltaRadius)
			if err != nil {
				return Result{}, fmt.Errorf("radius: read delta_radius: %w", err)
			}
			return Result{Iterations: iter + 1, Deviation: deviation, DeltaRadius: deltaRadius}, nil
		}

		current, err := s.geometry.Get(geom.ParamDeltaRadius)
		if err != nil {
			return Result{}, fmt.Errorf("radius: read delta_radius: %w", err)
		}
		deltaRadius = current + (centerMM-mean)*Gain
		if err := s.geometry.Set(geom.ParamDeltaRadius, deltaRadius); err != nil {
			return Result{}, fmt.Errorf("radius: write delta_radius: %w", err)
		}
	}

	return Result{Iterations: MaxIterations, Deviation: deviation, DeltaRadius: deltaRadius}, calibration.ErrNonconvergence
}
