package comprehensive

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/itohio/deltacal/pkg/calibration"
	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/rctx"
)

// EccentricityRadius is the excursion radius the repeatability test
// moves to before each center probe, hardcoded regardless of the
// configured probe_radius (spec.md 8's Open Question resolution:
// "preserve this behavior literally").
const EccentricityRadius float32 = 10

// MaxSamples bounds the repeatability test's sample count (spec.md 3,
// "nSamples ≤ 30").
const MaxSamples = 30

// OverrunStepThreshold flags a sample as evidence of a misconfigured
// probe height (spec.md 4.G, "Reject samples > 50 000 steps").
const OverrunStepThreshold = 50000

// maxRejectionsPerSample bounds retries of a single rejected sample
// before giving up with ErrNonconvergence.
const maxRejectionsPerSample = 5

// ErrTooManySamples is returned when the requested sample count exceeds
// MaxSamples.
var ErrTooManySamples = errors.New("comprehensive: sample count exceeds maximum")

// RepeatabilityConfig parameterizes RunRepeatability.
type RepeatabilityConfig struct {
	// Samples is the requested sample count; 0 selects 10.
	Samples int
	// DisableEccentricity skips the excursion move before each sample
	// (spec.md 6, G29's "E=disable eccentricity").
	DisableEccentricity bool
}

// RepeatabilityResult reports the classification of a G29 run.
type RepeatabilityResult struct {
	Samples        []int64
	MeanSteps      float32
	RangeMM        float32
	StdDevMM       float32
	Classification string
}

// RunRepeatability implements the repeatability test of spec.md 4.G.
func (s *Strategy) RunRepeatability(ctx *rctx.Context, idle probe.Idle, cfg RepeatabilityConfig) (RepeatabilityResult, error) {
	n := cfg.Samples
	if n <= 0 {
		n = 10
	}
	if n > MaxSamples {
		return RepeatabilityResult{}, fmt.Errorf("%w: got %d, max %d", ErrTooManySamples, n, MaxSamples)
	}

	samples := make([]int64, 0, n)
	for len(samples) < n {
		rejections := 0
		for {
			if !cfg.DisableEccentricity {
				if err := s.eccentricityExcursion(ctx); err != nil {
					return RepeatabilityResult{}, fmt.Errorf("comprehensive: eccentricity excursion: %w", err)
				}
			}

			steps, err := s.prober.ProbeAt(ctx, idle, 0, 0)
			if err != nil && !isNotTriggered(err) {
				return RepeatabilityResult{}, fmt.Errorf("comprehensive: repeatability sample: %w", err)
			}

			abs := steps
			if abs < 0 {
				abs = -abs
			}
			if abs > OverrunStepThreshold {
				rejections++
				if rejections > maxRejectionsPerSample {
					return RepeatabilityResult{}, fmt.Errorf("comprehensive: sample repeatedly exceeds %d steps: %w", OverrunStepThreshold, calibration.ErrNonconvergence)
				}
				continue
			}
			samples = append(samples, steps)
			break
		}
	}

	return classifyRepeatability(samples, s.cfg.StepsPerMMZ), nil
}

func (s *Strategy) eccentricityExcursion(ctx *rctx.Context) error {
	_, _, z := ctx.Planner.CurrentPosition()
	for _, p := range calibration.TowerPoints(EccentricityRadius) {
		if err := ctx.Planner.AbsoluteMove(p.X, p.Y, z, s.cfg.EccentricityFeedrate); err != nil {
			return err
		}
		ctx.Planner.WaitEmpty()
	}
	if err := ctx.Planner.AbsoluteMove(0, 0, z, s.cfg.EccentricityFeedrate); err != nil {
		return err
	}
	ctx.Planner.WaitEmpty()
	return nil
}

func classifyRepeatability(samples []int64, stepsPerMMZ float32) RepeatabilityResult {
	n := len(samples)
	var sum int64
	min, max := samples[0], samples[0]
	for _, v := range samples {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := float32(sum) / float32(n)

	var variance float32
	for _, v := range samples {
		diff := float32(v) - mean
		variance += diff * diff
	}
	if n > 1 {
		variance /= float32(n - 1)
	}
	stddevSteps := math32.Sqrt(variance)

	rangeMM := float32(max-min) / stepsPerMMZ
	stddevMM := stddevSteps / stepsPerMMZ

	var class string
	switch {
	case rangeMM < 0.015:
		class = "very good"
	case rangeMM < 0.03:
		class = "average"
	case rangeMM < 0.04:
		class = "borderline"
	default:
		class = "unusable"
	}

	return RepeatabilityResult{
		Samples:        samples,
		MeanSteps:      mean,
		RangeMM:        rangeMM,
		StdDevMM:       stddevMM,
		Classification: class,
	}
}
