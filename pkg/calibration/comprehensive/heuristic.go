package comprehensive

import (
	"math/rand"

	"github.com/chewxy/math32"

	"github.com/itohio/deltacal/pkg/geom"
	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/rctx"
)

// WorseningFactor bounds how much any single off-axis point is allowed
// to regress for a candidate adjustment to still be kept, relative to
// the tolerance (spec.md 8's Open Question resolution).
const WorseningFactor float32 = 2.0

// armOffsetWeight is how many times less often a tower arm-offset
// parameter is proposed relative to the other eight scalars: the source
// README does not fix their objective contribution, so they are
// candidates but weighted lowest (spec.md 8's Open Question resolution)
// rather than excluded outright.
const armOffsetWeight = 8

// heuristicParams is the weighted candidate pool RunHeuristic samples
// from: arm length, delta radius, and the three tower radius/angle
// offsets each appear armOffsetWeight times; the three tower arm
// offsets appear once each.
var heuristicParams = buildHeuristicParams()

func buildHeuristicParams() []geom.Param {
	core := []geom.Param{
		geom.ParamArmLength,
		geom.ParamDeltaRadius,
		geom.ParamTowerRadiusA, geom.ParamTowerRadiusB, geom.ParamTowerRadiusC,
		geom.ParamTowerAngleD, geom.ParamTowerAngleE, geom.ParamTowerAngleF,
	}
	params := make([]geom.Param, 0, len(core)*armOffsetWeight+3)
	for i := 0; i < armOffsetWeight; i++ {
		params = append(params, core...)
	}
	params = append(params, geom.ParamArmOffsetT, geom.ParamArmOffsetU, geom.ParamArmOffsetV)
	return params
}

// HeuristicConfig parameterizes RunHeuristic.
type HeuristicConfig struct {
	MaxIterations int     // 0 selects 10, matching the source's stub iteration count
	StepSize      float32 // initial perturbation magnitude per parameter; 0 selects 0.1
	Tolerance     float32 // 0 selects endstop.DefaultTarget-scale 0.03
	Rand          *rand.Rand
}

// HeuristicResult reports the outcome of a RunHeuristic pass.
type HeuristicResult struct {
	Iterations    int
	Kept          int
	InitialScore  float32
	FinalScore    float32
	FinalDepthMap DepthMapResult
}

// objective computes mean(|depth|) + 0.5*intersextileMean(|depth|), the
// objective spec.md 8's Open Question resolves the heuristic loop
// around. The intersextile mean is the mean of the middle four of six
// equal-sized bins of sorted |depth| values; with 12 points that is the
// mean of the middle 8 sorted samples (bins of 2).
func objective(depthMM [12]float32) float32 {
	abs := make([]float32, 12)
	for i, v := range depthMM {
		if v < 0 {
			v = -v
		}
		abs[i] = v
	}
	var sum float32
	for _, v := range abs {
		sum += v
	}
	mean := sum / 12

	sorted := append([]float32(nil), abs...)
	insertionSort(sorted)
	// drop the lowest and highest sixth (2 samples each of 12).
	mid := sorted[2:10]
	var midSum float32
	for _, v := range mid {
		midSum += v
	}
	intersextileMean := midSum / float32(len(mid))

	return mean + 0.5*intersextileMean
}

func insertionSort(v []float32) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}

// RunHeuristic implements the open-ended heuristic loop of spec.md 4.G
// as a bounded simulated-annealing pass: acquire a depth map, propose a
// perturbation to one of heuristicParams, re-probe, and keep the change
// only if it does not increase the objective and does not worsen any
// single point beyond tolerance*WorseningFactor. This is explicitly a
// heuristic, not a proof of global convergence.
func (s *Strategy) RunHeuristic(ctx *rctx.Context, idle probe.Idle, cfg HeuristicConfig) (HeuristicResult, error) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.StepSize <= 0 {
		cfg.StepSize = 0.1
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 0.03
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	current, err := s.AcquireDepthMap(ctx, idle)
	if err != nil {
		return HeuristicResult{}, err
	}
	currentScore := objective(current.DeviationMM)
	result := HeuristicResult{InitialScore: currentScore, FinalScore: currentScore, FinalDepthMap: current}

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		result.Iterations++

		p := heuristicParams[rng.Intn(len(heuristicParams))]
		direction := float32(1)
		if rng.Intn(2) == 0 {
			direction = -1
		}
		step := cfg.StepSize * direction

		before, err := s.geometry.Get(p)
		if err != nil {
			return result, err
		}
		if err := s.geometry.Set(p, before+step); err != nil {
			return result, err
		}

		candidate, err := s.AcquireDepthMap(ctx, idle)
		if err != nil {
			return result, err
		}
		candidateScore := objective(candidate.DeviationMM)

		worsened := false
		for i, v := range candidate.DeviationMM {
			prev := current.DeviationMM[i]
			if math32.Abs(v) > math32.Abs(prev) && math32.Abs(v) > cfg.Tolerance*WorseningFactor {
				worsened = true
				break
			}
		}

		if candidateScore <= currentScore && !worsened {
			current = candidate
			currentScore = candidateScore
			result.Kept++
		} else {
			if err := s.geometry.Set(p, before); err != nil {
				return result, err
			}
		}
	}

	result.FinalScore = currentScore
	result.FinalDepthMap = current
	return result, nil
}
