// Package geomtest provides a deterministic in-memory ArmSolution and
// PositionPort for exercising pkg/geom and the calibration strategies
// without a real delta math library.
package geomtest

import (
	"github.com/itohio/deltacal/pkg/geom"
)

// Solution is a trivial ArmSolution backed by a map, with a call counter
// on Forward. The facade's re-sync after a write is observed through
// Position.MoveCalls, not through this counter.
type Solution struct {
	values       map[geom.Param]float32
	ForwardCalls int
}

// NewSolution returns a Solution seeded with reasonable delta defaults.
func NewSolution() *Solution {
	return &Solution{
		values: map[geom.Param]float32{
			geom.ParamArmLength:    215,
			geom.ParamDeltaRadius:  105,
			geom.ParamTowerRadiusA: 0,
			geom.ParamTowerRadiusB: 0,
			geom.ParamTowerRadiusC: 0,
			geom.ParamTowerAngleD:  0,
			geom.ParamTowerAngleE:  0,
			geom.ParamTowerAngleF:  0,
			geom.ParamArmOffsetT:   0,
			geom.ParamArmOffsetU:   0,
			geom.ParamArmOffsetV:   0,
		},
	}
}

func (s *Solution) Get(p geom.Param) (float32, error) {
	v, ok := s.values[p]
	if !ok {
		return 0, geom.ErrUnknownParam
	}
	return v, nil
}

func (s *Solution) Set(p geom.Param, value float32) error {
	if _, ok := s.values[p]; !ok {
		return geom.ErrUnknownParam
	}
	s.values[p] = value
	return nil
}

func (s *Solution) Forward(actuatorSteps [3]float32) (geom.Vector3, error) {
	s.ForwardCalls++
	return geom.Vector3{}, nil
}

// Position is a trivial PositionPort that records the last move issued.
type Position struct {
	X, Y, Z   float32
	MoveCalls int
}

func (p *Position) CurrentPosition() (float32, float32, float32) {
	return p.X, p.Y, p.Z
}

func (p *Position) AbsoluteMove(x, y, z, feedrateMMPerMin float32) error {
	p.MoveCalls++
	p.X, p.Y, p.Z = x, y, z
	return nil
}
