package geom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/deltacal/pkg/bus"
	"github.com/itohio/deltacal/pkg/geom"
	"github.com/itohio/deltacal/pkg/geomtest"
)

func newFacade() (*geom.Facade, *geomtest.Solution, *geomtest.Position) {
	sol := geomtest.NewSolution()
	pos := &geomtest.Position{}
	f := geom.NewFacade(sol, pos, bus.New())
	return f, sol, pos
}

func TestFacade_SetResyncsAndMarksDirty(t *testing.T) {
	f, sol, pos := newFacade()
	require.False(t, f.Dirty())

	require.NoError(t, f.Set(geom.ParamDeltaRadius, 110))

	v, err := f.Get(geom.ParamDeltaRadius)
	require.NoError(t, err)
	assert.Equal(t, float32(110), v)
	assert.True(t, f.Dirty())
	assert.Equal(t, 1, pos.MoveCalls)
	_ = sol
}

func TestFacade_RoundTripAllParams(t *testing.T) {
	f, _, _ := newFacade()
	params := []geom.Param{
		geom.ParamArmLength, geom.ParamDeltaRadius,
		geom.ParamTowerRadiusA, geom.ParamTowerRadiusB, geom.ParamTowerRadiusC,
		geom.ParamTowerAngleD, geom.ParamTowerAngleE, geom.ParamTowerAngleF,
		geom.ParamArmOffsetT, geom.ParamArmOffsetU, geom.ParamArmOffsetV,
	}
	for i, p := range params {
		want := float32(i) + 0.5
		require.NoError(t, f.Set(p, want))
		got, err := f.Get(p)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFacade_TrimNormalization(t *testing.T) {
	f, _, _ := newFacade()
	require.NoError(t, f.SetTrim(0, -1.0))
	require.NoError(t, f.SetTrim(1, 0.5))
	require.NoError(t, f.SetTrim(2, -2.0))

	require.NoError(t, f.NormalizeTrim())

	max := f.Trim(0)
	for i := 1; i < 3; i++ {
		if f.Trim(i) > max {
			max = f.Trim(i)
		}
	}
	assert.Equal(t, float32(0), max)
	assert.LessOrEqual(t, f.Trim(0), float32(0))
	assert.LessOrEqual(t, f.Trim(1), float32(0))
	assert.LessOrEqual(t, f.Trim(2), float32(0))
}

func TestFacade_DirtyClearedOnlyExplicitly(t *testing.T) {
	f, _, _ := newFacade()
	require.NoError(t, f.Set(geom.ParamArmLength, 220))
	assert.True(t, f.Dirty())

	f.MarkClean()
	assert.False(t, f.Dirty())
}
