package probe_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/deltacal/pkg/motion"
	"github.com/itohio/deltacal/pkg/motiontest"
	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/probetest"
	"github.com/itohio/deltacal/pkg/rctx"
)

const tickRate = float32(1000)
const dt = float32(1) / tickRate

func baseConfig() probe.Config {
	return probe.Config{
		DebounceCount:       2,
		SlowFeedrate:        2,
		FastFeedrate:        5,
		ReturnFeedrate:      8,
		ProbeHeight:         0,
		MaxZ:                5,
		DecelerateOnTrigger: false,
		DecelerateRunout:    probe.UnsetRunout,
		ReverseZ:            false,
		Invert:              false,
	}
}

type harness struct {
	actuators [3]*motiontest.Actuator
	handler   *motion.Handler
	ctx       *rctx.Context
	pin       *probetest.Pin
	planner   *probetest.Planner
}

func newHarness() *harness {
	var axes [3]*motion.AxisState
	var acts [3]*motiontest.Actuator
	for i, name := range [3]string{"X", "Y", "Z"} {
		acts[i] = motiontest.NewActuator()
		axes[i] = motion.NewAxisState(name, acts[i], 80, 4000)
	}
	handler := motion.NewHandler(tickRate, axes[0], axes[1], axes[2])
	planner := probetest.NewPlanner()
	ctx := rctx.New(planner, handler, axes, nil, nil, zerolog.Logger{})
	return &harness{actuators: acts, handler: handler, ctx: ctx, pin: probetest.NewPin(), planner: planner}
}

// idlePump advances every axis's simulated actuator by one tick interval
// each time the driver yields, standing in for the foreground scheduler
// racing the interrupt-context tick handler.
func (h *harness) idlePump() {
	h.handler.Tick()
	for _, a := range h.actuators {
		a.Advance(dt)
	}
}

func TestDriver_RunProbe_Triggers(t *testing.T) {
	h := newHarness()
	cfg := baseConfig()
	d, err := probe.NewDriver(cfg, h.pin, h.handler)
	require.NoError(t, err)

	idle := func() {
		h.idlePump()
		if h.actuators[2].Stepped() <= -100 {
			h.pin.SetActive(true)
		}
	}

	res, err := d.RunProbe(h.ctx, idle, 5, 10, false)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.LessOrEqual(t, res.StepsAtTrigger, int64(-100))
	assert.Equal(t, res.StepsAtTrigger, res.StepsAtDecelEnd)
}

func TestDriver_RunProbe_AlreadyTriggered(t *testing.T) {
	h := newHarness()
	h.pin.SetActive(true)
	d, err := probe.NewDriver(baseConfig(), h.pin, h.handler)
	require.NoError(t, err)

	_, err = d.RunProbe(h.ctx, h.idlePump, 5, 10, false)
	assert.ErrorIs(t, err, probe.ErrAlreadyTriggered)
}

func TestDriver_RunProbe_NotTriggered(t *testing.T) {
	h := newHarness()
	d, err := probe.NewDriver(baseConfig(), h.pin, h.handler)
	require.NoError(t, err)

	res, err := d.RunProbe(h.ctx, h.idlePump, 5, 1, false)
	assert.ErrorIs(t, err, probe.ErrNotTriggered)
	assert.False(t, res.Triggered)
}

func TestDriver_RunProbe_MaxDistanceNegative_UsesTwiceMaxZ(t *testing.T) {
	h := newHarness()
	cfg := baseConfig()
	cfg.MaxZ = 0.5
	d, err := probe.NewDriver(cfg, h.pin, h.handler)
	require.NoError(t, err)

	res, err := d.RunProbe(h.ctx, h.idlePump, 5, -1, false)
	assert.ErrorIs(t, err, probe.ErrNotTriggered)
	assert.False(t, res.Triggered)

	const stepsPerMM = 80
	expectSteps := int64(2 * cfg.MaxZ * stepsPerMM)
	got := h.actuators[2].Stepped()
	if got < 0 {
		got = -got
	}
	assert.LessOrEqual(t, got, expectSteps+1)
	assert.Greater(t, got, int64(0))
}

func TestDriver_RunProbe_DecelerateOnTrigger_StopsWithinRunout(t *testing.T) {
	h := newHarness()
	cfg := baseConfig()
	cfg.DecelerateOnTrigger = true
	cfg.DecelerateRunout = 2
	d, err := probe.NewDriver(cfg, h.pin, h.handler)
	require.NoError(t, err)

	idle := func() {
		h.idlePump()
		if h.actuators[2].Stepped() <= -100 {
			h.pin.SetActive(true)
		}
	}

	res, err := d.RunProbe(h.ctx, idle, 5, 10, false)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.False(t, res.Overrun)

	runoutSteps := int64(cfg.DecelerateRunout * 80)
	assert.LessOrEqual(t, res.StepsAtDecelEnd, res.StepsAtTrigger)
	assert.GreaterOrEqual(t, res.StepsAtDecelEnd, res.StepsAtTrigger-runoutSteps-1)
}

func TestDriver_RunProbe_DecelerateRunoutZero_ImmediatelyOverruns(t *testing.T) {
	h := newHarness()
	cfg := baseConfig()
	cfg.DecelerateOnTrigger = true
	cfg.DecelerateRunout = 0
	d, err := probe.NewDriver(cfg, h.pin, h.handler)
	require.NoError(t, err)

	idle := func() {
		h.idlePump()
		if h.actuators[2].Stepped() <= -100 {
			h.pin.SetActive(true)
		}
	}

	res, err := d.RunProbe(h.ctx, idle, 5, 10, false)
	assert.ErrorIs(t, err, probe.ErrOverrun)
	assert.True(t, res.Triggered)
	assert.True(t, res.Overrun)
	assert.Equal(t, res.StepsAtTrigger, res.StepsAtDecelEnd)
}

func TestDriver_RunProbe_DirectionXOR(t *testing.T) {
	cases := []struct {
		reverseZ, reverse bool
		wantDir           int8
	}{
		{false, false, -1},
		{false, true, 1},
		{true, false, 1},
		{true, true, -1},
	}
	for _, c := range cases {
		h := newHarness()
		cfg := baseConfig()
		cfg.DebounceCount = 0
		cfg.ReverseZ = c.reverseZ
		d, err := probe.NewDriver(cfg, h.pin, h.handler)
		require.NoError(t, err)

		idle := func() {
			h.pin.SetActive(true)
			h.idlePump()
		}

		res, err := d.RunProbe(h.ctx, idle, 5, 10, c.reverse)
		require.NoError(t, err)
		require.True(t, res.Triggered)
		assert.Equal(t, c.wantDir, h.actuators[2].Direction(),
			"reverseZ=%v reverse=%v", c.reverseZ, c.reverse)
	}
}

func TestDriver_ReturnProbe_DirectionXOR(t *testing.T) {
	cases := []struct {
		reverseZ, reverse bool
		wantSign          float32
	}{
		{false, false, 1},
		{false, true, -1},
		{true, false, -1},
		{true, true, 1},
	}
	for _, c := range cases {
		h := newHarness()
		cfg := baseConfig()
		cfg.ReverseZ = c.reverseZ
		d, err := probe.NewDriver(cfg, h.pin, h.handler)
		require.NoError(t, err)

		err = d.ReturnProbe(h.ctx, 800, c.reverse)
		require.NoError(t, err)
		require.Len(t, h.planner.RelativeCalls, 1)
		assert.Equal(t, c.wantSign*10, h.planner.RelativeCalls[0].DZ,
			"reverseZ=%v reverse=%v", c.reverseZ, c.reverse)
	}
}

func TestDriver_ReturnProbe_UsesMinOfTwiceSlowAndFast(t *testing.T) {
	h := newHarness()
	cfg := baseConfig()
	cfg.SlowFeedrate = 1
	cfg.FastFeedrate = 5
	d, err := probe.NewDriver(cfg, h.pin, h.handler)
	require.NoError(t, err)

	require.NoError(t, d.ReturnProbe(h.ctx, 80, false))
	require.Len(t, h.planner.RelativeCalls, 1)
	assert.Equal(t, float32(2*cfg.SlowFeedrate*60), h.planner.RelativeCalls[0].FeedrateMMPerMin)
}

func TestDriver_ReturnProbe_HaltedRefuses(t *testing.T) {
	h := newHarness()
	h.ctx.Halt.Store(true)
	d, err := probe.NewDriver(baseConfig(), h.pin, h.handler)
	require.NoError(t, err)

	err = d.ReturnProbe(h.ctx, 80, false)
	assert.ErrorIs(t, err, probe.ErrHalted)
}

func TestConfig_Validate_RejectsDecelerateWithoutRunout(t *testing.T) {
	cfg := baseConfig()
	cfg.DecelerateOnTrigger = true
	cfg.DecelerateRunout = probe.UnsetRunout
	assert.ErrorIs(t, cfg.Validate(), probe.ErrConfig)
}

func TestConfig_Validate_RejectsNegativeDebounce(t *testing.T) {
	cfg := baseConfig()
	cfg.DebounceCount = -1
	assert.ErrorIs(t, cfg.Validate(), probe.ErrConfig)
}
