package motion_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/deltacal/pkg/motion"
	"github.com/itohio/deltacal/pkg/motiontest"
)

func newTestAxis(name string) (*motion.AxisState, *motiontest.Actuator) {
	act := motiontest.NewActuator()
	axis := motion.NewAxisState(name, act, 80, 500) // 80 steps/mm, 500 mm/s^2
	return axis, act
}

func TestHandler_AccelerateRampsToTarget(t *testing.T) {
	axis, act := newTestAxis("Z")
	handler := motion.NewHandler(1000, axis) // 1kHz tick

	axis.Arm(1000, 1) // target 1000 steps/s

	for i := 0; i < 5; i++ {
		handler.Tick()
		act.Advance(1.0 / 1000)
	}

	require.True(t, axis.CurrentRate > 0)
	assert.LessOrEqual(t, axis.CurrentRate, float32(1000))
}

func TestHandler_AccelerateCapsAtTarget(t *testing.T) {
	axis, act := newTestAxis("Z")
	handler := motion.NewHandler(1000, axis)

	axis.Arm(100, 1) // small target reached quickly given 500 mm/s^2 accel
	for i := 0; i < 10; i++ {
		handler.Tick()
		act.Advance(1.0 / 1000)
	}

	assert.Equal(t, float32(100), axis.CurrentRate)
}

func TestHandler_DecelerateStopsWithinRunout(t *testing.T) {
	axis, act := newTestAxis("Z")
	handler := motion.NewHandler(1000, axis)

	axis.Arm(2000, 1)
	for i := 0; i < 4; i++ {
		handler.Tick()
		act.Advance(1.0 / 1000)
	}

	runoutLimit := act.Stepped() + 80 // 1mm of runout at 80 steps/mm
	axis.ArmDecelerate(runoutLimit)

	for i := 0; i < 2000 && axis.Running; i++ {
		handler.Tick()
		act.Advance(1.0 / 1000)
	}

	assert.False(t, axis.Running)
	assert.False(t, axis.HasExceededRunout)
	assert.LessOrEqual(t, act.Stepped(), runoutLimit+1)
}

func TestHandler_DecelerateOverrunSetsFlag(t *testing.T) {
	axis, act := newTestAxis("Z")
	handler := motion.NewHandler(1000, axis)

	axis.Arm(5000, 1)
	for i := 0; i < 8; i++ {
		handler.Tick()
		act.Advance(1.0 / 1000)
	}

	// Zero runout: the very next decelerating tick that has already
	// stepped past the trigger point overruns immediately.
	runoutLimit := act.Stepped()
	axis.ArmDecelerate(runoutLimit)

	for i := 0; i < 2000 && axis.Running; i++ {
		handler.Tick()
		act.Advance(1.0 / 1000)
	}

	assert.True(t, axis.HasExceededRunout)
}

func TestHandler_AllStopped(t *testing.T) {
	axisA, actA := newTestAxis("X")
	axisB, actB := newTestAxis("Z")
	handler := motion.NewHandler(1000, axisA, axisB)

	assert.True(t, handler.AllStopped())

	axisA.Arm(100, 1)
	handler.Tick()
	actA.Advance(0.001)
	assert.False(t, handler.AllStopped())

	_ = actB
}
