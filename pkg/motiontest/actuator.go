// Package motiontest provides a deterministic simulated Actuator for
// exercising pkg/motion and pkg/probe without real stepper hardware.
package motiontest

// Actuator simulates a stepper axis: each call to Advance moves its step
// counter by rate*dt steps in the commanded direction. An optional
// travel limit simulates the black-box stepper's own distance-bounded
// move completing (spec.md 4.A, "commanded ... by max_distance ·
// steps_per_mm steps").
type Actuator struct {
	rate      float32
	direction int8
	moving    bool
	stepped   int64
	residual  float32 // fractional steps carried between Advance calls
	limit     *int64
}

// NewActuator returns an idle simulated actuator.
func NewActuator() *Actuator {
	return &Actuator{}
}

// CommandRate implements motion.Actuator.
func (a *Actuator) CommandRate(stepsPerSecond float32, direction int8) {
	a.rate = stepsPerSecond
	a.direction = direction
	a.moving = stepsPerSecond > 0
}

// IsMoving implements motion.Actuator.
func (a *Actuator) IsMoving() bool {
	return a.moving
}

// Stepped implements motion.Actuator.
func (a *Actuator) Stepped() int64 {
	return a.stepped
}

// Direction returns the last commanded direction, for test assertions.
func (a *Actuator) Direction() int8 {
	return a.direction
}

// SetTravelLimit bounds motion to absoluteStepPosition in the current
// direction of travel, implementing probe.TravelLimiter.
func (a *Actuator) SetTravelLimit(absoluteStepPosition int64) {
	v := absoluteStepPosition
	a.limit = &v
}

// ClearTravelLimit removes any bound set by SetTravelLimit.
func (a *Actuator) ClearTravelLimit() {
	a.limit = nil
}

// Advance simulates dt seconds of stepping at the currently commanded
// rate, called by test harnesses once per tick to stand in for the real
// 100kHz step ticker. Fractional steps are carried in a residual
// accumulator (the same DDA technique a real pulse generator uses) so
// low rates relative to a coarse tick still integrate correctly over
// many calls.
func (a *Actuator) Advance(dt float32) {
	if !a.moving || a.rate <= 0 {
		return
	}
	amount := a.rate*dt + a.residual
	steps := int64(amount)
	a.residual = amount - float32(steps)
	if a.direction < 0 {
		a.stepped -= steps
	} else {
		a.stepped += steps
	}
	if a.limit != nil {
		if (a.direction >= 0 && a.stepped >= *a.limit) || (a.direction < 0 && a.stepped <= *a.limit) {
			a.moving = false
		}
	}
}

// Reset zeroes the step counter and halts the actuator, mirroring the
// firmware's "explicit actuator resets" after a probe return.
func (a *Actuator) Reset() {
	a.stepped = 0
	a.moving = false
	a.rate = 0
	a.residual = 0
	a.limit = nil
}

// SetStepped forces the step counter, used to seed a probe scenario at a
// known starting position.
func (a *Actuator) SetStepped(v int64) {
	a.stepped = v
}
