package motion

// Actuator is the black-box stepper pulse generator this core drives
// (spec.md 1, "out of scope... assumed to deliver a commanded
// steps-per-second rate and report is_moving, stepped, current_position").
// Real firmware satisfies this with its own interrupt-driven pulse
// emitter; tests and the demonstration CLI satisfy it with a simulated
// actuator (see motiontest.Actuator).
type Actuator interface {
	// IsMoving reports whether the actuator is still stepping.
	IsMoving() bool
	// Stepped returns the actuator's signed step counter.
	Stepped() int64
	// CommandRate sets the actuator's target step rate and direction
	// (direction is +1 or -1); a rate of 0 is a hard stop.
	CommandRate(stepsPerSecond float32, direction int8)
}

// Mode selects how Handler.Tick advances an axis.
type Mode int

const (
	// ModeIdle: the axis is not under tick control.
	ModeIdle Mode = iota
	// ModeAccelerating: ramp CurrentRate up toward TargetRate.
	ModeAccelerating
	// ModeDecelerating: ramp CurrentRate down toward zero, honoring RunoutLimitSteps.
	ModeDecelerating
)

// MinStepsPerSecond is the platform's minimum sustainable step rate;
// decelerating rates below this snap to zero (spec.md 4.B).
const MinStepsPerSecond float32 = 4.0

// AxisState is the sub-struct the acceleration tick owns exclusively
// (SPEC_FULL.md 9.3): the foreground writes Mode/TargetRate/Direction
// before arming the ticker, the ticker writes the remaining fields, and
// the foreground only reads them back after observing !Running.
type AxisState struct {
	Name string

	Actuator Actuator

	StepsPerMM   float32
	Acceleration float32 // mm/sec^2, scaled by StepsPerMM in the tick

	Mode      Mode
	Running   bool
	Direction int8
	CurrentRate float32
	TargetRate  float32

	RunoutLimitSteps  int64
	HasExceededRunout bool
	StepsAtDecelEnd   int64
}

// NewAxisState constructs an idle axis bound to actuator.
func NewAxisState(name string, actuator Actuator, stepsPerMM, acceleration float32) *AxisState {
	return &AxisState{
		Name:         name,
		Actuator:     actuator,
		StepsPerMM:   stepsPerMM,
		Acceleration: acceleration,
	}
}

// Arm puts the axis under tick-driven acceleration toward targetRateSPS
// in the given direction. Must be called from the foreground before the
// ticker observes it.
func (a *AxisState) Arm(targetRateSPS float32, direction int8) {
	a.Mode = ModeAccelerating
	a.Running = true
	a.Direction = direction
	a.TargetRate = targetRateSPS
	a.HasExceededRunout = false
	a.StepsAtDecelEnd = 0
	a.Actuator.CommandRate(a.CurrentRate, direction)
}

// ArmDecelerate switches a running axis into deceleration, capping
// travel at runoutLimitSteps measured in the axis's own step counter.
func (a *AxisState) ArmDecelerate(runoutLimitSteps int64) {
	a.Mode = ModeDecelerating
	a.RunoutLimitSteps = runoutLimitSteps
}

// HardStop commands a zero-distance stop immediately, bypassing the
// deceleration ramp (spec.md 4.A, "not decelerating: immediately command
// all relevant actuators to zero-distance moves").
func (a *AxisState) HardStop() {
	a.Mode = ModeIdle
	a.Running = false
	a.CurrentRate = 0
	a.Actuator.CommandRate(0, a.Direction)
}

// IsMoving reflects the underlying actuator, not the tick-side Running
// flag, since the actuator is the authority on physical motion.
func (a *AxisState) IsMoving() bool {
	return a.Actuator.IsMoving()
}

// Stepped returns the actuator's current step counter.
func (a *AxisState) Stepped() int64 {
	return a.Actuator.Stepped()
}
