// Package motion implements the acceleration tick handler of spec.md
// 4.B: a fixed-rate callback that ramps each actuator's step rate toward
// (or away from) a target, enforcing the probe's deceleration runout.
//
// Tick must not allocate, log, or do floating-point work beyond the
// rate-delta computation (spec.md 5) — it is written to run from
// interrupt context in a real port. This package carries that
// constraint by construction: Handler holds no slice/map that grows
// during Tick, and Tick itself never calls into logger or bus.
package motion

// Handler drives a fixed set of axes at a shared tick rate. Z is always
// processed; on delta geometry X and Y are processed identically (spec.md
// 4.B, "Ordering: Z is always processed; on delta geometry X and Y as
// well").
type Handler struct {
	axes           []*AxisState
	ticksPerSecond float32
}

// NewHandler constructs a Handler over axes, ticking at ticksPerSecond Hz
// (spec.md 5, "typically 1 kHz").
func NewHandler(ticksPerSecond float32, axes ...*AxisState) *Handler {
	return &Handler{axes: axes, ticksPerSecond: ticksPerSecond}
}

// Axis returns the i'th axis under this handler's control.
func (h *Handler) Axis(i int) *AxisState {
	return h.axes[i]
}

// AllStopped reports whether every axis has finished moving, the only
// cross-axis observable the tick handler exposes to callers (spec.md 4.B).
func (h *Handler) AllStopped() bool {
	for _, a := range h.axes {
		if a.IsMoving() {
			return false
		}
	}
	return true
}

// Tick advances every running axis by one tick interval. Call at
// ticksPerSecond Hz (a real port calls this from its acceleration
// interrupt; the demonstration CLI calls it from its probe idle callback).
func (h *Handler) Tick() {
	for _, a := range h.axes {
		if !a.Running {
			continue
		}
		switch a.Mode {
		case ModeAccelerating:
			tickAccelerate(a, h.ticksPerSecond)
		case ModeDecelerating:
			tickDecelerate(a, h.ticksPerSecond)
		}
	}
}

func tickAccelerate(a *AxisState, ticksPerSecond float32) {
	delta := a.Acceleration * a.StepsPerMM / ticksPerSecond
	next := a.CurrentRate + delta
	if next > a.TargetRate {
		next = a.TargetRate
	}
	a.CurrentRate = next
	a.Actuator.CommandRate(a.CurrentRate, a.Direction)

	if !a.Actuator.IsMoving() {
		a.Running = false
		a.Mode = ModeIdle
	}
}

func tickDecelerate(a *AxisState, ticksPerSecond float32) {
	stepped := a.Stepped()
	if a.Direction < 0 {
		stepped = -stepped
	}
	if stepped >= a.RunoutLimitSteps {
		a.CurrentRate = 0
		a.Actuator.CommandRate(0, a.Direction)
		a.HasExceededRunout = true
		a.StepsAtDecelEnd = a.Stepped()
		a.Running = false
		a.Mode = ModeIdle
		return
	}

	delta := a.Acceleration * a.StepsPerMM / ticksPerSecond
	next := a.CurrentRate - delta
	if next < MinStepsPerSecond {
		next = 0
	}
	a.CurrentRate = next
	a.Actuator.CommandRate(a.CurrentRate, a.Direction)

	if a.CurrentRate == 0 || !a.Actuator.IsMoving() {
		a.StepsAtDecelEnd = a.Stepped()
		a.Running = false
		a.Mode = ModeIdle
	}
}
