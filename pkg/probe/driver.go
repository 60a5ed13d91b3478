// Package probe implements the Probe Driver of spec.md 4.A: a
// cooperative polling state machine that commands a coordinated descent
// of all three towers, debounces the probe pin, hands off to the
// acceleration tick handler for a controlled stop, and reports the step
// position at which contact was detected.
package probe

import (
	"github.com/itohio/deltacal/pkg/motion"
	"github.com/itohio/deltacal/pkg/rctx"
)

// Pin is the black-box probe switch this core polls (spec.md 1,
// "probe_pin_state: a sampleable boolean, not an interrupt source").
// Read returns the raw electrical sense; Driver applies Config.Invert.
type Pin interface {
	Read() bool
}

// TravelLimiter is an optional capability a motion.Actuator may
// implement to bound a commanded move to a fixed number of steps, the
// way a real stepper pulse generator bounds "move by max_distance ·
// steps_per_mm steps" (spec.md 4.A). Actuators that don't implement it
// are commanded an unbounded rate and rely on the caller's own planner
// to have limited travel upstream.
type TravelLimiter interface {
	SetTravelLimit(absoluteStepPosition int64)
}

// Idle is called once per poll iteration so a real port can yield to
// its scheduler; Driver checks the context's halt flag immediately after
// each call and returns ErrHalted once it is set.
type Idle func()

// Result reports the outcome of a completed RunProbe cycle.
type Result struct {
	// Triggered is true only when the probe pin debounced active before
	// all actuators stopped moving.
	Triggered bool
	// StepsAtTrigger is the Z actuator's signed step counter at the
	// instant debounce was satisfied.
	StepsAtTrigger int64
	// StepsAtDecelEnd is the Z actuator's signed step counter once
	// deceleration (or the hard stop) completed.
	StepsAtDecelEnd int64
	// Overrun is true when DecelerateOnTrigger could not stop the axis
	// within DecelerateRunout of the trigger point.
	Overrun bool
}

// Driver is the Probe Driver. It owns no actuator directly; it commands
// the shared motion.Handler's three axes and reads the Z axis's
// trigger-time step counter.
type Driver struct {
	cfg     Config
	pin     Pin
	handler *motion.Handler
}

// zAxis is the index of the Z tower within a Handler's axis set,
// matching rctx.Context.Axes[2] and geom's (0=X, 1=Y, 2=Z) convention.
const zAxis = 2

// NewDriver validates cfg and returns a Driver polling pin through
// handler's axes.
func NewDriver(cfg Config, pin Pin, handler *motion.Handler) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Driver{cfg: cfg, pin: pin, handler: handler}, nil
}

func (d *Driver) active() bool {
	v := d.pin.Read()
	if d.cfg.Invert {
		return !v
	}
	return v
}

// direction resolves the signed travel direction for a probe or return
// move, XORing the machine's wiring reversal against the caller's own
// reverse request (spec.md 4.A Open Question: "reverse_z XOR reverse
// request"). base is the direction a non-reversed move takes.
func direction(reverseZ, reverseRequest bool, base int8) int8 {
	if reverseZ != reverseRequest {
		return -base
	}
	return base
}

// normalize returns stepped's magnitude along direction of travel, the
// same convention motion.Handler's deceleration tick uses internally.
func normalize(direction int8, stepped int64) int64 {
	if direction < 0 {
		return -stepped
	}
	return stepped
}

// RunProbe commands a coordinated descent of all three towers at
// feedrateMMPerSec, up to maxDistanceMM of travel (a negative value is
// interpreted as 2*Config.MaxZ, spec.md 8.3), and polls the probe pin
// until it debounces active, the move completes without contact, or the
// process halts. reverse flips the nominal probing direction, XORed
// against Config.ReverseZ.
func (d *Driver) RunProbe(ctx *rctx.Context, idle Idle, feedrateMMPerSec, maxDistanceMM float32, reverse bool) (Result, error) {
	if d.active() {
		return Result{}, ErrAlreadyTriggered
	}
	if maxDistanceMM < 0 {
		maxDistanceMM = 2 * d.cfg.MaxZ
	}

	dir := direction(d.cfg.ReverseZ, reverse, -1)

	for i := 0; i < 3; i++ {
		axis := d.handler.Axis(i)
		start := axis.Stepped()
		targetRate := feedrateMMPerSec * axis.StepsPerMM
		maxSteps := int64(maxDistanceMM * axis.StepsPerMM)
		if limiter, ok := axis.Actuator.(TravelLimiter); ok {
			limiter.SetTravelLimit(start + int64(dir)*maxSteps)
		}
		axis.Arm(targetRate, dir)
	}

	debounce := 0
	for {
		idle()
		if ctx.Halted() {
			return Result{}, ErrHalted
		}

		if d.handler.AllStopped() {
			return Result{Triggered: false}, ErrNotTriggered
		}

		if !d.active() {
			debounce = 0
			continue
		}

		debounce++
		if debounce < d.cfg.DebounceCount {
			continue
		}

		return d.handleTrigger(ctx, idle, dir)
	}
}

// handleTrigger captures the trigger-time step position and either hard
// stops every axis or hands off to the tick handler's deceleration ramp,
// per Config.DecelerateOnTrigger (spec.md 4.A).
func (d *Driver) handleTrigger(ctx *rctx.Context, idle Idle, dir int8) (Result, error) {
	z := d.handler.Axis(zAxis)
	stepsAtTrigger := z.Stepped()

	if !d.cfg.DecelerateOnTrigger {
		for i := 0; i < 3; i++ {
			d.handler.Axis(i).HardStop()
		}
		return Result{
			Triggered:       true,
			StepsAtTrigger:  stepsAtTrigger,
			StepsAtDecelEnd: z.Stepped(),
		}, nil
	}

	runoutSteps := int64(d.cfg.DecelerateRunout * z.StepsPerMM)
	limit := normalize(dir, stepsAtTrigger) + runoutSteps
	for i := 0; i < 3; i++ {
		d.handler.Axis(i).ArmDecelerate(limit)
	}

	for !d.handler.AllStopped() {
		idle()
		if ctx.Halted() {
			return Result{}, ErrHalted
		}
	}

	res := Result{
		Triggered:       true,
		StepsAtTrigger:  stepsAtTrigger,
		StepsAtDecelEnd: z.StepsAtDecelEnd,
		Overrun:         z.HasExceededRunout,
	}
	if res.Overrun {
		return res, ErrOverrun
	}
	return res, nil
}

// ReturnProbe issues a coordinated relative move away from the surface,
// through the planner rather than direct actuator commands, traveling
// the Z distance represented by steps (typically Result.StepsAtTrigger
// or Result.StepsAtDecelEnd) at min(2*SlowFeedrate, FastFeedrate) mm/s.
// reverse is XORed against Config.ReverseZ exactly as in RunProbe, but
// against the opposite base direction since this move retreats.
func (d *Driver) ReturnProbe(ctx *rctx.Context, steps int64, reverse bool) error {
	if ctx.Halted() {
		return ErrHalted
	}

	dir := direction(d.cfg.ReverseZ, reverse, 1)
	stepsPerMM := d.handler.Axis(zAxis).StepsPerMM
	distanceMM := float32(steps) / stepsPerMM
	if distanceMM < 0 {
		distanceMM = -distanceMM
	}

	feedrateMMPerSec := 2 * d.cfg.SlowFeedrate
	if d.cfg.FastFeedrate < feedrateMMPerSec {
		feedrateMMPerSec = d.cfg.FastFeedrate
	}

	dz := distanceMM
	if dir < 0 {
		dz = -dz
	}
	if err := ctx.Planner.RelativeMove(0, 0, dz, feedrateMMPerSec*60); err != nil {
		return err
	}
	ctx.Planner.WaitEmpty()

	for i := 0; i < 3; i++ {
		d.handler.Axis(i).HardStop()
	}
	return nil
}
