package probectl

import (
	"errors"
	"fmt"

	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/rctx"
)

// ErrProbeFailure is the halt-level alarm G38.2 raises when the straight
// probe completes its commanded travel without a detector trigger
// (spec.md 7, "escalates to Halted via the machine's halt event").
var ErrProbeFailure = errors.New("probectl: straight probe failed")

// Axis names one of the three Cartesian axes a straight probe travels
// along (spec.md 4.C, "probe along a single axis (X, Y, or Z)").
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// CompensationTransform is the bed-leveling compensation the straight
// probe must disable for the duration of its move and restore
// afterward (spec.md 4.C). A real port wraps the planner's mesh/tilt
// transform; Disable returns the function that restores it.
type CompensationTransform interface {
	Disable() (restore func())
}

// StraightProbeResult reports a G38.2/G38.3 outcome.
type StraightProbeResult struct {
	Success bool
	X, Y, Z float32
}

// String renders the machine-coordinate status line spec.md 4.C
// specifies: "[PRB:x,y,z:ok]" (or :fail when untriggered).
func (r StraightProbeResult) String() string {
	tag := "fail"
	if r.Success {
		tag = "ok"
	}
	return fmt.Sprintf("[PRB:%.4f,%.4f,%.4f:%s]", r.X, r.Y, r.Z, tag)
}

func axisDelta(axis Axis, distanceMM float32, reverse bool) (dx, dy, dz float32) {
	d := distanceMM
	if reverse {
		d = -d
	}
	switch axis {
	case AxisX:
		return d, 0, 0
	case AxisY:
		return 0, d, 0
	default:
		return 0, 0, d
	}
}

// RunStraightProbe implements G38.2 (alarmOnMiss=true) and G38.3
// (alarmOnMiss=false): it disables compensation, plans a single-axis
// relative move through the planner, and polls pin at each idle yield,
// forcibly stopping every axis on the first active read (no debounce,
// unlike RunProbe's cooperative cycle).
func (c *Controller) RunStraightProbe(ctx *rctx.Context, idle probe.Idle, pin probe.Pin, axis Axis, distanceMM, feedrateMMPerSec float32, reverse, alarmOnMiss bool) (StraightProbeResult, error) {
	if c.Compensation != nil {
		restore := c.Compensation.Disable()
		defer restore()
	}

	dx, dy, dz := axisDelta(axis, distanceMM, reverse)
	if err := ctx.Planner.RelativeMove(dx, dy, dz, feedrateMMPerSec*60); err != nil {
		return StraightProbeResult{}, err
	}

	// On delta geometry a single-axis Cartesian move still steps all
	// three towers; this core approximates it as a uniform descent on
	// the shared tick handler rather than resolving per-tower deltas
	// (that belongs to the arm solution the planner consults).
	dir := int8(1)
	if dx+dy+dz < 0 {
		dir = -1
	}
	absDistanceMM := distanceMM
	if absDistanceMM < 0 {
		absDistanceMM = -absDistanceMM
	}
	for i := 0; i < 3; i++ {
		a := ctx.Handler.Axis(i)
		maxSteps := int64(absDistanceMM * a.StepsPerMM)
		if limiter, ok := a.Actuator.(probe.TravelLimiter); ok {
			limiter.SetTravelLimit(a.Stepped() + int64(dir)*maxSteps)
		}
		a.Arm(feedrateMMPerSec*a.StepsPerMM, dir)
	}

	triggered := false
	for {
		idle()
		if ctx.Halted() {
			return StraightProbeResult{}, probe.ErrHalted
		}

		if c.straightActive(pin) {
			triggered = true
			break
		}
		if ctx.Handler.AllStopped() {
			break
		}
	}

	for i := 0; i < 3; i++ {
		ctx.Handler.Axis(i).HardStop()
	}
	x, y, z := ctx.Planner.CurrentPosition()
	res := StraightProbeResult{Success: triggered, X: x, Y: y, Z: z}

	if !triggered && alarmOnMiss {
		ctx.Halt.Store(true)
		return res, ErrProbeFailure
	}
	return res, nil
}

func (c *Controller) straightActive(pin probe.Pin) bool {
	v := pin.Read()
	if c.Invert {
		return !v
	}
	return v
}
