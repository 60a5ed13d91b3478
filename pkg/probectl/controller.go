// Package probectl implements the Probe Controller of spec.md 4.C: the
// move-probe-return choreography (probe_at/probe_distance), the G30
// single-probe command, and the G38.2/G38.3 straight-probe commands.
package probectl

import (
	"errors"
	"fmt"

	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/rctx"
)

// MinSmoothedSteps is the floor a smoothed probe_at average must clear;
// anything lower is treated as evidence of a misconfigured probe height
// or feedrate (spec.md 4.C).
const MinSmoothedSteps = 100

// ErrBelowFloor is returned by ProbeAt when the smoothed step average
// falls below MinSmoothedSteps.
var ErrBelowFloor = errors.New("probectl: smoothed probe average below minimum floor")

// FastXYFeedrate is the feedrate (mm/min) used for the XY repositioning
// move preceding a probe cycle.
const FastXYFeedrate float32 = 3000

// Controller is the Probe Controller.
type Controller struct {
	driver *probe.Driver

	// ProbeOffsetX, ProbeOffsetY, ProbeOffsetZ translate the commanded
	// XY target (and reported Z) to account for the probe tip's offset
	// from the nozzle (leveling-strategy.comprehensive-delta.probe_offset_*).
	ProbeOffsetX, ProbeOffsetY, ProbeOffsetZ float32

	// Smoothing repeats a probe_at cycle this many times and averages
	// the step count; 1 (or 0) disables smoothing.
	Smoothing int

	// StepsPerMMZ converts the Z actuator's step counter to millimeters
	// for probe_distance and the G30 status line.
	StepsPerMMZ float32

	// SlowFeedrateMMPerSec is the descent speed for probe_at and G30's
	// default; FastFeedrateMMPerSec is stored but not read by Controller.
	FastFeedrateMMPerSec, SlowFeedrateMMPerSec float32
	MaxDistanceMM                              float32

	// Compensation is the bed-leveling transform G38.2/G38.3 disable for
	// the duration of a straight probe; nil if the machine has none.
	Compensation CompensationTransform

	// Invert flips the straight-probe detector pin's active sense,
	// independent of the run_probe cycle's own Config.Invert.
	Invert bool

	lastSteps     int64
	lastTriggered bool
}

// New builds a Controller driving the given probe.Driver.
func New(driver *probe.Driver) *Controller {
	return &Controller{driver: driver, Smoothing: 1}
}

// ProbeAt moves to (x, y) at fast feedrate (probe offset applied), then
// runs one or more probe cycles (per Smoothing), returning the averaged
// trigger step count (spec.md 4.C).
func (c *Controller) ProbeAt(ctx *rctx.Context, idle probe.Idle, x, y float32) (int64, error) {
	_, _, cz := ctx.Planner.CurrentPosition()
	if err := ctx.Planner.AbsoluteMove(x+c.ProbeOffsetX, y+c.ProbeOffsetY, cz, FastXYFeedrate); err != nil {
		return 0, err
	}
	ctx.Planner.WaitEmpty()

	n := c.Smoothing
	if n < 1 {
		n = 1
	}

	var sum int64
	allTriggered := true
	for i := 0; i < n; i++ {
		res, err := c.driver.RunProbe(ctx, idle, c.SlowFeedrateMMPerSec, c.MaxDistanceMM, false)
		if err != nil && !errors.Is(err, probe.ErrNotTriggered) {
			return 0, err
		}
		allTriggered = allTriggered && res.Triggered

		steps := res.StepsAtDecelEnd
		if steps < 0 {
			steps = -steps
		}
		sum += steps

		if err := c.driver.ReturnProbe(ctx, res.StepsAtDecelEnd, false); err != nil {
			return 0, err
		}
	}

	avg := sum / int64(n)
	c.lastSteps = avg
	c.lastTriggered = allTriggered

	if avg < MinSmoothedSteps {
		return avg, fmt.Errorf("%w: got %d, want >= %d", ErrBelowFloor, avg, MinSmoothedSteps)
	}

	return avg, nil
}

// ProbeDistance is ProbeAt expressed in millimeters rather than steps.
func (c *Controller) ProbeDistance(ctx *rctx.Context, idle probe.Idle, x, y float32) (float32, error) {
	steps, err := c.ProbeAt(ctx, idle, x, y)
	if err != nil {
		return 0, err
	}
	return float32(steps) / c.StepsPerMMZ, nil
}

// LastProbe reports the step count and trigger flag from the most
// recent ProbeAt or RunG30 call.
func (c *Controller) LastProbe() (steps int64, triggered bool) {
	return c.lastSteps, c.lastTriggered
}
