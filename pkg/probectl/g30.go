package probectl

import (
	"errors"
	"fmt"

	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/rctx"
)

// G30Result is the outcome of a single-probe command, formatted per
// spec.md 4.C: "emit Z:<mm> C:<steps>" on success.
type G30Result struct {
	Triggered bool
	Z         float32
	Steps     int64
}

// String renders the status line the command stream expects.
func (r G30Result) String() string {
	if !r.Triggered {
		return "ZProbe not triggered"
	}
	return fmt.Sprintf("Z:%.4f C:%d", r.Z, r.Steps)
}

// G30 options select what happens to the Z axis after a triggered
// probe and whether the probe direction is reversed.
type G30Options struct {
	Reverse    bool
	FeedrateMM float32 // mm/min, 0 = use controller default
	OverrideZ  *float32
}

// RunG30 implements the G30 single-probe command: wait for the planner
// to drain, run one probe cycle, and either reset Z to a caller-supplied
// value or return to the pre-probe position.
func (c *Controller) RunG30(ctx *rctx.Context, idle probe.Idle, opt G30Options) (G30Result, error) {
	ctx.Planner.WaitEmpty()

	feedrateMMPerSec := c.SlowFeedrateMMPerSec
	if opt.FeedrateMM > 0 {
		feedrateMMPerSec = opt.FeedrateMM / 60
	}

	res, err := c.driver.RunProbe(ctx, idle, feedrateMMPerSec, c.MaxDistanceMM, opt.Reverse)
	if err != nil && !errors.Is(err, probe.ErrNotTriggered) {
		return G30Result{}, err
	}

	c.lastTriggered = res.Triggered
	if !res.Triggered {
		c.lastSteps = 0
		return G30Result{Triggered: false}, nil
	}

	steps := res.StepsAtDecelEnd
	if steps < 0 {
		steps = -steps
	}
	c.lastSteps = steps

	if err := c.driver.ReturnProbe(ctx, steps, opt.Reverse); err != nil {
		return G30Result{}, err
	}

	zMM := float32(steps) / c.StepsPerMMZ

	if opt.OverrideZ != nil {
		x, y, _ := ctx.Planner.CurrentPosition()
		if err := ctx.Planner.AbsoluteMove(x, y, *opt.OverrideZ, FastXYFeedrate); err != nil {
			return G30Result{}, err
		}
	}

	return G30Result{Triggered: true, Z: zMM, Steps: steps}, nil
}
