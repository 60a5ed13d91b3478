// Package rctx threads the explicit context handle described in
// SPEC_FULL.md 9.1 through every probing and calibration operation: a
// value each caller constructs once at startup, instead of a
// process-wide singleton.
package rctx

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/itohio/deltacal/pkg/bus"
	"github.com/itohio/deltacal/pkg/geom"
	"github.com/itohio/deltacal/pkg/motion"
)

// Planner is the external collaborator that drains the move queue and
// plans relative/absolute moves (spec.md 4.C, Design Note 9.4's
// "relative_move"/"absolute_machine_move" boundary).
type Planner interface {
	WaitEmpty()
	RelativeMove(dx, dy, dz, feedrateMMPerMin float32) error
	AbsoluteMove(x, y, z, feedrateMMPerMin float32) error
	CurrentPosition() (x, y, z float32)
}

// Context bundles everything an operation needs: the three per-axis
// actuator handles the acceleration tick owns, the geometry facade, the
// shared key-addressed bus, the planner, a scoped logger, and the
// process-wide halt flag.
type Context struct {
	Planner   Planner
	Axes      [3]*motion.AxisState
	Handler   *motion.Handler
	Geometry  *geom.Facade
	Bus       *bus.Bus
	Log       zerolog.Logger
	Halt      *atomic.Bool
}

// New builds a Context from its collaborators.
func New(planner Planner, handler *motion.Handler, axes [3]*motion.AxisState, geometry *geom.Facade, b *bus.Bus, log zerolog.Logger) *Context {
	return &Context{
		Planner:  planner,
		Axes:     axes,
		Handler:  handler,
		Geometry: geometry,
		Bus:      b,
		Log:      log,
		Halt:     &atomic.Bool{},
	}
}

// Halted reports whether the process-wide kill flag has been raised.
func (c *Context) Halted() bool {
	return c.Halt.Load()
}
