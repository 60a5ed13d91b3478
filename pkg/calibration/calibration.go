// Package calibration holds the pieces shared by the three calibration
// strategies of spec.md 4.E-4.G: the tower-base test point geometry, the
// sentinel nonconvergence error, and the narrow Prober port each
// strategy drives instead of depending on the full probectl.Controller.
package calibration

import (
	"errors"

	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/rctx"
)

// ErrNonconvergence is returned by a strategy's Run when the iteration
// budget is exhausted before the deviation target is met (spec.md 7,
// "does not halt the machine").
var ErrNonconvergence = errors.New("calibration: failed to converge")

// Point is a Cartesian XY test location in machine coordinates.
type Point struct {
	X, Y float32
}

// sin60 and cos60 are given as exact decimal literals rather than
// computed via math32.Sin/Cos so the three tower points are independent
// of trig rounding at float32 precision.
const sin60 float32 = 0.8660254
const cos60 float32 = 0.5

// TowerPoints returns the three tower-base test points of spec.md 4.E,
// on a circle of the given probe radius, ordered X, Y, Z to match
// geom.TowerRadiusParams and geom.TowerAngleParams.
func TowerPoints(probeRadius float32) [3]Point {
	return [3]Point{
		{-sin60 * probeRadius, -cos60 * probeRadius},
		{sin60 * probeRadius, -cos60 * probeRadius},
		{0, probeRadius},
	}
}

// Prober is the move-probe-return port the strategies need, satisfied
// by *probectl.Controller.
type Prober interface {
	ProbeDistance(ctx *rctx.Context, idle probe.Idle, x, y float32) (float32, error)
}
