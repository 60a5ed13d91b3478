package geom

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/itohio/deltacal/pkg/bus"
)

// PositionPort is the slice of the planner the Facade needs to force a
// forward-kinematics re-sync after a geometry write (spec.md 4.D,
// Design Note 9.4's "absolute_machine_move").
type PositionPort interface {
	CurrentPosition() (x, y, z float32)
	AbsoluteMove(x, y, z, feedrateMMPerMin float32) error
}

const trimKeyPrefix = "trim."

// normalizeZeroTolerance is the float32 tolerance below which a
// normalized trim is snapped to exactly 0, so that repeated
// normalization passes don't accumulate float noise around the tower
// that held the maximum trim.
const normalizeZeroTolerance float32 = 1e-4

func trimKey(tower int) string {
	return fmt.Sprintf("%s%d", trimKeyPrefix, tower)
}

// ResyncFeedrate is the feedrate used for the no-op reset move that
// forces the arm solution to re-evaluate forward kinematics. It is
// deliberately slow: the move is zero-distance in Cartesian space, the
// feedrate only matters if a caller's planner validates it.
const ResyncFeedrate float32 = 3000

// Facade is the Geometry Facade of spec.md 4.D.
type Facade struct {
	solution ArmSolution
	position PositionPort
	trims    *bus.Bus
	dirty    bool
}

// NewFacade builds a Facade over solution and position, with trims
// stored in trimBus. Initial trims are zero unless the bus already has
// values, matching spec.md 4.E's "keep" mode.
func NewFacade(solution ArmSolution, position PositionPort, trimBus *bus.Bus) *Facade {
	return &Facade{solution: solution, position: position, trims: trimBus}
}

// Get reads a named geometric scalar without side effects.
func (f *Facade) Get(p Param) (float32, error) {
	return f.solution.Get(p)
}

// Set writes a named geometric scalar, marks the geometry dirty, and
// re-syncs position so the next planned motion sees no step discontinuity
// (spec.md 3, "Invariants").
func (f *Facade) Set(p Param, value float32) error {
	if err := f.solution.Set(p, value); err != nil {
		return fmt.Errorf("geom: set %c: %w", p, err)
	}
	f.dirty = true
	return f.resync()
}

// Trim reads tower's endstop trim (mm), defaulting to 0 if never set.
func (f *Facade) Trim(tower int) float32 {
	return f.trims.GetOr(trimKey(tower), 0)
}

// SetTrim writes tower's endstop trim and re-syncs position; per spec.md
// 4.D, "If the setter is called with endstop offsets changing, the reset
// must apply the offset as well" — resync happens unconditionally here,
// same as Set.
func (f *Facade) SetTrim(tower int, value float32) error {
	f.trims.Set(trimKey(tower), value)
	f.dirty = true
	return f.resync()
}

// NormalizeTrim subtracts the maximum trim from all three towers so that
// max(trim) == 0 (spec.md 3, "Endstop trim is normalized after each
// leveling pass"); a positive trim would "grind belt" and is forbidden
// after normalization, though it may exist transiently during iteration.
func (f *Facade) NormalizeTrim() error {
	max := f.Trim(0)
	for i := 1; i < 3; i++ {
		if t := f.Trim(i); t > max {
			max = t
		}
	}
	for i := 0; i < 3; i++ {
		normalized := f.Trim(i) - max
		if nearZero(normalized, normalizeZeroTolerance) {
			normalized = 0
		}
		if err := f.SetTrim(i, normalized); err != nil {
			return err
		}
	}
	return nil
}

// MaxTrimDeviation returns max(trim) - min(trim) across the three
// towers, used by the invariant check in spec.md 8.2.
func (f *Facade) MaxTrimDeviation() float32 {
	min, max := f.Trim(0), f.Trim(0)
	for i := 1; i < 3; i++ {
		t := f.Trim(i)
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}
	return max - min
}

// Dirty reports whether any geometric scalar has changed since the last
// successful endstop+radius calibration pair.
func (f *Facade) Dirty() bool {
	return f.dirty
}

// MarkClean clears the dirty flag; callers must only do so after both an
// endstop-trim calibration and a delta-radius calibration have succeeded
// in sequence (spec.md 3, "Lifecycle").
func (f *Facade) MarkClean() {
	f.dirty = false
}

// resync performs the "no-op" Cartesian move that forces the arm
// solution to re-evaluate forward kinematics from the current actuator
// positions, so the next planned motion does not exhibit a step
// discontinuity (spec.md 3, 4.D).
func (f *Facade) resync() error {
	x, y, z := f.position.CurrentPosition()
	return f.position.AbsoluteMove(x, y, z, ResyncFeedrate)
}

// nearZero reports whether v is within tol of zero, used by callers
// checking trim normalization with float tolerance.
func nearZero(v, tol float32) bool {
	return math32.Abs(v) <= tol
}
