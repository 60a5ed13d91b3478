package probe

import "errors"

// Sentinel errors returned by Driver, matching the fault taxonomy of
// spec.md 4.A and 8.3.
var (
	// ErrAlreadyTriggered is returned by RunProbe when the probe pin
	// already reads active at cycle entry (spec.md 8.3, "pin active at
	// start is refused, not silently probed").
	ErrAlreadyTriggered = errors.New("probe: already active at cycle entry")

	// ErrNotTriggered is returned by RunProbe when every actuator stops
	// moving before the probe pin debounces active.
	ErrNotTriggered = errors.New("probe: motion completed without contact")

	// ErrOverrun is returned by RunProbe when deceleration could not stop
	// the axis within decelerate_runout of the trigger point.
	ErrOverrun = errors.New("probe: deceleration exceeded runout distance")

	// ErrHalted is returned by RunProbe and ReturnProbe when the
	// process-wide kill flag was observed at an idle yield.
	ErrHalted = errors.New("probe: halted")

	// ErrConfig is wrapped by Config.Validate failures.
	ErrConfig = errors.New("probe: invalid configuration")
)
