package probe

import "fmt"

// UnsetRunout is the sentinel value for Config.DecelerateRunout meaning
// "not configured" (spec.md 4.A).
const UnsetRunout float32 = -1

// Config holds the probe driver's tunables, mirroring the zprobe.* keys
// of spec.md 6 (Command Boundary / config surface).
type Config struct {
	// DebounceCount is the number of consecutive active polls required
	// before a trigger is accepted.
	DebounceCount int

	// SlowFeedrate, FastFeedrate are in mm/s, used as the two candidates
	// run_probe's caller chooses between and as the bounds for
	// ReturnProbe's min(2*slow, fast) formula.
	SlowFeedrate float32
	FastFeedrate float32

	// ReturnFeedrate is the configured retract speed (mm/s). Validate
	// requires it to be positive; no move reads it, since ReturnProbe
	// (including the retract after G30) uses min(2*slow, fast).
	ReturnFeedrate float32

	// ProbeHeight is the configured probe height (mm), the height above
	// the bed a probe cycle starts from; the driver does not read it.
	ProbeHeight float32

	// MaxZ bounds the machine's travel; a negative max_distance request
	// is interpreted as 2*MaxZ (spec.md 8.3).
	MaxZ float32

	// DecelerateOnTrigger selects a controlled deceleration on contact
	// instead of an immediate hard stop.
	DecelerateOnTrigger bool

	// DecelerateRunout is the additional travel (mm) permitted for
	// deceleration to complete after a trigger; UnsetRunout means
	// DecelerateOnTrigger must be false.
	DecelerateRunout float32

	// ReverseZ flips the sign of "downward" for machines whose Z motor
	// wiring is reversed (spec.md 4.A, Open Question on reverse-Z XOR).
	ReverseZ bool

	// Invert flips the probe pin's active sense.
	Invert bool
}

// Validate rejects configurations the driver cannot safely act on.
func (c Config) Validate() error {
	if c.DebounceCount < 0 {
		return fmt.Errorf("%w: debounce_count must be >= 0, got %d", ErrConfig, c.DebounceCount)
	}
	if c.SlowFeedrate <= 0 || c.FastFeedrate <= 0 || c.ReturnFeedrate <= 0 {
		return fmt.Errorf("%w: slow/fast/return feedrate must be > 0", ErrConfig)
	}
	if c.DecelerateOnTrigger && c.DecelerateRunout < 0 {
		return fmt.Errorf("%w: decelerate_on_trigger requires decelerate_runout >= 0", ErrConfig)
	}
	return nil
}
