// Package probetest provides a deterministic simulated probe Pin for
// exercising pkg/probe without a real switch.
package probetest

// Pin is a settable boolean probe switch implementing probe.Pin.
type Pin struct {
	active bool
}

// NewPin returns an inactive Pin.
func NewPin() *Pin {
	return &Pin{}
}

// Read implements probe.Pin.
func (p *Pin) Read() bool {
	return p.active
}

// SetActive sets the pin's raw (pre-inversion) electrical state.
func (p *Pin) SetActive(active bool) {
	p.active = active
}
