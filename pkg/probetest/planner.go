package probetest

// Planner is a deterministic in-memory rctx.Planner recording every move
// issued, for asserting ReturnProbe's retreat direction and feedrate.
type Planner struct {
	X, Y, Z float32

	RelativeCalls []RelativeMove
	WaitCalls     int
}

// RelativeMove captures one RelativeMove call's arguments.
type RelativeMove struct {
	DX, DY, DZ, FeedrateMMPerMin float32
}

// NewPlanner returns a Planner parked at the origin.
func NewPlanner() *Planner {
	return &Planner{}
}

func (p *Planner) WaitEmpty() {
	p.WaitCalls++
}

func (p *Planner) RelativeMove(dx, dy, dz, feedrateMMPerMin float32) error {
	p.X += dx
	p.Y += dy
	p.Z += dz
	p.RelativeCalls = append(p.RelativeCalls, RelativeMove{dx, dy, dz, feedrateMMPerMin})
	return nil
}

func (p *Planner) AbsoluteMove(x, y, z, feedrateMMPerMin float32) error {
	p.X, p.Y, p.Z = x, y, z
	return nil
}

func (p *Planner) CurrentPosition() (float32, float32, float32) {
	return p.X, p.Y, p.Z
}
