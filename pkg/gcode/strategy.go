package gcode

// MachineSettings is the small set of machine-wide scalars M204/M500/
// M503/M665/M670 read and write that live outside the 11 geometric
// parameters of the Geometry Facade (spec.md 6). A real machine backs
// this with its firmware's own settings store; Settings in machine.go
// is the in-memory implementation this core ships.
type MachineSettings interface {
	GammaMax() float32
	SetGammaMax(mm float32)
	Acceleration() float32
	SetAcceleration(mmPerSec2 float32)
	ProbeConfig() ProbeFeedrates
	SetProbeConfig(ProbeFeedrates)
}

// ProbeFeedrates mirrors the M670 settings line: "M670 S<slow> K<fast>
// R<return> Z<max> H<height>" (spec.md 6).
type ProbeFeedrates struct {
	SlowFeedrate   float32
	FastFeedrate   float32
	ReturnFeedrate float32
	MaxDistance    float32
	ProbeHeight    float32
	Invert         bool
}
