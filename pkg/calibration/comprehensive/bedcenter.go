package comprehensive

import (
	"fmt"

	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/rctx"
)

// Homer is the homing capability find_bed_center_height needs. It is
// not part of rctx.Planner because homing belongs to the motion
// subsystem this core treats as out of scope (spec.md 1); callers that
// never exercise find_bed_center_height never need to implement it.
type Homer interface {
	HomeToTop(ctx *rctx.Context) error
}

// bedHeightKey is the bus key find_bed_center_height's result is cached
// under, so repeated calls within a session reuse it (spec.md 4.G, "run
// lazily, once per session").
const bedHeightKey = "bed_center_height"
const probeFromHeightKey = "probe_from_height"

// BedCenterResult reports find_bed_center_height's measurements.
type BedCenterResult struct {
	ProbeFromHeight float32
	BedHeight       float32
}

// FindBedCenterHeight implements spec.md 4.G's find_bed_center_height:
// home to top, fast-probe to establish how far above the configured
// probe height the bed actually sits, re-home, descend by that amount,
// then slow-probe to pin down the exact trigger offset. The caller
// applies the returned BedHeight to gamma_max via the G-code interface
// (spec.md 4.G); this strategy only measures.
func (s *Strategy) FindBedCenterHeight(ctx *rctx.Context, idle probe.Idle, homer Homer, descendFeedrateMMPerSec, configuredProbeHeight float32) (BedCenterResult, error) {
	if v, ok := s.bus.Get(bedHeightKey); ok {
		pfh, _ := s.bus.Get(probeFromHeightKey)
		return BedCenterResult{ProbeFromHeight: pfh, BedHeight: v}, nil
	}

	if err := homer.HomeToTop(ctx); err != nil {
		return BedCenterResult{}, fmt.Errorf("comprehensive: home to top: %w", err)
	}

	measuredSteps, err := s.prober.ProbeAt(ctx, idle, 0, 0)
	if err != nil && !isNotTriggered(err) {
		return BedCenterResult{}, fmt.Errorf("comprehensive: fast-probe to bed: %w", err)
	}
	measuredMM := float32(measuredSteps) / s.cfg.StepsPerMMZ
	probeFromHeight := measuredMM - configuredProbeHeight

	if err := homer.HomeToTop(ctx); err != nil {
		return BedCenterResult{}, fmt.Errorf("comprehensive: re-home: %w", err)
	}

	x, y, z := ctx.Planner.CurrentPosition()
	if err := ctx.Planner.AbsoluteMove(x, y, z-probeFromHeight, descendFeedrateMMPerSec*60); err != nil {
		return BedCenterResult{}, fmt.Errorf("comprehensive: descend to bed: %w", err)
	}
	ctx.Planner.WaitEmpty()

	phttSteps, err := s.prober.ProbeAt(ctx, idle, 0, 0)
	if err != nil && !isNotTriggered(err) {
		return BedCenterResult{}, fmt.Errorf("comprehensive: slow-probe to trigger: %w", err)
	}
	mmProbeHeightToTrigger := float32(phttSteps) / s.cfg.StepsPerMMZ

	bedHeight := probeFromHeight + mmProbeHeightToTrigger + s.cfg.ProbeOffsetZ

	s.bus.Set(bedHeightKey, bedHeight)
	s.bus.Set(probeFromHeightKey, probeFromHeight)

	return BedCenterResult{ProbeFromHeight: probeFromHeight, BedHeight: bedHeight}, nil
}
