package gcode

import (
	"errors"
	"fmt"

	"github.com/itohio/deltacal/pkg/calibration"
	"github.com/itohio/deltacal/pkg/calibration/comprehensive"
	"github.com/itohio/deltacal/pkg/calibration/endstop"
	"github.com/itohio/deltacal/pkg/calibration/radius"
	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/probectl"
)

// handleG28 delegates homing to the optional Homer capability. Actual
// homing motion belongs to the motion subsystem this core treats as a
// black box (spec.md 1); when no Homer is wired, G28 is a documented
// no-op rather than an error, matching "Home (delegated)" in spec.md 6.
func (d *Dispatcher) handleG28(cmd Command) (Result, error) {
	return d.runProbing(func() (Result, error) {
		if d.homer == nil {
			return Result{Lines: []string{"[HM] homing delegated externally"}}, nil
		}
		if err := d.homer.HomeToTop(d.ctx); err != nil {
			return Result{}, fmt.Errorf("gcode: G28: %w", err)
		}
		return Result{Lines: []string{"[HM] homed"}}, nil
	})
}

// handleG29 runs the repeatability test of spec.md 4.G: A=accel,
// S=samples, B=debounce, D=decel-on-trigger, E=disable eccentricity,
// P=smoothing, U=fast fr, V=slow fr. Only S and E feed RunRepeatability
// directly; A/B/D/P/U/V configure the probe driver/controller this
// core's Command Boundary does not itself own reconfiguring mid-session
// (they are accepted for G-code table compatibility and otherwise
// ignored; the [RT] line reports only the repeatability statistics, and
// M670 is the documented path for changing probe feedrates).
func (d *Dispatcher) handleG29(cmd Command) (Result, error) {
	return d.runCalibrating(func() (Result, error) {
		res, err := d.comprehensive.RunRepeatability(d.ctx, d.idle, comprehensive.RepeatabilityConfig{
			Samples:             cmd.ArgIntOr('S', 0),
			DisableEccentricity: cmd.Has('E'),
		})
		if err != nil {
			return Result{}, fmt.Errorf("gcode: G29: %w", err)
		}
		return Result{Lines: []string{fmt.Sprintf("[RT] mean:%.1f range:%.4f stddev:%.4f %s",
			res.MeanSteps, res.RangeMM, res.StdDevMM, res.Classification)}}, nil
	})
}

// handleG30 runs the single-probe command of spec.md 6: R=reverse,
// F=feedrate (mm/min), Z=override Z after probe.
func (d *Dispatcher) handleG30(cmd Command) (Result, error) {
	return d.runProbing(func() (Result, error) {
		opt := probectl.G30Options{
			Reverse:    cmd.Has('R'),
			FeedrateMM: cmd.ArgOr('F', 0),
		}
		if z, ok := cmd.Arg('Z'); ok {
			opt.OverrideZ = &z
		}
		res, err := d.controller.RunG30(d.ctx, d.idle, opt)
		if err != nil && !errors.Is(err, probe.ErrNotTriggered) {
			return Result{}, fmt.Errorf("gcode: G30: %w", err)
		}
		return Result{Lines: []string{res.String()}}, nil
	})
}

// g31Action selects which comprehensive-strategy operation G31 invokes
// (spec.md 6 lists G31's flags without naming sub-actions; this is this
// core's resolution of that gap, see DESIGN.md).
type g31Action int

const (
	g31DepthMap g31Action = iota
	g31Heuristic
	g31BedCenterHeight
	g31SegmentedLine
)

// handleG31 runs the comprehensive/heuristic calibration surface of
// spec.md 4.G/6: A selects the sub-action (0=depth map, 1=heuristic
// annealing, 2=find-bed-center-height, 3=segmented-line probe); H=probe
// height (action 2); O=heuristic step size (action 1); P=max iterations
// (action 1); Q=tolerance (action 1); R=probe radius, accepted for
// G-code table compatibility but not applied mid-session (probe_radius
// is a construction-time setting of the comprehensive strategy, see
// DESIGN.md); Y=descend feedrate mm/s (action 2); I, J=line start X/Y
// and K=segment count (action 3, endpoint B taken as the line's
// diametric opposite through the origin, matching spec.md 4.G's
// "tower-to-opposite lines").
func (d *Dispatcher) handleG31(cmd Command) (Result, error) {
	return d.runCalibrating(func() (Result, error) {
		switch g31Action(cmd.ArgIntOr('A', 0)) {
		case g31Heuristic:
			res, err := d.comprehensive.RunHeuristic(d.ctx, d.idle, comprehensive.HeuristicConfig{
				MaxIterations: cmd.ArgIntOr('P', 0),
				StepSize:      cmd.ArgOr('O', 0),
				Tolerance:     cmd.ArgOr('Q', 0),
			})
			if err != nil {
				return Result{}, fmt.Errorf("gcode: G31 heuristic: %w", err)
			}
			return Result{Lines: []string{fmt.Sprintf("[PG] iter:%d kept:%d score:%.4f->%.4f",
				res.Iterations, res.Kept, res.InitialScore, res.FinalScore)}}, nil

		case g31BedCenterHeight:
			if d.homer == nil {
				return Result{}, errors.New("gcode: G31 action 2 requires a homer")
			}
			descendFeedrate := cmd.ArgOr('Y', 5)
			probeHeight := cmd.ArgOr('H', 0)
			res, err := d.comprehensive.FindBedCenterHeight(d.ctx, d.idle, d.homer, descendFeedrate, probeHeight)
			if err != nil {
				return Result{}, fmt.Errorf("gcode: G31 bed-center-height: %w", err)
			}
			d.settings.SetGammaMax(res.BedHeight)
			return Result{Lines: []string{fmt.Sprintf("[BH] probe_from_height:%.4f bed_height:%.4f", res.ProbeFromHeight, res.BedHeight)}}, nil

		case g31SegmentedLine:
			ax, ay := cmd.ArgOr('I', 0), cmd.ArgOr('J', 0)
			n := cmd.ArgIntOr('K', 4)
			a := calibration.Point{X: ax, Y: ay}
			b := calibration.Point{X: -ax, Y: -ay}
			res, err := d.comprehensive.ProbeSegmentedLine(d.ctx, d.idle, a, b, n)
			if err != nil {
				return Result{}, fmt.Errorf("gcode: G31 segmented line: %w", err)
			}
			return Result{Lines: []string{fmt.Sprintf("[PT] points:%d", len(res.Points))}}, nil

		default:
			res, err := d.comprehensive.AcquireDepthMap(d.ctx, d.idle)
			if err != nil {
				return Result{}, fmt.Errorf("gcode: G31 depth map: %w", err)
			}
			return Result{Lines: []string{fmt.Sprintf("[DM] best:%.4f worst:%.4f", res.BestMM, res.WorstMM)}}, nil
		}
	})
}

// handleG32 runs the standard calibration compound of spec.md 4.G/6:
// endstop-trim strategy then delta-radius strategy, clearing the dirty
// flag on full success. R skips endstops, E skips radius, I=target,
// J=probe_radius, K=keep current trim.
func (d *Dispatcher) handleG32(cmd Command) (Result, error) {
	return d.runCalibrating(func() (Result, error) {
		if d.ctx.Geometry.Dirty() {
			return Result{}, errors.New("gcode: G32: require_clean_geometry violated: geometry has unsaved changes")
		}

		probeRadius := cmd.ArgOr('J', d.ProbeRadius)
		target := cmd.ArgOr('I', 0)
		keep := cmd.Has('K')

		var lines []string
		ranEndstop := false
		ranRadius := false

		if !cmd.Has('R') {
			es := endstop.New(d.controller, d.ctx.Geometry, endstop.Config{ProbeRadius: probeRadius, Target: target, Keep: keep})
			res, err := es.Run(d.ctx, d.idle)
			if err != nil {
				return Result{}, fmt.Errorf("gcode: G32 endstop pass: %w", err)
			}
			ranEndstop = true
			lines = append(lines, fmt.Sprintf("[ES] iter:%d dev:%.4f trims:%.4f,%.4f,%.4f",
				res.Iterations, res.Deviation, res.Trims[0], res.Trims[1], res.Trims[2]))
		}

		if !cmd.Has('E') {
			rs := radius.New(d.controller, d.ctx.Geometry, radius.Config{ProbeRadius: probeRadius, Target: target})
			res, err := rs.Run(d.ctx, d.idle)
			if err != nil {
				return Result{}, fmt.Errorf("gcode: G32 radius pass: %w", err)
			}
			ranRadius = true
			lines = append(lines, fmt.Sprintf("[DR] iter:%d dev:%.4f delta_radius:%.4f",
				res.Iterations, res.Deviation, res.DeltaRadius))
		}

		if ranEndstop && ranRadius {
			d.ctx.Geometry.MarkClean()
		}
		return Result{Lines: lines}, nil
	})
}

// handleG38 runs the straight-probe commands: G38.2 (alarmOnMiss=true)
// and G38.3 (alarmOnMiss=false). Flags mirror probectl.Axis selection
// via X/Y/Z presence, distance via that same letter's value, F=feedrate
// (mm/s), R=reverse.
func (d *Dispatcher) handleG38(cmd Command, alarmOnMiss bool) (Result, error) {
	return d.runProbing(func() (Result, error) {
		axis, distance, err := g38Axis(cmd)
		if err != nil {
			return Result{}, fmt.Errorf("gcode: %w", err)
		}
		feedrate := cmd.ArgOr('F', 5)
		res, err := d.controller.RunStraightProbe(d.ctx, d.idle, d.pin, axis, distance, feedrate, cmd.Has('R'), alarmOnMiss)
		if err != nil && !errors.Is(err, probectl.ErrProbeFailure) {
			return Result{}, fmt.Errorf("gcode: straight probe: %w", err)
		}
		return Result{Lines: []string{res.String()}}, err
	})
}

func g38Axis(cmd Command) (probectl.Axis, float32, error) {
	if v, ok := cmd.Arg('X'); ok {
		return probectl.AxisX, v, nil
	}
	if v, ok := cmd.Arg('Y'); ok {
		return probectl.AxisY, v, nil
	}
	if v, ok := cmd.Arg('Z'); ok {
		return probectl.AxisZ, v, nil
	}
	return 0, 0, errors.New("G38.2/G38.3 require an X, Y or Z distance")
}

// handleM119 reports the probe pin's debounced-free raw state.
func (d *Dispatcher) handleM119(cmd Command) (Result, error) {
	state := "OPEN"
	if d.pin.Read() {
		state = "TRIGGERED"
	}
	return Result{Lines: []string{fmt.Sprintf("[TQ] probe:%s", state)}}, nil
}

// handleM204 sets the planner acceleration (S<a>).
func (d *Dispatcher) handleM204(cmd Command) (Result, error) {
	a, ok := cmd.Arg('S')
	if !ok {
		return Result{}, errors.New("gcode: M204 requires S<acceleration>")
	}
	d.settings.SetAcceleration(a)
	return Result{Lines: []string{fmt.Sprintf("[TQ] acceleration:%.2f", a)}}, nil
}

// handleM500 is a no-op in this core: persistence of settings is
// external (spec.md 6, "Persisted state... external to this core").
func (d *Dispatcher) handleM500(cmd Command) (Result, error) {
	return Result{Lines: []string{"[TQ] save delegated externally"}}, nil
}

// handleM503 prints the current settings, including the M670 line
// spec.md 6 documents: "M670 S<slow> K<fast> R<return> Z<max> H<height>".
func (d *Dispatcher) handleM503(cmd Command) (Result, error) {
	p := d.settings.ProbeConfig()
	lines := []string{
		fmt.Sprintf("M665 Z%.4f", d.settings.GammaMax()),
		fmt.Sprintf("M204 S%.2f", d.settings.Acceleration()),
		fmt.Sprintf("M670 S%.2f K%.2f R%.2f Z%.4f H%.4f", p.SlowFeedrate, p.FastFeedrate, p.ReturnFeedrate, p.MaxDistance, p.ProbeHeight),
	}
	return Result{Lines: lines}, nil
}

// handleM665 sets gamma-max, the machine's bed height (Z<h>).
func (d *Dispatcher) handleM665(cmd Command) (Result, error) {
	z, ok := cmd.Arg('Z')
	if !ok {
		return Result{}, errors.New("gcode: M665 requires Z<gamma_max>")
	}
	d.settings.SetGammaMax(z)
	return Result{Lines: []string{fmt.Sprintf("[TQ] gamma_max:%.4f", z)}}, nil
}

// handleM670 sets probe feedrates, max distance, probe height, and the
// invert override: S=slow, K=fast, R=return, Z=max distance, H=height,
// I=invert.
func (d *Dispatcher) handleM670(cmd Command) (Result, error) {
	p := d.settings.ProbeConfig()
	p.SlowFeedrate = cmd.ArgOr('S', p.SlowFeedrate)
	p.FastFeedrate = cmd.ArgOr('K', p.FastFeedrate)
	p.ReturnFeedrate = cmd.ArgOr('R', p.ReturnFeedrate)
	p.MaxDistance = cmd.ArgOr('Z', p.MaxDistance)
	p.ProbeHeight = cmd.ArgOr('H', p.ProbeHeight)
	if cmd.Has('I') {
		p.Invert = cmd.ArgOr('I', 0) != 0
	}
	d.settings.SetProbeConfig(p)
	return Result{Lines: []string{"[TQ] probe settings updated"}}, nil
}
