package gcode

import (
	"context"
	"errors"
	"fmt"

	"github.com/soypat/go-maquina"

	"github.com/itohio/deltacal/pkg/calibration/comprehensive"
	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/probectl"
	"github.com/itohio/deltacal/pkg/rctx"
)

// machineState is the data every maquina.State shares; the dispatcher
// itself is the source of truth for halted-ness (via rctx.Context), so
// this only exists to give the state machine a payload type, matching
// the shared-singleton-pointer pattern of the three-D-printer example
// in the go-maquina documentation.
type machineState struct{}

const (
	triggerBeginProbe     maquina.Trigger = "begin probe"
	triggerBeginCalibrate maquina.Trigger = "begin calibrate"
	triggerFinish         maquina.Trigger = "finish"
	triggerAlarm          maquina.Trigger = "alarm"
	triggerClearAlarm     maquina.Trigger = "clear alarm"
)

// Dispatcher implements the Command Boundary of spec.md 6: it parses
// nothing itself (see Parse), but drives every G/M code in the table
// onto the Probe Controller, the three calibration strategies, and
// MachineSettings, gating all of it through an Idle/Probing/
// Calibrating/Alarm state machine built on github.com/soypat/go-maquina.
type Dispatcher struct {
	ctx        *rctx.Context
	idle       probe.Idle
	controller *probectl.Controller
	pin        probe.Pin
	settings   MachineSettings
	homer      comprehensive.Homer

	comprehensive *comprehensive.Strategy

	ProbeRadius float32

	sm                                                   *maquina.StateMachine[*machineState]
	data                                                  *machineState
	stateIdle, stateProbing, stateCalibrating, stateAlarm *maquina.State[*machineState]

	// label mirrors the state machine's current node as a plain string;
	// the dispatcher tracks this itself alongside firing the machine
	// rather than querying it back, since status reporting only needs
	// one of four fixed labels.
	label string
}

const (
	labelIdle        = "idle"
	labelProbing     = "probing"
	labelCalibrating = "calibrating"
	labelAlarm       = "alarm"
)

// NewDispatcher wires a Dispatcher over an already-constructed probe
// controller and comprehensive strategy (both stateful: the controller
// tracks last-probe results, the comprehensive strategy's bus-backed
// bed-height cache must survive across G31 calls). endstop/radius
// strategies are cheap and stateless, so the dispatcher builds one per
// G32 invocation from the command's flags instead of holding them.
func NewDispatcher(ctx *rctx.Context, idle probe.Idle, controller *probectl.Controller, pin probe.Pin, settings MachineSettings, comp *comprehensive.Strategy, homer comprehensive.Homer, probeRadius float32) *Dispatcher {
	d := &Dispatcher{
		ctx:           ctx,
		idle:          idle,
		controller:    controller,
		pin:           pin,
		settings:      settings,
		homer:         homer,
		comprehensive: comp,
		ProbeRadius:   probeRadius,
		data:          &machineState{},
		label:         labelIdle,
	}

	guardNotHalted := maquina.NewGuard("not halted", func(_ context.Context, _ *machineState) error {
		if ctx.Halted() {
			return errors.New("machine is halted")
		}
		return nil
	})

	d.stateIdle = maquina.NewState("idle", d.data)
	d.stateProbing = maquina.NewState("probing", d.data)
	d.stateCalibrating = maquina.NewState("calibrating", d.data)
	d.stateAlarm = maquina.NewState("alarm", d.data)

	d.stateIdle.Permit(triggerBeginProbe, d.stateProbing, guardNotHalted)
	d.stateIdle.Permit(triggerBeginCalibrate, d.stateCalibrating, guardNotHalted)
	d.stateProbing.Permit(triggerFinish, d.stateIdle)
	d.stateCalibrating.Permit(triggerFinish, d.stateIdle)
	d.stateAlarm.Permit(triggerClearAlarm, d.stateIdle)

	d.sm = maquina.NewStateMachine(d.stateIdle)
	d.sm.AlwaysPermit(triggerAlarm, d.stateAlarm)

	return d
}

// State names the dispatcher's current state, for status reporting.
func (d *Dispatcher) State() string {
	return d.label
}

// ClearAlarm leaves the Alarm state and resets the halt flag. No G-code
// in spec.md 6 names an alarm-clear command, so this is exposed only as
// a direct method, matching spec.md 8's Open Question resolution to
// keep alarm recovery outside the G-code surface rather than inventing
// an unlisted code for it.
func (d *Dispatcher) ClearAlarm() error {
	if err := d.sm.FireBg(triggerClearAlarm, d.data); err != nil {
		return fmt.Errorf("gcode: clear alarm: %w", err)
	}
	d.label = labelIdle
	d.ctx.Halt.Store(false)
	return nil
}

// runProbing fires the Idle->Probing->Idle transition around fn,
// raising the alarm state if fn leaves the machine halted.
func (d *Dispatcher) runProbing(fn func() (Result, error)) (Result, error) {
	if err := d.sm.FireBg(triggerBeginProbe, d.data); err != nil {
		return Result{}, fmt.Errorf("gcode: %w", err)
	}
	d.label = labelProbing
	res, err := fn()
	d.sm.FireBg(triggerFinish, d.data)
	d.label = labelIdle
	d.checkAlarm(&res)
	return res, err
}

// runCalibrating is runProbing's Calibrating-state counterpart for
// G29/G31/G32.
func (d *Dispatcher) runCalibrating(fn func() (Result, error)) (Result, error) {
	if err := d.sm.FireBg(triggerBeginCalibrate, d.data); err != nil {
		return Result{}, fmt.Errorf("gcode: %w", err)
	}
	d.label = labelCalibrating
	res, err := fn()
	d.sm.FireBg(triggerFinish, d.data)
	d.label = labelIdle
	d.checkAlarm(&res)
	return res, err
}

func (d *Dispatcher) checkAlarm(res *Result) {
	if !d.ctx.Halted() {
		return
	}
	res.Alarm = true
	res.Lines = append(res.Lines, "ALARM:Probe fail")
	d.sm.FireBg(triggerAlarm, d.data)
	d.label = labelAlarm
}

// Handle dispatches cmd onto the matching handler. Commands issued
// while the machine is in the Alarm state are refused, except through
// ClearAlarm (which bypasses Handle entirely).
func (d *Dispatcher) Handle(cmd Command) (Result, error) {
	if d.label == labelAlarm {
		return Result{}, fmt.Errorf("gcode: %s refused: machine is in alarm state", cmd.Code)
	}

	switch cmd.Code {
	case "G28":
		return d.handleG28(cmd)
	case "G29":
		return d.handleG29(cmd)
	case "G30":
		return d.handleG30(cmd)
	case "G31":
		return d.handleG31(cmd)
	case "G32":
		return d.handleG32(cmd)
	case "G38.2":
		return d.handleG38(cmd, true)
	case "G38.3":
		return d.handleG38(cmd, false)
	case "M119":
		return d.handleM119(cmd)
	case "M204":
		return d.handleM204(cmd)
	case "M500":
		return d.handleM500(cmd)
	case "M503":
		return d.handleM503(cmd)
	case "M665":
		return d.handleM665(cmd)
	case "M670":
		return d.handleM670(cmd)
	default:
		return Result{}, fmt.Errorf("gcode: unrecognized code %q", cmd.Code)
	}
}
