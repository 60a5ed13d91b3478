// Command deltacal hosts the delta-printer calibration core's G-code
// Command Boundary over a serial line, or against an in-process
// simulated machine with -sim for demonstration and bench testing
// without hardware attached. Flag layout and serial-port discovery
// follow itohio-EasyRobot's cmd/manipulator/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/itohio/deltacal/pkg/bus"
	"github.com/itohio/deltacal/pkg/calibration/comprehensive"
	"github.com/itohio/deltacal/pkg/config"
	"github.com/itohio/deltacal/pkg/gcode"
	"github.com/itohio/deltacal/pkg/geom"
	"github.com/itohio/deltacal/pkg/geomtest"
	"github.com/itohio/deltacal/pkg/logger"
	"github.com/itohio/deltacal/pkg/motion"
	"github.com/itohio/deltacal/pkg/motiontest"
	"github.com/itohio/deltacal/pkg/probe"
	"github.com/itohio/deltacal/pkg/probectl"
	"github.com/itohio/deltacal/pkg/probetest"
	"github.com/itohio/deltacal/pkg/rctx"
	"github.com/itohio/deltacal/pkg/transport"
)

func main() {
	help := flag.Bool("help", false, "Show help message")
	listPorts := flag.Bool("list", false, "List available serial ports")
	portName := flag.String("port", "", "Serial port path (e.g. /dev/ttyACM0); empty runs the standard-IO session below")
	baud := flag.Int("baud", 115200, "Serial port baud rate")
	configPath := flag.String("config", "", "Path to a YAML config file; omit to use built-in defaults")
	sim := flag.Bool("sim", true, "Drive the G-code boundary against an in-process simulated machine instead of real actuators (this core ships no hardware Actuator/Pin implementation)")
	flag.Parse()

	if *help {
		fmt.Println("deltacal - delta printer calibration core")
		flag.PrintDefaults()
		return
	}

	if *listPorts {
		ports, err := listSerialPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error listing ports: %v\n", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.NewLoader().Load(*configPath)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("loading config")
		}
		cfg = loaded
	}

	if !*sim {
		logger.Log.Fatal().Msg("non-simulated operation requires a hardware Actuator/Pin implementation this core does not ship; rerun with -sim")
	}

	dispatcher := buildSimulatedDispatcher(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var port transport.Port
	if *portName != "" {
		p, err := transport.Open(transport.Config{Name: *portName, BaudRate: *baud})
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("opening serial port")
		}
		defer p.Close()
		port = p
		logger.Log.Info().Str("port", *portName).Int("baud", *baud).Msg("deltacal listening on serial port")
	} else {
		port = stdio{}
		logger.Log.Info().Msg("deltacal reading G-code from stdin, writing to stdout")
	}

	session := transport.New(port, dispatcher, logger.For("transport"))
	if err := session.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Log.Error().Err(err).Msg("session ended")
	}
}

// stdio adapts os.Stdin/os.Stdout to transport.Port for -port-less runs.
type stdio struct{}

func (stdio) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (stdio) Write(b []byte) (int, error) { return os.Stdout.Write(b) }

// buildSimulatedDispatcher wires a full gcode.Dispatcher over the same
// motiontest/probetest/geomtest doubles the package test suites use,
// giving -sim a machine with believable kinematics (a flat bed at Z=0)
// instead of a no-op stub.
func buildSimulatedDispatcher(cfg config.Config) *gcode.Dispatcher {
	var axes [3]*motion.AxisState
	var acts [3]*motiontest.Actuator
	for i, name := range [3]string{"X", "Y", "Z"} {
		acts[i] = motiontest.NewActuator()
		axes[i] = motion.NewAxisState(name, acts[i], 80, 4000)
	}
	handler := motion.NewHandler(1000, axes[0], axes[1], axes[2])
	planner := probetest.NewPlanner()
	solution := geomtest.NewSolution()
	b := bus.New()
	geometry := geom.NewFacade(solution, planner, b)
	rc := rctx.New(planner, handler, axes, geometry, b, logger.For("machine"))
	pin := probetest.NewPin()

	driverCfg := probe.Config{
		DebounceCount:  cfg.ZProbe.DebounceCount,
		SlowFeedrate:   cfg.ZProbe.SlowFeedrate,
		FastFeedrate:   cfg.ZProbe.FastFeedrate,
		ReturnFeedrate: cfg.ZProbe.ReturnFeedrate,
		MaxZ:           cfg.ZProbe.ProbeHeight + 10,
		Invert:         cfg.ZProbe.Invert,
	}
	driver, err := probe.NewDriver(driverCfg, pin, handler)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("building probe driver")
	}

	ctl := probectl.New(driver)
	ctl.StepsPerMMZ = 80
	ctl.SlowFeedrateMMPerSec = cfg.ZProbe.SlowFeedrate
	ctl.FastFeedrateMMPerSec = cfg.ZProbe.FastFeedrate
	ctl.MaxDistanceMM = cfg.ZProbe.ProbeHeight + 10

	comp := comprehensive.New(ctl, geometry, b, comprehensive.Config{
		ProbeRadius:          cfg.LevelingStrategy.ComprehensiveDelta.ProbeRadius,
		StepsPerMMZ:          80,
		ProbeOffsetZ:         cfg.LevelingStrategy.ComprehensiveDelta.ProbeOffsetZ,
		EccentricityFeedrate: 3000,
	})

	settings := gcode.NewSettings(gcode.ProbeFeedrates{
		SlowFeedrate:   cfg.ZProbe.SlowFeedrate,
		FastFeedrate:   cfg.ZProbe.FastFeedrate,
		ReturnFeedrate: cfg.ZProbe.ReturnFeedrate,
		MaxDistance:    cfg.ZProbe.ProbeHeight + 10,
		ProbeHeight:    cfg.ZProbe.ProbeHeight,
		Invert:         cfg.ZProbe.Invert,
	})
	settings.SetGammaMax(cfg.GammaMax)

	idle := func() {
		handler.Tick()
		for _, a := range acts {
			a.Advance(1.0 / 1000)
		}
		// A perfectly flat simulated bed at Z=0: the pin triggers once
		// the Z actuator has stepped past the probe height.
		pin.SetActive(acts[2].Stepped() <= -int64(cfg.ZProbe.ProbeHeight*80))
	}

	return gcode.NewDispatcher(rc, idle, ctl, pin, settings, comp, nil, cfg.LevelingStrategy.ComprehensiveDelta.ProbeRadius)
}

// listSerialPorts lists character devices under /dev matching common
// USB-serial naming, mirroring cmd/manipulator/main.go's stdlib-only
// port scan.
func listSerialPorts() ([]string, error) {
	var ports []string
	seen := make(map[string]bool)
	for _, pattern := range []string{"/dev/ttyACM*", "/dev/ttyUSB*", "/dev/ttyS*"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			info, err := os.Stat(m)
			if err == nil && info.Mode()&os.ModeCharDevice != 0 {
				ports = append(ports, m)
				seen[m] = true
			}
		}
	}
	return ports, nil
}
