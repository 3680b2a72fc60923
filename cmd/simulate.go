// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tidewatch/pkg/config"
	"github.com/Thermoquad/tidewatch/pkg/hal/sim"
	"github.com/Thermoquad/tidewatch/pkg/transport"
)

var (
	simSpeed       float64
	simDeniedJoins int
	simStormAt     time.Duration
	simCableAt     time.Duration
	simProbeAbsent bool
	simDuration    time.Duration
	simListen      string
	simTUI         bool
	simLogFile     string
	simTracePath   string
	simTraceSerial bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the node against a simulated modem and sensors",
	Long: `Run the complete node with an emulated RN2483 modem, battery, temperature
probe, accelerometer and mooring cable. Simulated time runs --speed times faster
than wall time, so a 30 minute wake period passes in 30 seconds at --speed 60.

Scenario flags inject a storm or a cable break at a simulated time after start.
With --tui the monitor accepts keys for buttons, storms and cable cuts; with
--listen the same controls are available over HTTP under /sim.

Examples:
  tidewatch simulate --speed 600 --storm-at 2h --cable-break-at 5h
  tidewatch simulate --tui --listen 127.0.0.1:8080
  tidewatch simulate --denied-joins 4 --trace run.cbor`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().Float64Var(&simSpeed, "speed", 60, "Simulated seconds per wall-clock second")
	simulateCmd.Flags().IntVar(&simDeniedJoins, "denied-joins", 0, "Join requests the network refuses before accepting")
	simulateCmd.Flags().DurationVar(&simStormAt, "storm-at", 0, "Simulated time at which a storm starts (0 = never)")
	simulateCmd.Flags().DurationVar(&simCableAt, "cable-break-at", 0, "Simulated time at which the cable breaks (0 = never)")
	simulateCmd.Flags().BoolVar(&simProbeAbsent, "no-probe", false, "Simulate a missing water temperature probe")
	simulateCmd.Flags().DurationVar(&simDuration, "duration", 0, "Stop after this much simulated time (0 = run until interrupted)")
	simulateCmd.Flags().StringVar(&simListen, "listen", "", "Status API address (overrides api.listen)")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Show the monitor TUI")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Write log output here while the TUI runs")
	simulateCmd.Flags().StringVar(&simTracePath, "trace", "", "Record a CBOR trace to this file")
	simulateCmd.Flags().BoolVar(&simTraceSerial, "trace-serial", false, "Include modem serial frames in the trace")
}

// simulationKeys fills in credentials the emulated network accepts when the
// configuration has none.
func simulationKeys(cfg *config.Config) {
	l := &cfg.LoRa
	if l.DevEUI == "" {
		l.DevEUI = sim.ModemHardwareEUI
	}
	if l.AppEUI == "" {
		l.AppEUI = "70B3D57ED0000000"
	}
	if l.AppKey == "" {
		l.AppKey = "2B7E151628AED2A6ABF7158809CF4F3C"
	}
	if l.DevAddr == "" {
		l.DevAddr = "26011B01"
	}
	if l.NwkSKey == "" {
		l.NwkSKey = l.AppKey
	}
	if l.AppSKey == "" {
		l.AppSKey = l.AppKey
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	simulationKeys(cfg)
	if simListen != "" {
		cfg.API.Listen = simListen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := sim.NewClock(simSpeed)
	modem := sim.NewModem(sim.ModemOptions{DeniedJoins: simDeniedJoins})

	traceFile, err := openTrace(simTracePath)
	if err != nil {
		return err
	}
	opts := stackOptions{
		cfg:         cfg,
		clock:       clock,
		periph:      modem,
		attach:      func(link *transport.Transport) { modem.Attach(link) },
		power:       sim.NewPowerSwitch(modem),
		traceSerial: simTraceSerial,
	}
	if traceFile != nil {
		defer traceFile.Close()
		opts.trace = traceFile
	}
	sink := &eventSink{}
	sink.hook(&opts)

	stack := buildNode(ctx, opts)
	stack.sensors.SetProbeAbsent(simProbeAbsent)

	if simDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			clock.Wait(ctx, simDuration)
			cancel()
		}()
	}
	go runScenario(ctx, stack)

	if !simTUI {
		fmt.Printf("Tidewatch - Simulation\n")
		fmt.Printf("Speed: %gx | Wake period: %s\n", clock.Speed(), cfg.NodeConfig().WakePeriod)
		fmt.Printf("Press Ctrl+C to exit\n\n")
	}
	return runNode(ctx, stack, sink, tuiOptions{
		enabled:  simTUI,
		title:    "TIDEWATCH - SIMULATION",
		connInfo: fmt.Sprintf("Emulated RN2483 @ %gx", clock.Speed()),
		logFile:  simLogFile,
	}, nil)
}

// runScenario injects the storm and cable break requested on the command
// line at their simulated times.
func runScenario(ctx context.Context, stack *nodeStack) {
	type step struct {
		at  time.Duration
		act func()
	}
	var steps []step
	if simStormAt > 0 {
		steps = append(steps, step{simStormAt, func() {
			n := int(stack.cfg.NodeConfig().StormInterrupts) + 1
			log.Printf("scenario: storm, %d accelerometer events", n)
			stack.accel.Shake(n)
		}})
	}
	if simCableAt > 0 {
		steps = append(steps, step{simCableAt, func() {
			log.Printf("scenario: cable cut")
			stack.probe.Cut()
		}})
	}
	if simStormAt > simCableAt && simCableAt > 0 {
		steps[0], steps[1] = steps[1], steps[0]
	}

	start := stack.clock.Now()
	for _, s := range steps {
		if wait := s.at - stack.clock.Now().Sub(start); wait > 0 {
			stack.clock.Wait(ctx, wait)
		}
		if ctx.Err() != nil {
			return
		}
		s.act()
	}
}
