// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tidewatch/pkg/hal/sim"
	"github.com/Thermoquad/tidewatch/pkg/hal/uart"
	"github.com/Thermoquad/tidewatch/pkg/transport"
)

var (
	runTUI         bool
	runLogFile     string
	runTracePath   string
	runTraceSerial bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the node against a real RN2483 modem",
	Long: `Run the node with the RN2483 attached over --port or --url. Sensors, the
accelerometer and the cable probe are simulated on the host in real time; the
LoRaWAN join and every uplink go through the real modem.

The modem supply enable is driven from DTR on serial ports. Credentials come
from the --config file, which is required.

Under systemd set api.notify to send readiness and watchdog notifications.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the monitor TUI")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Write log output here while the TUI runs")
	runCmd.Flags().StringVar(&runTracePath, "trace", "", "Record a CBOR trace to this file")
	runCmd.Flags().BoolVar(&runTraceSerial, "trace-serial", false, "Include modem serial frames in the trace")
}

func runRun(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("--config is required for run")
	}
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	periph := uart.New(conn)
	defer periph.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	traceFile, err := openTrace(runTracePath)
	if err != nil {
		return err
	}
	opts := stackOptions{
		cfg:         cfg,
		clock:       sim.NewClock(1),
		periph:      periph,
		attach:      func(link *transport.Transport) { periph.Attach(link) },
		power:       uart.NewPowerSwitch(conn),
		traceSerial: runTraceSerial,
	}
	if traceFile != nil {
		defer traceFile.Close()
		opts.trace = traceFile
	}
	sink := &eventSink{}
	sink.hook(&opts)

	stack := buildNode(ctx, opts)
	periph.Start()

	// A dead link stops the node; systemd restarts it.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-periph.Done():
			if err := periph.Err(); err != nil {
				fmt.Fprintf(os.Stderr, "modem link lost: %v\n", err)
			}
			cancel()
		case <-ctx.Done():
		}
	}()
	alive := func() bool {
		select {
		case <-periph.Done():
			return false
		default:
			return true
		}
	}

	if !runTUI {
		fmt.Printf("Tidewatch - Node\n")
		fmt.Printf("Connection: %s\n", connInfo)
		fmt.Printf("Press Ctrl+C to exit\n\n")
	}
	return runNode(ctx, stack, sink, tuiOptions{
		enabled:  runTUI,
		title:    "TIDEWATCH - NODE",
		connInfo: connInfo,
		logFile:  runLogFile,
	}, alive)
}
