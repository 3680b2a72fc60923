// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/hal/uart"
	"github.com/Thermoquad/tidewatch/pkg/rn2483"
	"github.com/Thermoquad/tidewatch/pkg/transport"
)

var discoveryTimeout int

var discoveryCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find RN2483 modems on the serial ports",
	Long: `Probe serial ports for an RN2483 modem. Each port is opened at --baud, sent
the auto-baud training sequence and asked for its firmware version.

With --port only that port is probed; otherwise every port the system lists is.

Examples:
  tidewatch modem discover
  tidewatch modem discover --port /dev/ttyUSB0 --timeout 5

Exit codes:
  0 - Discovery successful (at least one modem found)
  1 - Discovery failed (no modems answered)
  2 - Port enumeration error`,
	RunE: runDiscovery,
}

func init() {
	modemCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 2, "Timeout in seconds for each port")
}

type discoveredModem struct {
	port    string
	version string
	hweui   string
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ports := []string{portName}
	if portName == "" {
		var err error
		ports, err = serial.GetPortsList()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Port enumeration error: %v\n", err)
			os.Exit(2)
		}
	}

	fmt.Printf("Tidewatch - Modem Discovery\n")
	fmt.Printf("Ports: %d @ %d baud\n", len(ports), baudRate)
	fmt.Printf("Timeout: %d seconds per port\n\n", discoveryTimeout)

	found := make([]discoveredModem, 0)
	for _, name := range ports {
		fmt.Printf("Probing %s... ", name)
		conn, err := OpenSerialConnection(name, baudRate)
		if err != nil {
			fmt.Printf("OPEN FAILED: %v\n", err)
			continue
		}
		m, ok := probePort(conn, time.Duration(discoveryTimeout)*time.Second)
		if !ok {
			fmt.Printf("no modem\n")
			continue
		}
		m.port = name
		found = append(found, m)
		fmt.Printf("found\n")
		fmt.Printf("  Firmware: %s\n", m.version)
		fmt.Printf("  Hardware EUI: %s\n", m.hweui)
	}

	// Summary
	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Modems found: %d\n", len(found))
	for _, m := range found {
		fmt.Printf("  %s  %s\n", m.port, m.hweui)
	}

	if len(found) == 0 {
		fmt.Printf("No modems discovered. Check wiring, power and baud rate.\n")
		os.Exit(1)
	}
	return nil
}

// probePort asks the device on conn for its version and closes conn. Link
// faults are expected on ports without a modem and are not reported.
func probePort(conn io.ReadWriteCloser, timeout time.Duration) (discoveredModem, bool) {
	periph := uart.New(conn)
	defer periph.Close()
	timeouts := transport.DefaultTimeouts()
	timeouts.Command = timeout
	timeouts.Response = timeout
	link := transport.New(periph, fault.RaiserFunc(func(fault.Code) {}), transport.Options{Timeouts: timeouts})
	periph.Attach(link)
	periph.Start()

	prev := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(prev)

	modem := rn2483.New(link)
	modem.Init()
	version, st := modem.GetSystemVersion()
	if st != rn2483.DataReturned || !strings.HasPrefix(version, "RN2") {
		return discoveredModem{}, false
	}
	hweui, _ := modem.GetHardwareEUI()
	return discoveredModem{version: version, hweui: hweui}, true
}
