// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tidewatch/pkg/config"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL      string
	wsUsername string

	// Node configuration
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "tidewatch",
	Short: "LoRa buoy and mooring cable monitor",
	Long: `Tidewatch - Firmware logic for a LoRaWAN buoy that samples battery voltage
and water temperature, detects storms from accelerometer activity and reports
a broken mooring cable.

The node runs against an RN2483 modem on a serial port or websocket bridge
(run), or entirely in simulation (simulate). The remaining commands inspect
modem traffic, decode uplink payloads and replay trace files.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 57600]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the TIDEWATCH_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "0.3.0",
	SilenceUsage: true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 57600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Node configuration file (YAML)")
}

// loadConfig reads --config, or returns the defaults when it is unset.
func loadConfig(requireKeys bool) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}
	if err := config.Validate(cfg, requireKeys); err != nil {
		return nil, fmt.Errorf("%s: %w", configName(), err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

func configName() string {
	if configPath == "" {
		return "default configuration"
	}
	return configPath
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
