// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the node configuration file.
//
// A file is processed in three stages: Load decodes YAML on top of the
// defaults, Validate checks it without changing it, and Normalize canonicalises
// the values Validate accepted.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the whole configuration file.
type Config struct {
	Node          NodeConfig          `yaml:"node"`
	Accelerometer AccelerometerConfig `yaml:"accelerometer"`
	LoRa          LoRaConfig          `yaml:"lora"`
	Transport     TransportConfig     `yaml:"transport"`
	Fault         FaultConfig         `yaml:"fault"`
	API           APIConfig           `yaml:"api"`
}

// ---- NODE ----

type NodeConfig struct {
	WakePeriodS     int   `yaml:"wake_period_s"`
	StormInterrupts int   `yaml:"storm_interrupts"`
	SettleDelayMs   int   `yaml:"settle_delay_ms"`
	FirstBootReport *bool `yaml:"first_boot_report"`
}

// ---- ACCELEROMETER ----

type AccelerometerConfig struct {
	Range       string `yaml:"range"`
	ODR         string `yaml:"odr"`
	ThresholdMg int    `yaml:"threshold_mg"`
}

// ---- LORA ----

type LoRaConfig struct {
	Activation    string `yaml:"activation"`
	DevEUI        string `yaml:"dev_eui"`
	AppEUI        string `yaml:"app_eui"`
	AppKey        string `yaml:"app_key"`
	DevAddr       string `yaml:"dev_addr"`
	NwkSKey       string `yaml:"nwk_s_key"`
	AppSKey       string `yaml:"app_s_key"`
	DataRate      string `yaml:"data_rate"`
	PowerDBm      int    `yaml:"power_dbm"`
	Port          int    `yaml:"port"`
	JoinRetries   int    `yaml:"join_retries"`
	JoinBackoffMs int    `yaml:"join_backoff_ms"`
}

// ---- TRANSPORT ----

type TransportConfig struct {
	SyncTimeoutMs     int `yaml:"sync_timeout_ms"`
	DMATimeoutMs      int `yaml:"dma_timeout_ms"`
	CommandTimeoutMs  int `yaml:"command_timeout_ms"`
	DataTimeoutMs     int `yaml:"data_timeout_ms"`
	ResponseTimeoutMs int `yaml:"response_timeout_ms"`
}

// ---- FAULT ----

type FaultConfig struct {
	Mode            string `yaml:"mode"`
	BlinkIntervalMs int    `yaml:"blink_interval_ms"`
}

// ---- API ----

type APIConfig struct {
	// Listen is the status API address; empty disables the API.
	Listen string `yaml:"listen"`
	// Notify sends readiness and watchdog notifications to systemd.
	Notify bool `yaml:"notify"`
}

// Default returns the configuration used when no file is given. The LoRa
// keys are left empty and must be supplied.
func Default() *Config {
	firstBoot := true
	return &Config{
		Node: NodeConfig{
			WakePeriodS:     1800,
			StormInterrupts: 8,
			SettleDelayMs:   300,
			FirstBootReport: &firstBoot,
		},
		Accelerometer: AccelerometerConfig{
			Range:       "8g",
			ODR:         "12.5hz",
			ThresholdMg: 6000,
		},
		LoRa: LoRaConfig{
			Activation:    "otaa",
			DataRate:      "SF9BW125",
			PowerDBm:      14,
			Port:          1,
			JoinRetries:   5,
			JoinBackoffMs: 5000,
		},
		Transport: TransportConfig{
			SyncTimeoutMs:     10,
			DMATimeoutMs:      2000,
			CommandTimeoutMs:  2000,
			DataTimeoutMs:     10000,
			ResponseTimeoutMs: 10000,
		},
		Fault: FaultConfig{
			Mode:            "forward",
			BlinkIntervalMs: 100,
		},
	}
}

// Load reads path on top of the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
