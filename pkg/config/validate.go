// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/node"
)

var accelRanges = map[string]node.AccelRange{
	"2g": node.Range2G,
	"4g": node.Range4G,
	"8g": node.Range8G,
}

var accelODRs = map[string]node.AccelODR{
	"12.5hz": node.ODR12Hz5,
	"25hz":   node.ODR25Hz,
	"50hz":   node.ODR50Hz,
	"100hz":  node.ODR100Hz,
	"200hz":  node.ODR200Hz,
	"400hz":  node.ODR400Hz,
}

var faultModes = map[string]fault.Mode{
	"local":   fault.ModeLocal,
	"forward": fault.ModeForward,
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the configuration. It does not modify cfg. The LoRa
// credentials are checked only when requireKeys is set, since a simulated
// network accepts any keys.
func Validate(cfg *Config, requireKeys bool) error {
	n := cfg.Node
	if n.WakePeriodS < 2 {
		return invalid("node.wake_period_s must be at least 2, got %d", n.WakePeriodS)
	}
	if n.StormInterrupts < 1 || n.StormInterrupts > 0xFFFF {
		return invalid("node.storm_interrupts out of range: %d", n.StormInterrupts)
	}
	if n.SettleDelayMs < 0 {
		return invalid("node.settle_delay_ms is negative")
	}

	a := cfg.Accelerometer
	if _, ok := accelRanges[strings.ToLower(a.Range)]; !ok {
		return invalid("accelerometer.range %q (want 2g, 4g or 8g)", a.Range)
	}
	if _, ok := accelODRs[strings.ToLower(a.ODR)]; !ok {
		return invalid("accelerometer.odr %q", a.ODR)
	}
	if a.ThresholdMg < 1 || a.ThresholdMg > 0xFFFF {
		return invalid("accelerometer.threshold_mg out of range: %d", a.ThresholdMg)
	}

	l := cfg.LoRa
	if l.JoinRetries < 1 {
		return invalid("lora.join_retries must be at least 1")
	}
	if l.JoinBackoffMs < 0 {
		return invalid("lora.join_backoff_ms is negative")
	}
	if l.Port < 1 || l.Port > 223 {
		return invalid("lora.port %d out of range 1-223", l.Port)
	}
	if _, err := loraSettings(l); err != nil {
		return invalid("lora: %v", err)
	}
	if requireKeys {
		s, _ := loraSettings(l)
		if err := s.Validate(); err != nil {
			return invalid("lora: %v", err)
		}
	}

	t := cfg.Transport
	for name, v := range map[string]int{
		"sync_timeout_ms":     t.SyncTimeoutMs,
		"dma_timeout_ms":      t.DMATimeoutMs,
		"command_timeout_ms":  t.CommandTimeoutMs,
		"data_timeout_ms":     t.DataTimeoutMs,
		"response_timeout_ms": t.ResponseTimeoutMs,
	} {
		if v <= 0 {
			return invalid("transport.%s must be positive, got %d", name, v)
		}
	}

	if _, ok := faultModes[strings.ToLower(cfg.Fault.Mode)]; !ok {
		return invalid("fault.mode %q (want local or forward)", cfg.Fault.Mode)
	}
	if cfg.Fault.BlinkIntervalMs <= 0 {
		return invalid("fault.blink_interval_ms must be positive")
	}
	return nil
}
