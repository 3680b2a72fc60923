// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"strings"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lora"
	"github.com/Thermoquad/tidewatch/pkg/node"
	"github.com/Thermoquad/tidewatch/pkg/rn2483"
	"github.com/Thermoquad/tidewatch/pkg/transport"
)

// Normalize canonicalises enum spellings and key case. It must only be
// called after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Accelerometer.Range = strings.ToLower(cfg.Accelerometer.Range)
	cfg.Accelerometer.ODR = strings.ToLower(cfg.Accelerometer.ODR)
	cfg.Fault.Mode = strings.ToLower(cfg.Fault.Mode)

	l := &cfg.LoRa
	l.Activation = strings.ToLower(l.Activation)
	l.DataRate = strings.ToUpper(l.DataRate)
	for _, key := range []*string{&l.DevEUI, &l.AppEUI, &l.AppKey, &l.DevAddr, &l.NwkSKey, &l.AppSKey} {
		*key = strings.ToUpper(strings.TrimSpace(*key))
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// NodeConfig returns the state machine configuration.
func (c *Config) NodeConfig() node.Config {
	firstBoot := true
	if c.Node.FirstBootReport != nil {
		firstBoot = *c.Node.FirstBootReport
	}
	return node.Config{
		WakePeriod:      time.Duration(c.Node.WakePeriodS) * time.Second,
		StormInterrupts: uint16(c.Node.StormInterrupts),
		SettleDelay:     ms(c.Node.SettleDelayMs),
		AccelRange:      accelRanges[strings.ToLower(c.Accelerometer.Range)],
		AccelODR:        accelODRs[strings.ToLower(c.Accelerometer.ODR)],
		AccelThreshold:  uint16(c.Accelerometer.ThresholdMg),
		FirstBootReport: firstBoot,
	}
}

func loraSettings(l LoRaConfig) (rn2483.Settings, error) {
	s := rn2483.DefaultSettings()
	act, err := rn2483.ParseActivation(l.Activation)
	if err != nil {
		return s, err
	}
	dr, err := rn2483.ParseDataRate(l.DataRate)
	if err != nil {
		return s, err
	}
	s.Activation = act
	s.DataRate = dr
	s.DevEUI = strings.ToUpper(l.DevEUI)
	s.AppEUI = strings.ToUpper(l.AppEUI)
	s.AppKey = strings.ToUpper(l.AppKey)
	s.DevAddr = strings.ToUpper(l.DevAddr)
	s.NwkSKey = strings.ToUpper(l.NwkSKey)
	s.AppSKey = strings.ToUpper(l.AppSKey)
	s.OutputPower = l.PowerDBm
	s.Port = uint8(l.Port)
	return s, nil
}

// LoRaOptions returns the transmission manager options. OnUplink is left
// for the caller.
func (c *Config) LoRaOptions() lora.Options {
	s, _ := loraSettings(c.LoRa)
	return lora.Options{
		Settings:       s,
		MaxJoinRetries: c.LoRa.JoinRetries,
		JoinBackoff:    ms(c.LoRa.JoinBackoffMs),
	}
}

// Timeouts returns the serial transport budgets.
func (c *Config) Timeouts() transport.Timeouts {
	t := c.Transport
	return transport.Timeouts{
		Sync:     ms(t.SyncTimeoutMs),
		DMA:      ms(t.DMATimeoutMs),
		Command:  ms(t.CommandTimeoutMs),
		Data:     ms(t.DataTimeoutMs),
		Response: ms(t.ResponseTimeoutMs),
	}
}

// FaultOptions returns the escalator options. The indicator is left for the
// caller.
func (c *Config) FaultOptions() fault.Options {
	return fault.Options{
		Mode:          faultModes[strings.ToLower(c.Fault.Mode)],
		BlinkInterval: ms(c.Fault.BlinkIntervalMs),
	}
}
