// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"log"

	"github.com/Thermoquad/tidewatch/pkg/lora"
)

// MaxCableReports bounds the cable-broken uplinks sent per boot.
const MaxCableReports = 4

// CableProbe senses the loop running through the mooring cable.
type CableProbe interface {
	Intact() bool
}

// CableMonitor reports a severed cable over the radio together with the
// readings collected so far.
type CableMonitor struct {
	probe   CableProbe
	radio   Radio
	broken  bool
	reports int
}

// NewCableMonitor creates a monitor reading probe and sending with radio.
func NewCableMonitor(probe CableProbe, radio Radio) *CableMonitor {
	return &CableMonitor{probe: probe, radio: radio}
}

// Check samples the probe. A broken cable is reported with the pending batch
// until MaxCableReports uplinks have gone out; Check returns true when it
// sent the batch.
func (c *CableMonitor) Check(ctx context.Context, b *Batch) bool {
	if c.probe.Intact() {
		return false
	}
	if !c.broken {
		log.Printf("node: cable broken")
	}
	c.broken = true
	if c.reports >= MaxCableReports {
		return false
	}
	c.reports++

	if c.radio.Init(ctx) == lora.Joined {
		c.radio.SendCableBroken(true)
		if b.Count > 0 {
			c.radio.SendMeasurements(b.Slices())
		}
	}
	c.radio.Disable()
	return true
}

// Broken reports whether the probe has ever seen the cable open.
func (c *CableMonitor) Broken() bool {
	return c.broken
}

// Reports returns the number of cable-broken uplinks attempted.
func (c *CableMonitor) Reports() int {
	return c.reports
}
