// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/node"
	"github.com/Thermoquad/tidewatch/pkg/wake"
)

// Accelerometer models an activity-detecting accelerometer. Shake delivers
// activity interrupts the way the INT1 line would.
type Accelerometer struct {
	queue  *wake.Queue
	faults fault.Raiser

	counter   atomic.Uint32
	triggered atomic.Bool
	enabled   atomic.Bool

	mu        sync.Mutex
	rng       node.AccelRange
	odr       node.AccelODR
	threshold uint16
}

// NewAccelerometer creates an accelerometer posting to queue.
func NewAccelerometer(queue *wake.Queue, faults fault.Raiser) *Accelerometer {
	return &Accelerometer{queue: queue, faults: faults}
}

// Configure sets range, data rate and activity threshold. An unknown range
// or rate raises its configuration fault and leaves the settings unchanged.
func (a *Accelerometer) Configure(r node.AccelRange, odr node.AccelODR, thresholdMilliG uint16) bool {
	if r > node.Range8G {
		a.faults.Raise(fault.AccelUnknownRange)
		return false
	}
	if odr > node.ODR400Hz {
		a.faults.Raise(fault.AccelUnknownODR)
		return false
	}
	a.mu.Lock()
	a.rng, a.odr, a.threshold = r, odr, thresholdMilliG
	a.mu.Unlock()
	log.Printf("sim: accelerometer %s, %s, threshold %d mg", r, odr, thresholdMilliG)
	return true
}

// EnableMeasurement switches between standby and measurement mode.
func (a *Accelerometer) EnableMeasurement(on bool) {
	a.enabled.Store(on)
}

// AcknowledgeInterrupt clears the pending interrupt.
func (a *Accelerometer) AcknowledgeInterrupt() {
	a.triggered.Store(false)
}

// Triggered reports whether an interrupt is unacknowledged.
func (a *Accelerometer) Triggered() bool {
	return a.triggered.Load()
}

// TriggerCounter returns the number of interrupts since the last clear.
func (a *Accelerometer) TriggerCounter() uint16 {
	n := a.counter.Load()
	if n > 0xFFFF {
		return 0xFFFF
	}
	return uint16(n)
}

// ClearTriggerCounter zeroes the interrupt counter.
func (a *Accelerometer) ClearTriggerCounter() {
	a.counter.Store(0)
}

// Shake delivers n activity interrupts. Shakes in standby are ignored.
func (a *Accelerometer) Shake(n int) {
	if !a.enabled.Load() {
		return
	}
	for i := 0; i < n; i++ {
		a.counter.Add(1)
		a.triggered.Store(true)
		a.queue.Post(wake.Accel)
	}
}
