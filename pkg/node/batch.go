// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"time"

	"github.com/Thermoquad/tidewatch/pkg/lpp"
)

// BatchSize is the number of readings sent in one measurement uplink.
const BatchSize = lpp.MaxMeasurements

// Batch collects readings between uplinks. Voltages are in milli-volts,
// temperatures in milli-degrees Celsius.
type Batch struct {
	Voltage [BatchSize]int32
	IntTemp [BatchSize]int32
	ExtTemp [BatchSize]int32
	Count   int
}

// Append stores one reading in the next slot. It refuses a reading once the
// batch is full.
func (b *Batch) Append(voltage, intTemp, extTemp int32) bool {
	if b.Count >= BatchSize {
		return false
	}
	b.Voltage[b.Count] = voltage
	b.IntTemp[b.Count] = intTemp
	b.ExtTemp[b.Count] = extTemp
	b.Count++
	return true
}

// Full reports whether the batch is ready to send.
func (b *Batch) Full() bool {
	return b.Count == BatchSize
}

// Slices returns the stored readings.
func (b *Batch) Slices() (voltages, intTemps, extTemps []int32) {
	return b.Voltage[:b.Count], b.IntTemp[:b.Count], b.ExtTemp[:b.Count]
}

// Reset empties the batch.
func (b *Batch) Reset() {
	*b = Batch{}
}

// SleepAccounting tracks how much of the wake period has passed across sleeps
// cut short by accelerometer activity.
type SleepAccounting struct {
	accumulated time.Duration
}

// Reset starts a new period.
func (a *SleepAccounting) Reset() {
	a.accumulated = 0
}

// Add records the time spent in an interrupted sleep.
func (a *SleepAccounting) Add(elapsed time.Duration) {
	if elapsed > 0 {
		a.accumulated += elapsed
	}
}

// Accumulated returns the time slept so far this period.
func (a *SleepAccounting) Accumulated() time.Duration {
	return a.accumulated
}

// Covers reports whether the accumulated time already spans period.
func (a *SleepAccounting) Covers(period time.Duration) bool {
	return a.accumulated >= period
}

// Remaining returns the part of period not yet slept, never negative.
func (a *SleepAccounting) Remaining(period time.Duration) time.Duration {
	if a.accumulated >= period {
		return 0
	}
	return period - a.accumulated
}
