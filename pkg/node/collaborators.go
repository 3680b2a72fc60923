// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/lora"
	"github.com/Thermoquad/tidewatch/pkg/wake"
)

// Sensors reads the node's analog and one-wire sensors. A failed read raises
// its own fault and returns 0.
type Sensors interface {
	BatteryVoltage() int32      // mV
	InternalTemperature() int32 // m°C
	ExternalTemperature() int32 // m°C
}

// AccelRange is the accelerometer measurement range.
type AccelRange uint8

const (
	Range2G AccelRange = iota
	Range4G
	Range8G
)

func (r AccelRange) String() string {
	switch r {
	case Range2G:
		return "2g"
	case Range4G:
		return "4g"
	case Range8G:
		return "8g"
	default:
		return fmt.Sprintf("range(%d)", uint8(r))
	}
}

// AccelODR is the accelerometer output data rate.
type AccelODR uint8

const (
	ODR12Hz5 AccelODR = iota
	ODR25Hz
	ODR50Hz
	ODR100Hz
	ODR200Hz
	ODR400Hz
)

func (o AccelODR) String() string {
	switch o {
	case ODR12Hz5:
		return "12.5Hz"
	case ODR25Hz:
		return "25Hz"
	case ODR50Hz:
		return "50Hz"
	case ODR100Hz:
		return "100Hz"
	case ODR200Hz:
		return "200Hz"
	case ODR400Hz:
		return "400Hz"
	default:
		return fmt.Sprintf("odr(%d)", uint8(o))
	}
}

// Accelerometer is the motion sensor. Its interrupt handler counts activity
// interrupts and posts wake.Accel.
type Accelerometer interface {
	// Configure sets range, data rate and the activity threshold in milli-g.
	// An unknown range or rate raises its configuration fault.
	Configure(r AccelRange, odr AccelODR, thresholdMilliG uint16) bool
	EnableMeasurement(on bool)
	AcknowledgeInterrupt()
	TriggerCounter() uint16
	ClearTriggerCounter()
}

// Sleeper blocks the control loop.
type Sleeper interface {
	// Delay waits d with the CPU busy.
	Delay(ctx context.Context, d time.Duration)
	// Sleep waits d in low power and returns early on any wake cause. The
	// RTC posts wake.Timer when d runs out. It returns the time slept.
	Sleep(ctx context.Context, d time.Duration) time.Duration
}

// Events is where the control loop collects wake causes.
type Events interface {
	Drain() wake.Event
}

// Indicator is the status LED.
type Indicator interface {
	Set(on bool)
}

// Radio is the part of the transmission manager the node drives.
type Radio interface {
	Init(ctx context.Context) lora.Status
	Disable()
	SendMeasurements(voltages, intTemps, extTemps []int32) bool
	SendStormDetected(detected bool) bool
	SendCableBroken(broken bool) bool
	SendBootReport(voltage, intTemp, extTemp int32, storm, cableBroken bool) bool
}

// CableChecker runs after every measurement. Check reports whether it sent
// the batch, in which case the batch is emptied.
type CableChecker interface {
	Check(ctx context.Context, b *Batch) bool
	Broken() bool
}
