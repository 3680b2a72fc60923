// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package fault implements numbered fault codes and their escalation.
//
// A fault code is a small unsigned integer. Its numeric range identifies the
// subsystem that raised it, and range membership is the only contract other
// subsystems rely on: codes inside the transmission band are never forwarded
// over the radio link.
package fault

import "fmt"

// Code is a numbered fault.
type Code uint8

// Critical faults (0-10)
const (
	ImpossibleState Code = 10
)

// ADC faults (11-13)
const (
	ADCNotReady       Code = 11
	ADCUnknownChannel Code = 12
	ADCConversion     Code = 13
)

// Delay faults occupy 14-17 and interrupt faults 18-19. Nothing on the host
// raises them; they are kept so codes read back from a node classify.

// Accelerometer faults (20-27)
const (
	AccelNotResponding Code = 20
	AccelWrongPartID   Code = 21
	AccelUnknownRange  Code = 22
	AccelUnknownODR    Code = 23
	AccelThreshold     Code = 24
)

// Temperature sensor faults (28-29)
const (
	TempSensorAbsent Code = 28
	TempSensorCRC    Code = 29
)

// Transmission manager faults (30-50)
const (
	JoinFailed Code = 30

	MeasurementsBuffer Code = 31
	MeasurementsEncode Code = 32
	MeasurementsSend   Code = 33

	StormBuffer Code = 34
	StormEncode Code = 35
	StormSend   Code = 36

	CableBuffer Code = 37
	CableEncode Code = 38
	CableSend   Code = 39

	StatusBuffer Code = 40
	StatusEncode Code = 41
	StatusSend   Code = 42

	BootReportBuffer  Code = 43
	BootReportVBAT    Code = 44
	BootReportIntTemp Code = 45
	BootReportExtTemp Code = 46
	BootReportStorm   Code = 47
	BootReportCable   Code = 48
	BootReportStatus  Code = 49
	BootReportSend    Code = 50
)

// Serial transport faults (51-59)
const (
	SyncTimeout            Code = 51
	DMATimeout             Code = 52
	DataResponseTimeout    Code = 53
	CommandResponseTimeout Code = 54
	AwaitResponseTimeout   Code = 55
)

// Band groups fault codes by the subsystem that raises them.
type Band int

const (
	BandCritical Band = iota
	BandADC
	BandDelay
	BandInterrupt
	BandAccelerometer
	BandTempSensor
	BandTransmission
	BandSerialTransport
	BandUnassigned
)

// Band returns the subsystem band the code belongs to.
func (c Code) Band() Band {
	switch {
	case c <= 10:
		return BandCritical
	case c <= 13:
		return BandADC
	case c <= 17:
		return BandDelay
	case c <= 19:
		return BandInterrupt
	case c <= 27:
		return BandAccelerometer
	case c <= 29:
		return BandTempSensor
	case c <= 50:
		return BandTransmission
	case c <= 59:
		return BandSerialTransport
	default:
		return BandUnassigned
	}
}

// Reserved reports whether the code lies in the transmission manager or
// serial transport band. Reserved codes are never forwarded because they can
// be raised from inside the send path itself.
func (c Code) Reserved() bool {
	b := c.Band()
	return b == BandTransmission || b == BandSerialTransport
}

func (b Band) String() string {
	switch b {
	case BandCritical:
		return "critical"
	case BandADC:
		return "adc"
	case BandDelay:
		return "delay"
	case BandInterrupt:
		return "interrupt"
	case BandAccelerometer:
		return "accelerometer"
	case BandTempSensor:
		return "temperature sensor"
	case BandTransmission:
		return "transmission"
	case BandSerialTransport:
		return "serial transport"
	default:
		return "unassigned"
	}
}

func (c Code) String() string {
	return fmt.Sprintf("%d (%s)", uint8(c), c.Band())
}
