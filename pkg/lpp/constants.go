// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lpp implements the Low Power Payload convention used for the
// node's radio uplinks.
//
// A payload is a sequence of [channel][type][value...] records. Besides the
// standard Cayenne records the node uses its own channels and a batched
// measurement layout that shares one channel/type header across up to six
// readings.
package lpp

// Cayenne data types
const (
	TypeDigital       = 0x00
	TypeAnalog        = 0x02
	TypeTemperature   = 0x67
	TypeHumidity      = 0x68
	TypeAccelerometer = 0x71
	TypePressure      = 0x73
)

// Standard channels, one per data type
const (
	ChanDigital       = 0x01
	ChanAnalog        = 0x02
	ChanTemperature   = 0x03
	ChanHumidity      = 0x04
	ChanAccelerometer = 0x05
	ChanPressure      = 0x06
)

// Node channels
const (
	ChanVBAT        = 0x10
	ChanIntTemp     = 0x11
	ChanExtTemp     = 0x12
	ChanStorm       = 0x13
	ChanCableBroken = 0x14
	ChanStatus      = 0x15
)

// Record sizes including the channel and type bytes
const (
	SizeDigital       = 3
	SizeAnalog        = 4
	SizeTemperature   = 4
	SizeHumidity      = 3
	SizeAccelerometer = 8
	SizePressure      = 4
)

// Payload sizes
const (
	// MaxMeasurements is the number of readings in one batch.
	MaxMeasurements = 6
	// MaxCapacity is the largest application payload accepted at the
	// slowest EU868 data rates.
	MaxCapacity = 51
	// SingleValueSize is a count byte plus one digital record.
	SingleValueSize = 1 + SizeDigital
	// BootReportSize holds one reading of each sensor plus the three flags.
	BootReportSize = SizeAnalog + 2*SizeTemperature + 3*SizeDigital
)

// Divisors from milli-units to wire precision
const (
	VoltageDivisor     = 10  // mV to 0.01 V
	TemperatureDivisor = 100 // m°C to 0.1 °C
)

// MeasurementsSize returns the size of a batched payload holding n readings.
func MeasurementsSize(n int) int {
	return 1 + 3*(2+2*n)
}
