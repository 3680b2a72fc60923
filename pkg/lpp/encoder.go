// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpp

// Every Add method either appends its whole record and returns true, or
// returns false and leaves the buffer unchanged.

// AddDigital appends a digital input record on the standard channel.
func (b *Buffer) AddDigital(v uint8) bool {
	return b.put(ChanDigital, TypeDigital, v)
}

// AddAnalog appends an analog input record (0.01 signed) on the standard channel.
func (b *Buffer) AddAnalog(v int16) bool {
	return b.addInt16(ChanAnalog, TypeAnalog, v)
}

// AddTemperature appends a temperature record (0.1 °C signed).
func (b *Buffer) AddTemperature(v int16) bool {
	return b.addInt16(ChanTemperature, TypeTemperature, v)
}

// AddHumidity appends a relative humidity record (0.5 % unsigned).
func (b *Buffer) AddHumidity(v uint8) bool {
	return b.put(ChanHumidity, TypeHumidity, v)
}

// AddAccelerometer appends a three axis record (0.001 G signed per axis).
func (b *Buffer) AddAccelerometer(x, y, z int16) bool {
	return b.put(ChanAccelerometer, TypeAccelerometer,
		byte(x>>8), byte(x), byte(y>>8), byte(y), byte(z>>8), byte(z))
}

// AddPressure appends a barometric pressure record (0.1 hPa unsigned).
func (b *Buffer) AddPressure(v uint16) bool {
	return b.put(ChanPressure, TypePressure, byte(v>>8), byte(v))
}

// AddVBAT appends a single battery voltage record without a count byte.
func (b *Buffer) AddVBAT(v int16) bool {
	return b.addInt16(ChanVBAT, TypeAnalog, v)
}

// AddIntTemp appends a single internal temperature record without a count byte.
func (b *Buffer) AddIntTemp(v int16) bool {
	return b.addInt16(ChanIntTemp, TypeTemperature, v)
}

// AddExtTemp appends a single external temperature record without a count byte.
func (b *Buffer) AddExtTemp(v int16) bool {
	return b.addInt16(ChanExtTemp, TypeTemperature, v)
}

// AddStormRecord appends a bare storm flag record.
func (b *Buffer) AddStormRecord(detected bool) bool {
	return b.put(ChanStorm, TypeDigital, boolByte(detected))
}

// AddCableRecord appends a bare cable-broken flag record.
func (b *Buffer) AddCableRecord(broken bool) bool {
	return b.put(ChanCableBroken, TypeDigital, boolByte(broken))
}

// AddStatusRecord appends a bare status record.
func (b *Buffer) AddStatusRecord(status uint8) bool {
	return b.put(ChanStatus, TypeDigital, status)
}

// AddStormDetected appends a single-value storm message: [1][0x13][0x00][flag].
func (b *Buffer) AddStormDetected(detected bool) bool {
	return b.put(1, ChanStorm, TypeDigital, boolByte(detected))
}

// AddCableBroken appends a single-value cable message: [1][0x14][0x00][flag].
func (b *Buffer) AddCableBroken(broken bool) bool {
	return b.put(1, ChanCableBroken, TypeDigital, boolByte(broken))
}

// AddStatus appends a single-value status message: [1][0x15][0x00][status].
func (b *Buffer) AddStatus(status uint8) bool {
	return b.put(1, ChanStatus, TypeDigital, status)
}

// AddMeasurements appends the batched layout:
//
//	[n][0x10][0x02][n x vbat][0x11][0x67][n x int temp][0x12][0x67][n x ext temp]
//
// Inputs are milli-volts and milli-degrees. All three slices must hold the
// same number of readings, at most MaxMeasurements.
func (b *Buffer) AddMeasurements(voltages, intTemps, extTemps []int32) bool {
	n := len(voltages)
	if n > MaxMeasurements || len(intTemps) != n || len(extTemps) != n {
		return false
	}
	if MeasurementsSize(n) > b.Space() {
		return false
	}

	record := make([]byte, 0, MeasurementsSize(n))
	record = append(record, byte(n))
	record = appendGroup(record, ChanVBAT, TypeAnalog, voltages, VoltageDivisor)
	record = appendGroup(record, ChanIntTemp, TypeTemperature, intTemps, TemperatureDivisor)
	record = appendGroup(record, ChanExtTemp, TypeTemperature, extTemps, TemperatureDivisor)
	return b.put(record...)
}

func appendGroup(dst []byte, channel, typ byte, values []int32, divisor int32) []byte {
	dst = append(dst, channel, typ)
	for _, v := range values {
		s := Scale(v, divisor)
		dst = append(dst, byte(s>>8), byte(s))
	}
	return dst
}

func (b *Buffer) addInt16(channel, typ byte, v int16) bool {
	return b.put(channel, typ, byte(v>>8), byte(v))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// Scale divides a milli-unit value down to wire precision, rounding half
// away from zero, and truncates the result to 16 bits.
func Scale(v, divisor int32) int16 {
	q := v / divisor
	r := v % divisor
	if r < 0 {
		r = -r
	}
	if 2*r >= divisor {
		if v < 0 {
			q--
		} else {
			q++
		}
	}
	return int16(q)
}

// VoltageValue converts milli-volts to the 0.01 V wire value.
func VoltageValue(mV int32) int16 { return Scale(mV, VoltageDivisor) }

// TemperatureValue converts milli-degrees to the 0.1 °C wire value.
func TemperatureValue(mC int32) int16 { return Scale(mC, TemperatureDivisor) }
