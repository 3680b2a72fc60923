// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpp

import (
	"errors"
	"fmt"
)

// Decode errors
var (
	ErrEmpty          = errors.New("lpp: empty payload")
	ErrTruncated      = errors.New("lpp: truncated payload")
	ErrUnknownChannel = errors.New("lpp: unknown channel")
	ErrUnknownType    = errors.New("lpp: unknown data type")
)

// Uplink is a decoded count-prefixed node payload. Values are in volts and
// degrees Celsius.
type Uplink struct {
	Count               int
	BatteryVoltage      []float64
	InternalTemperature []float64
	ExternalTemperature []float64
	StormDetected       []uint8
	CableBroken         []uint8
	Status              []uint8
}

// Decode parses a count-prefixed payload: either a measurement batch or a
// single-value storm, cable or status message.
func Decode(payload []byte) (*Uplink, error) {
	if len(payload) == 0 {
		return nil, ErrEmpty
	}

	n := int(payload[0])
	u := &Uplink{Count: n}
	pos := 1

	for pos < len(payload) {
		if pos+2 > len(payload) {
			return nil, fmt.Errorf("%w: header at offset %d", ErrTruncated, pos)
		}
		channel, typ := payload[pos], payload[pos+1]
		pos += 2

		want, width, ok := channelType(channel)
		if !ok {
			return nil, fmt.Errorf("%w: 0x%02X at offset %d", ErrUnknownChannel, channel, pos-2)
		}
		if typ != want {
			return nil, fmt.Errorf("%w: 0x%02X on channel 0x%02X", ErrUnknownType, typ, channel)
		}
		end := pos + n*width
		if end > len(payload) {
			return nil, fmt.Errorf("%w: channel 0x%02X needs %d bytes, have %d",
				ErrTruncated, channel, n*width, len(payload)-pos)
		}
		values := payload[pos:end]
		pos = end

		switch channel {
		case ChanVBAT:
			u.BatteryVoltage = scaled16(values, 100)
		case ChanIntTemp:
			u.InternalTemperature = scaled16(values, 10)
		case ChanExtTemp:
			u.ExternalTemperature = scaled16(values, 10)
		case ChanStorm:
			u.StormDetected = append([]uint8(nil), values...)
		case ChanCableBroken:
			u.CableBroken = append([]uint8(nil), values...)
		case ChanStatus:
			u.Status = append([]uint8(nil), values...)
		}
	}

	return u, nil
}

func channelType(channel byte) (typ byte, width int, ok bool) {
	switch channel {
	case ChanVBAT:
		return TypeAnalog, 2, true
	case ChanIntTemp, ChanExtTemp:
		return TypeTemperature, 2, true
	case ChanStorm, ChanCableBroken, ChanStatus:
		return TypeDigital, 1, true
	}
	return 0, 0, false
}

func scaled16(b []byte, div float64) []float64 {
	out := make([]float64, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		out = append(out, float64(int16(uint16(b[i])<<8|uint16(b[i+1])))/div)
	}
	return out
}

// Record is one decoded per-channel record. Values holds one element for
// scalar types and three for the accelerometer.
type Record struct {
	Channel byte
	Type    byte
	Values  []float64
}

// DecodeRecords parses a payload made only of per-channel records, such as
// the boot report.
func DecodeRecords(payload []byte) ([]Record, error) {
	if len(payload) == 0 {
		return nil, ErrEmpty
	}

	var records []Record
	pos := 0
	for pos < len(payload) {
		if pos+2 > len(payload) {
			return nil, fmt.Errorf("%w: header at offset %d", ErrTruncated, pos)
		}
		channel, typ := payload[pos], payload[pos+1]
		size := recordSize(typ)
		if size == 0 {
			return nil, fmt.Errorf("%w: 0x%02X at offset %d", ErrUnknownType, typ, pos+1)
		}
		if pos+size > len(payload) {
			return nil, fmt.Errorf("%w: record at offset %d", ErrTruncated, pos)
		}
		v := payload[pos+2 : pos+size]
		pos += size

		r := Record{Channel: channel, Type: typ}
		switch typ {
		case TypeDigital:
			r.Values = []float64{float64(v[0])}
		case TypeAnalog:
			r.Values = scaled16(v, 100)
		case TypeTemperature:
			r.Values = scaled16(v, 10)
		case TypeHumidity:
			r.Values = []float64{float64(v[0]) / 2}
		case TypeAccelerometer:
			r.Values = scaled16(v, 1000)
		case TypePressure:
			r.Values = []float64{float64(uint16(v[0])<<8|uint16(v[1])) / 10}
		}
		records = append(records, r)
	}
	return records, nil
}

func recordSize(typ byte) int {
	switch typ {
	case TypeDigital:
		return SizeDigital
	case TypeAnalog:
		return SizeAnalog
	case TypeTemperature:
		return SizeTemperature
	case TypeHumidity:
		return SizeHumidity
	case TypeAccelerometer:
		return SizeAccelerometer
	case TypePressure:
		return SizePressure
	}
	return 0
}
