// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpp

import (
	"fmt"
	"strings"
)

// FormatUplink formats a decoded count-prefixed payload.
func FormatUplink(u *Uplink) string {
	var b strings.Builder
	fmt.Fprintf(&b, "count=%d\n", u.Count)
	formatFloats(&b, "  VBAT", u.BatteryVoltage, "%.2f V")
	formatFloats(&b, "  INT_TEMP", u.InternalTemperature, "%.1f °C")
	formatFloats(&b, "  EXT_TEMP", u.ExternalTemperature, "%.1f °C")
	formatBytes(&b, "  STORM", u.StormDetected)
	formatBytes(&b, "  CABLE_BROKEN", u.CableBroken)
	formatBytes(&b, "  STATUS", u.Status)
	return b.String()
}

// FormatRecords formats per-channel records, one per line.
func FormatRecords(records []Record) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "  %s (0x%02X) %s:", FormatChannel(r.Channel), r.Channel, FormatType(r.Type))
		for _, v := range r.Values {
			fmt.Fprintf(&b, " %g", v)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatChannel returns the name of a channel.
func FormatChannel(channel byte) string {
	switch channel {
	case ChanDigital:
		return "DIGITAL"
	case ChanAnalog:
		return "ANALOG"
	case ChanTemperature:
		return "TEMPERATURE"
	case ChanHumidity:
		return "HUMIDITY"
	case ChanAccelerometer:
		return "ACCELEROMETER"
	case ChanPressure:
		return "PRESSURE"
	case ChanVBAT:
		return "VBAT"
	case ChanIntTemp:
		return "INT_TEMP"
	case ChanExtTemp:
		return "EXT_TEMP"
	case ChanStorm:
		return "STORM"
	case ChanCableBroken:
		return "CABLE_BROKEN"
	case ChanStatus:
		return "STATUS"
	default:
		return "UNKNOWN"
	}
}

// FormatType returns the name of a data type.
func FormatType(typ byte) string {
	switch typ {
	case TypeDigital:
		return "digital"
	case TypeAnalog:
		return "analog"
	case TypeTemperature:
		return "temperature"
	case TypeHumidity:
		return "humidity"
	case TypeAccelerometer:
		return "accelerometer"
	case TypePressure:
		return "pressure"
	default:
		return fmt.Sprintf("type 0x%02X", typ)
	}
}

func formatFloats(b *strings.Builder, label string, values []float64, format string) {
	if len(values) == 0 {
		return
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf(format, v)
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(parts, ", "))
}

func formatBytes(b *strings.Builder, label string, values []uint8) {
	if len(values) == 0 {
		return
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(parts, ", "))
}
