// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import "github.com/Thermoquad/tidewatch/pkg/wake"

// WakeSource is why the node left a sleep.
type WakeSource int

const (
	WakeNone WakeSource = iota
	WakeTimer
	WakeButton
	WakeActivity
	WakeStorm
)

func (w WakeSource) String() string {
	switch w {
	case WakeTimer:
		return "timer"
	case WakeButton:
		return "button"
	case WakeActivity:
		return "activity"
	case WakeStorm:
		return "storm"
	default:
		return "none"
	}
}

// ClassifyWake derives the wake source from the drained causes. A button
// outranks the timer, which outranks the accelerometer. Accelerometer
// activity counts as a storm once more than stormInterrupts interrupts have
// been counted.
func ClassifyWake(ev wake.Event, triggers, stormInterrupts uint16) WakeSource {
	switch {
	case ev.Has(wake.Buttons):
		return WakeButton
	case ev.Has(wake.Timer):
		return WakeTimer
	case ev.Has(wake.Accel):
		if triggers > stormInterrupts {
			return WakeStorm
		}
		return WakeActivity
	default:
		return WakeNone
	}
}
