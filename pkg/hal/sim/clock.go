// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim provides host stand-ins for the node's hardware: sensors, the
// accelerometer, the RTC, buttons, the cable probe, the LED, the modem power
// switch and an RN2483 modem emulator.
package sim

import (
	"context"
	"time"
)

// Clock runs simulated time speed times faster than the wall clock.
type Clock struct {
	speed     float64
	origin    time.Time
	realStart time.Time
}

// NewClock returns a clock starting now. A speed of 1 or less runs in real
// time.
func NewClock(speed float64) *Clock {
	if speed < 1 {
		speed = 1
	}
	now := time.Now()
	return &Clock{speed: speed, origin: now, realStart: now}
}

// Speed returns the time compression factor.
func (c *Clock) Speed() float64 { return c.speed }

// Now returns the simulated time.
func (c *Clock) Now() time.Time {
	return c.origin.Add(time.Duration(float64(time.Since(c.realStart)) * c.speed))
}

// Sleep blocks for d of simulated time.
func (c *Clock) Sleep(d time.Duration) {
	time.Sleep(c.wall(d))
}

// After fires once d of simulated time has passed.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	return time.After(c.wall(d))
}

// Wait blocks for d of simulated time or until ctx is done.
func (c *Clock) Wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(c.wall(d))
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (c *Clock) wall(d time.Duration) time.Duration {
	return time.Duration(float64(d) / c.speed)
}
