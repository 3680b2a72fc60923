// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"context"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/wake"
)

// RTC is the low-power timer. Its compare interrupt posts wake.Timer.
type RTC struct {
	clock *Clock
	queue *wake.Queue
}

// NewRTC creates an RTC on clock posting to queue.
func NewRTC(clock *Clock, queue *wake.Queue) *RTC {
	return &RTC{clock: clock, queue: queue}
}

// Delay waits d without sleeping.
func (r *RTC) Delay(ctx context.Context, d time.Duration) {
	r.clock.Wait(ctx, d)
}

// Sleep waits until d has passed or any wake cause is pending, and returns
// the simulated time slept.
func (r *RTC) Sleep(ctx context.Context, d time.Duration) time.Duration {
	start := r.clock.Now()
	expired := r.clock.After(d)
	for r.queue.Pending() == 0 {
		select {
		case <-expired:
			r.queue.Post(wake.Timer)
		case <-r.queue.Notify():
		case <-ctx.Done():
			return r.clock.Now().Sub(start)
		}
	}
	return r.clock.Now().Sub(start)
}
