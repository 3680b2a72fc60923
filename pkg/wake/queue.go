// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package wake carries interrupt causes from the goroutines that stand in for
// interrupt handlers to the control loop.
//
// Causes are kept as bits, so posting the same cause twice before the loop
// drains them coalesces into one, and no cause posted before a Drain is lost.
package wake

import (
	"context"
	"strings"
	"sync/atomic"
)

// Event is a set of wake causes.
type Event uint32

const (
	Button0 Event = 1 << iota
	Button1
	Timer
	Accel
)

// Buttons is every button cause.
const Buttons = Button0 | Button1

// Has reports whether any cause in x is set in e.
func (e Event) Has(x Event) bool {
	return e&x != 0
}

func (e Event) String() string {
	if e == 0 {
		return "none"
	}
	var names []string
	for _, c := range []struct {
		bit  Event
		name string
	}{
		{Button0, "button0"},
		{Button1, "button1"},
		{Timer, "timer"},
		{Accel, "accel"},
	} {
		if e.Has(c.bit) {
			names = append(names, c.name)
		}
	}
	return strings.Join(names, "|")
}

// Queue holds the pending causes. Post may be called from any goroutine;
// Drain and Wait belong to the control loop.
type Queue struct {
	pending atomic.Uint32
	notify  chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Post adds e to the pending set and wakes a waiting Wait.
func (q *Queue) Post(e Event) {
	q.pending.Or(uint32(e))
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pending returns the pending set without clearing it.
func (q *Queue) Pending() Event {
	return Event(q.pending.Load())
}

// Drain returns every pending cause and clears them in one step.
func (q *Queue) Drain() Event {
	return Event(q.pending.Swap(0))
}

// Wait blocks until a cause is pending or ctx is done. It reports whether a
// cause is pending.
func (q *Queue) Wait(ctx context.Context) bool {
	for q.Pending() == 0 {
		select {
		case <-q.notify:
		case <-ctx.Done():
			return q.Pending() != 0
		}
	}
	return true
}

// Notify returns the channel signalled by Post, for callers that select on
// other events as well. A signal may be stale; check Pending.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}
