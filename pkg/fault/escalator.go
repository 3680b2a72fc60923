// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fault

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBlinkInterval is the indicator toggle period of a local halt.
const DefaultBlinkInterval = 100 * time.Millisecond

// Mode selects what Raise does after recording a fault.
type Mode int

const (
	// ModeLocal halts in a blink loop until the escalator's context ends.
	ModeLocal Mode = iota
	// ModeForward sends one best-effort status uplink and returns.
	ModeForward
)

func (m Mode) String() string {
	if m == ModeForward {
		return "forward"
	}
	return "local"
}

// Raiser is implemented by anything faults can be reported to.
type Raiser interface {
	Raise(code Code)
}

// RaiserFunc adapts a function to Raiser.
type RaiserFunc func(code Code)

func (f RaiserFunc) Raise(code Code) { f(code) }

// Indicator is the local fault signal, usually an LED.
type Indicator interface {
	Toggle()
}

// Forwarder delivers a fault code off the device.
type Forwarder interface {
	ForwardFault(ctx context.Context, code Code)
}

// Options configures an Escalator.
type Options struct {
	Mode          Mode
	Indicator     Indicator
	BlinkInterval time.Duration
	// OnRaise is called with every raised code before escalation.
	OnRaise func(Code)
}

// Escalator turns raised faults into a local halt or a forwarded status.
type Escalator struct {
	ctx  context.Context
	opts Options

	mu        sync.Mutex
	forwarder Forwarder
	last      Code
	count     uint64

	forwarding atomic.Bool
}

// NewEscalator creates an escalator. ctx bounds the local halt loop and any
// forwarded send; cancelling it releases a halted Raise.
func NewEscalator(ctx context.Context, opts Options) *Escalator {
	if opts.BlinkInterval <= 0 {
		opts.BlinkInterval = DefaultBlinkInterval
	}
	return &Escalator{ctx: ctx, opts: opts}
}

// SetForwarder installs the forward path. The transmission manager depends
// on the escalator, so the forwarder is wired after both are built.
func (e *Escalator) SetForwarder(f Forwarder) {
	e.mu.Lock()
	e.forwarder = f
	e.mu.Unlock()
}

// Raise records code and escalates it according to the mode.
func (e *Escalator) Raise(code Code) {
	e.mu.Lock()
	e.last = code
	e.count++
	forwarder := e.forwarder
	e.mu.Unlock()

	log.Printf("fault: raised %s", code)
	if e.opts.OnRaise != nil {
		e.opts.OnRaise(code)
	}

	if e.opts.Mode == ModeLocal {
		e.halt()
		return
	}

	e.toggle()
	if code.Reserved() || forwarder == nil {
		return
	}
	// A fault raised while forwarding is recorded but not forwarded again.
	if !e.forwarding.CompareAndSwap(false, true) {
		return
	}
	defer e.forwarding.Store(false)
	forwarder.ForwardFault(e.ctx, code)
}

// Last returns the most recently raised code and whether any was raised.
func (e *Escalator) Last() (Code, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.count > 0
}

// Count returns the number of faults raised so far.
func (e *Escalator) Count() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Mode returns the configured escalation mode.
func (e *Escalator) Mode() Mode {
	return e.opts.Mode
}

func (e *Escalator) toggle() {
	if e.opts.Indicator != nil {
		e.opts.Indicator.Toggle()
	}
}

// halt blinks the indicator forever. On hardware the operator power cycles
// the node; here the loop also ends with the context so the process can exit.
func (e *Escalator) halt() {
	ticker := time.NewTicker(e.opts.BlinkInterval)
	defer ticker.Stop()
	for {
		e.toggle()
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
