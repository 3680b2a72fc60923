// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport implements the timeout-governed serial link to the radio
// modem.
//
// A Transport drives a DMA-capable UART through the Peripheral interface.
// Every wait is bounded by a duration measured on a monotonic Clock; running
// out of budget raises a fault and the call still returns to its caller.
// Received bytes are framed into lines by ReceiveByte, which the peripheral
// calls from its own goroutine.
package transport

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/fault"
)

// Status is the outcome of a transport transaction.
type Status int

const (
	StatusSent Status = iota
	StatusReceived
	StatusTxTimeout
	StatusRxTimeout
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "SENT"
	case StatusReceived:
		return "RECEIVED"
	case StatusTxTimeout:
		return "TX_TIMEOUT"
	case StatusRxTimeout:
		return "RX_TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Auto-baud training constants
const (
	AutoBaudByte   = 'U'
	BreakIdleHold  = 40 * time.Millisecond
	BreakLowHold   = 20 * time.Millisecond
	InitSettle     = 500 * time.Millisecond
	ReinitSettle   = 20 * time.Millisecond
	DefaultPolling = time.Millisecond
)

// Peripheral is the UART and its transmit DMA channel.
type Peripheral interface {
	// SyncBusy reports whether register writes are still synchronising.
	SyncBusy() bool
	// StartTransfer arms a one-shot transmit of p.
	StartTransfer(p []byte) error
	// TransferActive reports whether the transmit channel is still enabled.
	TransferActive() bool
	// ArmReceive re-arms the receive channel for a new frame.
	ArmReceive()
	// Break holds the TX line low for hold, then releases it high.
	Break(hold time.Duration) error
	// Reset returns the peripheral to its power-on state.
	Reset() error
}

// Timeouts are the per-operation wait budgets.
type Timeouts struct {
	Sync     time.Duration // peripheral sync before a transfer
	DMA      time.Duration // transmit channel completion
	Command  time.Duration // response to SendAndAwait
	Data     time.Duration // response to SendData
	Response time.Duration // AwaitResponse
}

// DefaultTimeouts returns the budgets used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Sync:     10 * time.Millisecond,
		DMA:      2 * time.Second,
		Command:  2 * time.Second,
		Data:     10 * time.Second,
		Response: 10 * time.Second,
	}
}

// Direction tells an Observer which way a frame travelled.
type Direction int

const (
	Tx Direction = iota
	Rx
)

// Observer is told about every transmitted buffer and received frame.
type Observer func(dir Direction, data []byte)

// Options configures a Transport. Zero values select defaults.
type Options struct {
	Timeouts     Timeouts
	PollInterval time.Duration
	Clock        Clock
	Observer     Observer
}

// Transport is a single logical channel to the modem.
type Transport struct {
	periph   Peripheral
	faults   fault.Raiser
	clock    Clock
	timeouts Timeouts
	poll     time.Duration
	observer Observer

	mu       sync.Mutex
	rx       [RxBufferSize]byte
	cursor   int
	frame    []byte
	carry    []byte
	line     []byte
	complete atomic.Bool

	stats *tracker
}

// New creates a transport over periph. Faults are reported to faults.
func New(periph Peripheral, faults fault.Raiser, opts Options) *Transport {
	if opts.Timeouts == (Timeouts{}) {
		opts.Timeouts = DefaultTimeouts()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPolling
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	return &Transport{
		periph:   periph,
		faults:   faults,
		clock:    opts.Clock,
		timeouts: opts.Timeouts,
		poll:     opts.PollInterval,
		observer: opts.Observer,
		stats:    newTracker(),
	}
}

// Statistics returns a snapshot of the link counters.
func (t *Transport) Statistics() Statistics {
	return t.stats.snapshot()
}

// Init trains the modem's auto-baud detector on a freshly powered link.
func (t *Transport) Init() {
	t.BreakCondition()
	t.Send([]byte{AutoBaudByte})
	t.clock.Sleep(InitSettle)
}

// Reinit resets the peripheral and retrains the modem. It waits for the
// module's echo and then for its settled state.
func (t *Transport) Reinit() Status {
	t.Reset()
	t.BreakCondition()
	t.Send([]byte{AutoBaudByte})
	t.AwaitResponse()
	t.clock.Sleep(ReinitSettle)
	return t.AwaitResponse()
}

// Reset stops the peripheral's pending reception and clears the receive
// buffers.
func (t *Transport) Reset() {
	if err := t.periph.Reset(); err != nil {
		log.Printf("transport: reset failed: %v", err)
	}
	t.ClearBuffers()
}

// BreakCondition drives the TX line idle high, then low, then high again.
// The modem needs this training pulse after a reset.
func (t *Transport) BreakCondition() {
	t.clock.Sleep(BreakIdleHold)
	if err := t.periph.Break(BreakLowHold); err != nil {
		log.Printf("transport: break failed: %v", err)
	}
}

// Send transmits p and waits for the transfer to finish. Each of the two
// waits has its own budget and fault code.
func (t *Transport) Send(p []byte) {
	if !t.waitFor(func() bool { return !t.periph.SyncBusy() }, t.timeouts.Sync) {
		t.stats.update(func(s *Statistics) { s.SyncTimeouts++ })
		t.faults.Raise(fault.SyncTimeout)
	}

	t.resetCursor()
	if t.observer != nil {
		t.observer(Tx, p)
	}
	if err := t.periph.StartTransfer(p); err != nil {
		log.Printf("transport: transfer failed: %v", err)
	}
	t.stats.update(func(s *Statistics) {
		s.TxFrames++
		s.TxBytes += uint64(len(p))
	})

	if !t.waitFor(func() bool { return !t.periph.TransferActive() }, t.timeouts.DMA) {
		t.stats.update(func(s *Statistics) { s.DMATimeouts++ })
		t.faults.Raise(fault.DMATimeout)
	}
}

// SendAndAwait transmits a command and waits for its acknowledgement line.
func (t *Transport) SendAndAwait(p []byte) Status {
	t.Send(p)
	if !t.waitFor(t.ResponseAvailable, t.timeouts.Command) {
		t.stats.update(func(s *Statistics) { s.CommandTimeouts++ })
		t.faults.Raise(fault.CommandResponseTimeout)
		return StatusTxTimeout
	}
	return StatusSent
}

// SendData transmits a payload and waits for its response under the data
// budget.
func (t *Transport) SendData(p []byte) Status {
	t.Send(p)
	if !t.waitFor(t.ResponseAvailable, t.timeouts.Data) {
		t.stats.update(func(s *Statistics) { s.DataTimeouts++ })
		t.faults.Raise(fault.DataResponseTimeout)
		return StatusTxTimeout
	}
	return StatusSent
}

// AwaitResponse re-arms reception and waits for a complete frame. It is used
// when the effect of a command arrives separately from its acknowledgement.
func (t *Transport) AwaitResponse() Status {
	t.resetCursor()
	t.periph.ArmReceive()
	if !t.waitFor(t.ResponseAvailable, t.timeouts.Response) {
		t.stats.update(func(s *Statistics) { s.ResponseTimeouts++ })
		t.faults.Raise(fault.AwaitResponseTimeout)
		return StatusRxTimeout
	}
	return StatusReceived
}

// waitFor polls cond until it holds or budget has elapsed on the clock.
func (t *Transport) waitFor(cond func() bool, budget time.Duration) bool {
	deadline := t.clock.Now().Add(budget)
	for !cond() {
		if !t.clock.Now().Before(deadline) {
			return false
		}
		t.clock.Sleep(t.poll)
	}
	return true
}
