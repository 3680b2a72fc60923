// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package uart adapts a host serial connection to the transport's
// peripheral interface, so the node can drive a real RN2483 over a USB
// serial adapter or a websocket bridge.
package uart

import (
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrUnsupported is returned when the connection lacks a line control.
var ErrUnsupported = errors.New("uart: not supported by connection")

// Receiver takes received bytes one at a time.
type Receiver interface {
	ReceiveByte(b byte)
}

// Breaker is implemented by connections that can hold TX low.
type Breaker interface {
	Break(d time.Duration) error
}

// InputResetter is implemented by connections that can flush their input.
type InputResetter interface {
	ResetInputBuffer() error
}

// DTRSetter is implemented by connections that drive the DTR line.
type DTRSetter interface {
	SetDTR(on bool) error
}

const readChunk = 64

// Peripheral turns a byte stream into the frame-at-a-time reception the
// transport expects. After a transfer or an ArmReceive one line is passed
// to the receiver; lines arriving while reception is not armed wait in
// order until the next ArmReceive.
type Peripheral struct {
	conn io.ReadWriteCloser

	mu      sync.Mutex
	rx      Receiver
	line    []byte
	pending [][]byte
	armed   bool

	active  atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
	readErr error
}

// New creates a peripheral on conn. Start must be called to begin reading.
func New(conn io.ReadWriteCloser) *Peripheral {
	return &Peripheral{conn: conn, done: make(chan struct{})}
}

// Attach sets the receiver for incoming lines.
func (p *Peripheral) Attach(rx Receiver) {
	p.mu.Lock()
	p.rx = rx
	p.mu.Unlock()
}

// Start launches the reader goroutine. It exits when the connection is
// closed or fails.
func (p *Peripheral) Start() {
	go p.readLoop()
}

// Done is closed when the reader goroutine exits.
func (p *Peripheral) Done() <-chan struct{} {
	return p.done
}

// Err returns the error that stopped the reader, if any.
func (p *Peripheral) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readErr
}

// Close closes the connection and stops the reader.
func (p *Peripheral) Close() error {
	p.closed.Store(true)
	return p.conn.Close()
}

func (p *Peripheral) readLoop() {
	defer close(p.done)
	buf := make([]byte, readChunk)
	for {
		n, err := p.conn.Read(buf)
		for _, b := range buf[:n] {
			p.receive(b)
		}
		if err != nil {
			if !p.closed.Load() {
				log.Printf("uart: read stopped: %v", err)
			}
			p.mu.Lock()
			p.readErr = err
			p.mu.Unlock()
			return
		}
	}
}

func (p *Peripheral) receive(b byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.line = append(p.line, b)
	if b != '\n' {
		return
	}
	line := p.line
	p.line = nil
	if p.armed {
		p.armed = false
		p.deliverLocked(line)
		return
	}
	p.pending = append(p.pending, line)
}

func (p *Peripheral) deliverLocked(line []byte) {
	if p.rx == nil {
		return
	}
	for _, b := range line {
		p.rx.ReceiveByte(b)
	}
}

// SyncBusy is always false on a host serial port.
func (p *Peripheral) SyncBusy() bool { return false }

// StartTransfer writes buf in the background and arms reception for the
// reply. Lines left over from earlier exchanges are discarded.
func (p *Peripheral) StartTransfer(buf []byte) error {
	if p.closed.Load() {
		return io.ErrClosedPipe
	}
	p.mu.Lock()
	if n := len(p.pending); n > 0 {
		log.Printf("uart: dropping %d unsolicited line(s)", n)
		p.pending = nil
	}
	p.armed = true
	p.mu.Unlock()

	data := append([]byte(nil), buf...)
	p.active.Store(true)
	go func() {
		defer p.active.Store(false)
		if _, err := p.conn.Write(data); err != nil {
			log.Printf("uart: write failed: %v", err)
		}
	}()
	return nil
}

// TransferActive reports whether a write is still in progress.
func (p *Peripheral) TransferActive() bool {
	return p.active.Load()
}

// ArmReceive passes the oldest waiting line to the receiver, or arms
// reception for the next one.
func (p *Peripheral) ArmReceive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		p.armed = true
		return
	}
	line := p.pending[0]
	p.pending = p.pending[1:]
	p.armed = false
	p.deliverLocked(line)
}

// Break holds TX low for hold.
func (p *Peripheral) Break(hold time.Duration) error {
	b, ok := p.conn.(Breaker)
	if !ok {
		return ErrUnsupported
	}
	return b.Break(hold)
}

// Reset drops buffered input and any partial line.
func (p *Peripheral) Reset() error {
	p.mu.Lock()
	p.line = nil
	p.pending = nil
	p.armed = false
	p.mu.Unlock()

	if r, ok := p.conn.(InputResetter); ok {
		return r.ResetInputBuffer()
	}
	return nil
}

// PowerSwitch drives the modem supply enable from the DTR line.
type PowerSwitch struct {
	conn   io.ReadWriteCloser
	warned atomic.Bool
	on     atomic.Bool
}

// NewPowerSwitch creates a power switch on conn.
func NewPowerSwitch(conn io.ReadWriteCloser) *PowerSwitch {
	return &PowerSwitch{conn: conn}
}

// SetModemPower asserts DTR to power the modem. Connections without DTR
// leave the modem powered.
func (s *PowerSwitch) SetModemPower(on bool) {
	s.on.Store(on)
	d, ok := s.conn.(DTRSetter)
	if !ok {
		if !s.warned.Swap(true) {
			log.Printf("uart: connection has no DTR, modem power is not switched")
		}
		return
	}
	if err := d.SetDTR(on); err != nil {
		log.Printf("uart: set DTR: %v", err)
	}
}

// On reports the last requested power state.
func (s *PowerSwitch) On() bool {
	return s.on.Load()
}
