// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lora is the transmission manager: it owns the modem's power, join
// and sleep lifecycle and turns node messages into single uplinks.
package lora

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lpp"
	"github.com/Thermoquad/tidewatch/pkg/rn2483"
)

// Join retry defaults
const (
	DefaultMaxJoinRetries = 5
	DefaultJoinBackoff    = 5 * time.Second
)

// Status is the state of the current session or the result of a send.
type Status int

const (
	Idle Status = iota
	Joined
	Error
	Success
)

func (s Status) String() string {
	switch s {
	case Joined:
		return "JOINED"
	case Error:
		return "ERROR"
	case Success:
		return "SUCCESS"
	default:
		return "IDLE"
	}
}

// Modem is the radio driver the manager delegates to.
type Modem interface {
	Init()
	Setup(s rn2483.Settings) rn2483.Status
	TransmitConfirmed(port uint8, payload []byte) rn2483.Status
	TransmitUnconfirmed(port uint8, payload []byte) rn2483.Status
	Sleep(d time.Duration)
	Wake() rn2483.Status
	ResetLink()
}

// PowerSwitch powers the modem and its UART up or down.
type PowerSwitch interface {
	SetModemPower(on bool)
}

// Delayer blocks for a duration or until ctx ends.
type Delayer interface {
	Delay(ctx context.Context, d time.Duration)
}

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Settings       rn2483.Settings
	MaxJoinRetries int
	JoinBackoff    time.Duration
	// OnUplink is told about every payload handed to the modem.
	OnUplink func(kind Uplink, payload []byte, delivered bool)
}

// Manager owns the join settings and session state for one modem.
type Manager struct {
	modem  Modem
	power  PowerSwitch
	delay  Delayer
	faults fault.Raiser
	opts   Options

	mu     sync.Mutex
	status Status
}

// NewManager creates a transmission manager. Faults raised while sending are
// reported to faults.
func NewManager(modem Modem, power PowerSwitch, delay Delayer, faults fault.Raiser, opts Options) *Manager {
	if opts.MaxJoinRetries <= 0 {
		opts.MaxJoinRetries = DefaultMaxJoinRetries
	}
	if opts.JoinBackoff <= 0 {
		opts.JoinBackoff = DefaultJoinBackoff
	}
	if opts.Settings.Port == 0 {
		opts.Settings.Port = 1
	}
	return &Manager{
		modem:  modem,
		power:  power,
		delay:  delay,
		faults: faults,
		opts:   opts,
	}
}

// Status returns the session state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Init powers the modem, trains its link and joins the network. A failed
// join raises fault.JoinFailed.
func (m *Manager) Init(ctx context.Context) Status {
	m.power.SetModemPower(true)
	m.modem.Init()
	st := m.Join(ctx)
	if st != Joined {
		m.faults.Raise(fault.JoinFailed)
	}
	return st
}

// Join runs the modem setup and join up to MaxJoinRetries times, waiting
// JoinBackoff between attempts. It stops at the first accepted join.
func (m *Manager) Join(ctx context.Context) Status {
	for attempt := 1; attempt <= m.opts.MaxJoinRetries; attempt++ {
		st := m.modem.Setup(m.opts.Settings)
		if st == rn2483.JoinAccepted {
			log.Printf("lora: joined (%s) on attempt %d", m.opts.Settings.Activation, attempt)
			m.setStatus(Joined)
			return Joined
		}
		log.Printf("lora: join attempt %d/%d failed: %s", attempt, m.opts.MaxJoinRetries, st)
		if attempt == m.opts.MaxJoinRetries || ctx.Err() != nil {
			break
		}
		m.delay.Delay(ctx, m.opts.JoinBackoff)
	}
	m.setStatus(Error)
	return Error
}

// SendLPP hands a payload to the modem as one uplink.
func (m *Manager) SendLPP(buf *lpp.Buffer, confirmed bool) Status {
	var st rn2483.Status
	if confirmed {
		st = m.modem.TransmitConfirmed(m.opts.Settings.Port, buf.Bytes())
	} else {
		st = m.modem.TransmitUnconfirmed(m.opts.Settings.Port, buf.Bytes())
	}
	if !st.Delivered() {
		log.Printf("lora: uplink of %d bytes failed: %s", buf.Len(), st)
		return Error
	}
	return Success
}

// Sleep asks the modem to sleep for d. Best effort: nothing confirms it.
func (m *Manager) Sleep(d time.Duration) {
	m.modem.Sleep(d)
}

// WakeEarly interrupts a modem sleep. Best effort: the modem may already be
// awake or may miss the break, in which case Error is returned.
func (m *Manager) WakeEarly() Status {
	if st := m.modem.Wake(); st != rn2483.MacOK {
		log.Printf("lora: early wake not acknowledged: %s", st)
		return Error
	}
	return Success
}

// Disable resets the link and powers the modem down. The next send needs a
// fresh Init.
func (m *Manager) Disable() {
	m.modem.ResetLink()
	m.power.SetModemPower(false)
	m.setStatus(Idle)
}

// ForwardFault reports code over the radio as a status uplink. It brings the
// modem up and down around the send.
func (m *Manager) ForwardFault(ctx context.Context, code fault.Code) {
	if m.Init(ctx) == Joined {
		m.SendStatus(uint8(code))
	}
	m.Disable()
}
