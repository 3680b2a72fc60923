// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"log"
	"sync/atomic"

	"github.com/Thermoquad/tidewatch/pkg/wake"
)

// Buttons are the two user buttons.
type Buttons struct {
	queue *wake.Queue
}

// NewButtons creates buttons posting to queue.
func NewButtons(queue *wake.Queue) *Buttons {
	return &Buttons{queue: queue}
}

// Press presses button id (0 or 1).
func (b *Buttons) Press(id int) {
	if id == 1 {
		b.queue.Post(wake.Button1)
		return
	}
	b.queue.Post(wake.Button0)
}

// CableProbe is the loop through the mooring cable.
type CableProbe struct {
	cut atomic.Bool
}

// Intact reports whether the loop is closed.
func (c *CableProbe) Intact() bool {
	return !c.cut.Load()
}

// Cut opens the loop.
func (c *CableProbe) Cut() {
	c.cut.Store(true)
}

// Repair closes the loop.
func (c *CableProbe) Repair() {
	c.cut.Store(false)
}

// LED is the status LED. OnChange, when set, is called on every change.
type LED struct {
	on       atomic.Bool
	OnChange func(on bool)
}

// Set turns the LED on or off.
func (l *LED) Set(on bool) {
	if l.on.Swap(on) != on && l.OnChange != nil {
		l.OnChange(on)
	}
}

// Toggle inverts the LED.
func (l *LED) Toggle() {
	l.Set(!l.on.Load())
}

// On reports whether the LED is lit.
func (l *LED) On() bool {
	return l.on.Load()
}

// PowerSwitch gates the modem supply. The modem loses its session when
// powered down.
type PowerSwitch struct {
	on    atomic.Bool
	modem *Modem
}

// NewPowerSwitch creates a switch for modem. modem may be nil.
func NewPowerSwitch(modem *Modem) *PowerSwitch {
	return &PowerSwitch{modem: modem}
}

// SetModemPower switches the modem supply.
func (p *PowerSwitch) SetModemPower(on bool) {
	if p.on.Swap(on) == on {
		return
	}
	log.Printf("sim: modem power %s", onOff(on))
	if p.modem != nil {
		p.modem.SetPower(on)
	}
}

// On reports whether the modem is powered.
func (p *PowerSwitch) On() bool {
	return p.on.Load()
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
