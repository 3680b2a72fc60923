// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package node is the device state machine. It measures on a fixed period,
// batches readings for the radio and reacts to button, timer and
// accelerometer wakes.
package node

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lora"
	"github.com/Thermoquad/tidewatch/pkg/wake"
)

// State is a state of the device state machine.
type State int

const (
	StateInit State = iota
	StateMeasure
	StateSend
	StateSendStorm
	StateSleep
	StateSleepHalftime
	StateSleepRemaining
	StateWakeup
)

var stateNames = map[State]string{
	StateInit:           "INIT",
	StateMeasure:        "MEASURE",
	StateSend:           "SEND",
	StateSendStorm:      "SEND_STORM",
	StateSleep:          "SLEEP",
	StateSleepHalftime:  "SLEEP_HALFTIME",
	StateSleepRemaining: "SLEEP_REMAINING",
	StateWakeup:         "WAKEUP",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// lit reports whether the LED is on while the node is in s.
func (s State) lit() bool {
	switch s {
	case StateInit, StateMeasure, StateSend, StateSendStorm, StateWakeup:
		return true
	}
	return false
}

// Defaults
const (
	DefaultWakePeriod      = 1800 * time.Second
	DefaultStormInterrupts = 8
	DefaultSettleDelay     = 300 * time.Millisecond
	DefaultAccelThreshold  = 6000 // milli-g
)

// Config holds the node's tunables.
type Config struct {
	WakePeriod      time.Duration
	StormInterrupts uint16
	SettleDelay     time.Duration
	AccelRange      AccelRange
	AccelODR        AccelODR
	// AccelThreshold is the activity threshold in milli-g.
	AccelThreshold  uint16
	FirstBootReport bool
}

// DefaultConfig returns the configuration the node ships with.
func DefaultConfig() Config {
	return Config{
		WakePeriod:      DefaultWakePeriod,
		StormInterrupts: DefaultStormInterrupts,
		SettleDelay:     DefaultSettleDelay,
		AccelRange:      Range8G,
		AccelODR:        ODR12Hz5,
		AccelThreshold:  DefaultAccelThreshold,
		FirstBootReport: true,
	}
}

// Event describes one executed state.
type Event struct {
	Time          time.Time
	From          State
	To            State
	Wake          WakeSource
	Causes        wake.Event
	Count         int
	StormDetected bool
	Accumulated   time.Duration
}

// Deps are the collaborators of a Machine. Cable may be nil.
type Deps struct {
	Sensors   Sensors
	Accel     Accelerometer
	Sleeper   Sleeper
	Events    Events
	Indicator Indicator
	Radio     Radio
	Cable     CableChecker
	Faults    fault.Raiser
	// Now stamps events. Defaults to time.Now.
	Now func() time.Time
	// Observer, when set, is called after every step.
	Observer func(Event)
}

// Snapshot is the machine's externally visible state.
type Snapshot struct {
	State         State
	Count         int
	StormDetected bool
	Accumulated   time.Duration
	Steps         uint64
	LastWake      WakeSource
	LastCauses    wake.Event
}

// Machine is the device state machine. Step and Run must be called from one
// goroutine; Snapshot may be called from any.
type Machine struct {
	cfg  Config
	deps Deps

	state         State
	batch         Batch
	accounting    SleepAccounting
	stormDetected bool
	firstBoot     bool
	lastSleep     time.Duration

	// per-step wake details for the observer
	wakeSource WakeSource
	causes     wake.Event

	mu   sync.Mutex
	snap Snapshot
}

// NewMachine creates a machine in StateInit. Zero Config fields take their
// defaults.
func NewMachine(cfg Config, deps Deps) *Machine {
	def := DefaultConfig()
	if cfg.WakePeriod <= 0 {
		cfg.WakePeriod = def.WakePeriod
	}
	if cfg.StormInterrupts == 0 {
		cfg.StormInterrupts = def.StormInterrupts
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.AccelThreshold == 0 {
		cfg.AccelThreshold = def.AccelThreshold
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Machine{
		cfg:       cfg,
		deps:      deps,
		state:     StateInit,
		firstBoot: true,
	}
}

// State returns the state the next Step executes.
func (m *Machine) State() State {
	return m.state
}

// Batch returns a copy of the pending readings.
func (m *Machine) Batch() Batch {
	return m.batch
}

// Snapshot returns the state as of the last completed step.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Run steps the machine until ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	log.Printf("node: running, wake period %s", m.cfg.WakePeriod)
	for ctx.Err() == nil {
		m.Step(ctx)
	}
	return ctx.Err()
}

// Step executes the current state and returns the next one.
func (m *Machine) Step(ctx context.Context) State {
	from := m.state
	m.wakeSource, m.causes = WakeNone, 0
	m.deps.Indicator.Set(from.lit())

	var next State
	switch from {
	case StateInit:
		next = m.init(ctx)
	case StateMeasure:
		next = m.measure(ctx)
	case StateSend:
		next = m.send(ctx)
	case StateSendStorm:
		next = m.sendStorm(ctx)
	case StateSleep:
		next = m.sleep(ctx, m.cfg.WakePeriod)
	case StateSleepHalftime:
		next = m.sleep(ctx, m.cfg.WakePeriod/2)
	case StateSleepRemaining:
		next = m.sleep(ctx, m.accounting.Remaining(m.cfg.WakePeriod))
	case StateWakeup:
		next = m.wakeup()
	default:
		m.deps.Faults.Raise(fault.ImpossibleState)
		next = StateSleep
	}
	m.state = next

	ev := Event{
		Time:          m.deps.Now(),
		From:          from,
		To:            next,
		Wake:          m.wakeSource,
		Causes:        m.causes,
		Count:         m.batch.Count,
		StormDetected: m.stormDetected,
		Accumulated:   m.accounting.Accumulated(),
	}
	m.mu.Lock()
	m.snap.State = next
	m.snap.Count = ev.Count
	m.snap.StormDetected = ev.StormDetected
	m.snap.Accumulated = ev.Accumulated
	m.snap.Steps++
	if from == StateWakeup {
		m.snap.LastWake = ev.Wake
		m.snap.LastCauses = ev.Causes
	}
	m.mu.Unlock()

	if m.deps.Observer != nil {
		m.deps.Observer(ev)
	}
	return next
}

func (m *Machine) init(ctx context.Context) State {
	a := m.deps.Accel
	if !a.Configure(m.cfg.AccelRange, m.cfg.AccelODR, m.cfg.AccelThreshold) {
		log.Printf("node: accelerometer configuration failed")
	}
	a.EnableMeasurement(true)
	m.deps.Sleeper.Delay(ctx, m.cfg.SettleDelay)
	a.AcknowledgeInterrupt()
	a.ClearTriggerCounter()
	m.batch.Reset()
	m.deps.Radio.Disable()
	return StateMeasure
}

func (m *Machine) measure(ctx context.Context) State {
	s := m.deps.Sensors
	extTemp := s.ExternalTemperature()
	voltage := s.BatteryVoltage()
	intTemp := s.InternalTemperature()

	if !m.batch.Append(voltage, intTemp, extTemp) {
		m.deps.Faults.Raise(fault.ImpossibleState)
		m.batch.Reset()
		m.batch.Append(voltage, intTemp, extTemp)
	}

	if m.deps.Cable != nil && m.deps.Cable.Check(ctx, &m.batch) {
		m.batch.Reset()
	}

	if m.firstBoot {
		m.firstBoot = false
		if m.cfg.FirstBootReport {
			m.sendBootReport(ctx, voltage, intTemp, extTemp)
		}
	}

	if m.batch.Full() {
		return StateSend
	}
	return StateSleep
}

func (m *Machine) sendBootReport(ctx context.Context, voltage, intTemp, extTemp int32) {
	cableBroken := m.deps.Cable != nil && m.deps.Cable.Broken()
	r := m.deps.Radio
	if r.Init(ctx) == lora.Joined {
		r.SendBootReport(voltage, intTemp, extTemp, m.stormDetected, cableBroken)
	}
	r.Disable()
}

func (m *Machine) send(ctx context.Context) State {
	r := m.deps.Radio
	if r.Init(ctx) == lora.Joined {
		r.SendMeasurements(m.batch.Slices())
	}
	r.Disable()
	m.batch.Reset()
	return StateSleep
}

func (m *Machine) sendStorm(ctx context.Context) State {
	r := m.deps.Radio
	if r.Init(ctx) == lora.Joined {
		r.SendStormDetected(true)
		if m.batch.Count > 0 {
			r.SendMeasurements(m.batch.Slices())
		}
	}
	m.batch.Reset()
	r.Disable()
	m.stormDetected = true
	m.deps.Accel.ClearTriggerCounter()
	return StateSleepHalftime
}

func (m *Machine) sleep(ctx context.Context, d time.Duration) State {
	m.lastSleep = m.deps.Sleeper.Sleep(ctx, d)
	return StateWakeup
}

func (m *Machine) wakeup() State {
	a := m.deps.Accel
	m.causes = m.deps.Events.Drain()
	m.wakeSource = ClassifyWake(m.causes, a.TriggerCounter(), m.cfg.StormInterrupts)

	switch m.wakeSource {
	case WakeButton, WakeTimer:
		a.ClearTriggerCounter()
		m.accounting.Reset()
		if m.causes.Has(wake.Accel) {
			a.AcknowledgeInterrupt()
		}
		return StateMeasure
	case WakeStorm:
		return StateSendStorm
	}

	// Activity below the storm threshold, or a wake with no recorded cause.
	a.AcknowledgeInterrupt()
	if m.stormDetected {
		m.stormDetected = false
		a.ClearTriggerCounter()
		m.accounting.Reset()
		return StateMeasure
	}
	m.accounting.Add(m.lastSleep)
	if m.accounting.Covers(m.cfg.WakePeriod) {
		a.ClearTriggerCounter()
		m.accounting.Reset()
		return StateMeasure
	}
	return StateSleepRemaining
}
