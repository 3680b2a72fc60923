// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"testing"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lora"
	"github.com/Thermoquad/tidewatch/pkg/wake"
)

type fakeSensors struct {
	reads int
}

func (s *fakeSensors) BatteryVoltage() int32      { return 3300 + int32(s.reads) }
func (s *fakeSensors) InternalTemperature() int32 { return 21000 }
func (s *fakeSensors) ExternalTemperature() int32 {
	s.reads++
	return 12000
}

type fakeAccel struct {
	configured bool
	rng        AccelRange
	odr        AccelODR
	threshold  uint16
	enabled    bool
	acks       int
	clears     int
	counter    uint16
}

func (a *fakeAccel) Configure(r AccelRange, odr AccelODR, threshold uint16) bool {
	a.configured, a.rng, a.odr, a.threshold = true, r, odr, threshold
	return true
}
func (a *fakeAccel) EnableMeasurement(on bool) { a.enabled = on }
func (a *fakeAccel) AcknowledgeInterrupt()     { a.acks++ }
func (a *fakeAccel) TriggerCounter() uint16    { return a.counter }
func (a *fakeAccel) ClearTriggerCounter() {
	a.clears++
	a.counter = 0
}

type fakeSleeper struct {
	delays    []time.Duration
	requested []time.Duration
	elapsed   []time.Duration // returned by Sleep in order; the request is returned once empty
}

func (s *fakeSleeper) Delay(ctx context.Context, d time.Duration) { s.delays = append(s.delays, d) }

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) time.Duration {
	s.requested = append(s.requested, d)
	if len(s.elapsed) == 0 {
		return d
	}
	e := s.elapsed[0]
	s.elapsed = s.elapsed[1:]
	return e
}

type fakeEvents struct {
	queue []wake.Event
}

func (e *fakeEvents) Drain() wake.Event {
	if len(e.queue) == 0 {
		return 0
	}
	ev := e.queue[0]
	e.queue = e.queue[1:]
	return ev
}

type fakeLED struct {
	on      bool
	history []bool
}

func (l *fakeLED) Set(on bool) {
	l.on = on
	l.history = append(l.history, on)
}

type bootReport struct {
	voltage, intTemp, extTemp int32
	storm, cable              bool
}

type fakeRadio struct {
	joinResult   lora.Status
	inits        int
	disables     int
	measurements [][]int32 // voltages of each batch sent
	storms       int
	cables       int
	boots        []bootReport
}

func newFakeRadio() *fakeRadio { return &fakeRadio{joinResult: lora.Joined} }

func (r *fakeRadio) Init(ctx context.Context) lora.Status {
	r.inits++
	return r.joinResult
}
func (r *fakeRadio) Disable() { r.disables++ }
func (r *fakeRadio) SendMeasurements(v, it, et []int32) bool {
	r.measurements = append(r.measurements, append([]int32(nil), v...))
	return true
}
func (r *fakeRadio) SendStormDetected(bool) bool {
	r.storms++
	return true
}
func (r *fakeRadio) SendCableBroken(bool) bool {
	r.cables++
	return true
}
func (r *fakeRadio) SendBootReport(v, it, et int32, storm, cable bool) bool {
	r.boots = append(r.boots, bootReport{v, it, et, storm, cable})
	return true
}

type recordingRaiser struct {
	codes []fault.Code
}

func (r *recordingRaiser) Raise(code fault.Code) { r.codes = append(r.codes, code) }

type fakeProbe struct {
	intact bool
}

func (p *fakeProbe) Intact() bool { return p.intact }

type rig struct {
	sensors *fakeSensors
	accel   *fakeAccel
	sleeper *fakeSleeper
	events  *fakeEvents
	led     *fakeLED
	radio   *fakeRadio
	faults  *recordingRaiser
	trace   []Event
	m       *Machine
}

func newRig(cfg Config, cable func(r *rig) CableChecker) *rig {
	r := &rig{
		sensors: &fakeSensors{},
		accel:   &fakeAccel{},
		sleeper: &fakeSleeper{},
		events:  &fakeEvents{},
		led:     &fakeLED{},
		radio:   newFakeRadio(),
		faults:  &recordingRaiser{},
	}
	deps := Deps{
		Sensors:   r.sensors,
		Accel:     r.accel,
		Sleeper:   r.sleeper,
		Events:    r.events,
		Indicator: r.led,
		Radio:     r.radio,
		Faults:    r.faults,
		Observer:  func(ev Event) { r.trace = append(r.trace, ev) },
	}
	if cable != nil {
		deps.Cable = cable(r)
	}
	r.m = NewMachine(cfg, deps)
	return r
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.FirstBootReport = false
	return cfg
}

// steps runs the machine and returns the states it moved to.
func (r *rig) steps(n int) []State {
	var out []State
	for i := 0; i < n; i++ {
		out = append(out, r.m.Step(context.Background()))
	}
	return out
}

func TestBatchInvariant(t *testing.T) {
	var b Batch
	for i := 0; i < BatchSize; i++ {
		if !b.Append(int32(i), 0, 0) {
			t.Fatalf("Append %d refused", i)
		}
	}
	if !b.Full() {
		t.Error("batch not full after six readings")
	}
	if b.Append(7, 0, 0) {
		t.Error("seventh reading accepted")
	}
	if b.Count != BatchSize {
		t.Errorf("Count = %d, want %d", b.Count, BatchSize)
	}

	v, it, et := b.Slices()
	if len(v) != BatchSize || len(it) != BatchSize || len(et) != BatchSize || v[5] != 5 {
		t.Errorf("Slices() = %v %v %v", v, it, et)
	}

	b.Reset()
	if b.Count != 0 || b.Voltage[0] != 0 {
		t.Errorf("Reset left %+v", b)
	}
}

func TestSleepAccounting(t *testing.T) {
	period := 1800 * time.Second
	var a SleepAccounting

	a.Add(600 * time.Second)
	if got := a.Remaining(period); got != 1200*time.Second {
		t.Errorf("Remaining = %v, want 20m", got)
	}
	a.Add(-time.Second)
	a.Add(1000 * time.Second)
	if a.Covers(period) {
		t.Error("1600s covers the period")
	}
	a.Add(300 * time.Second)
	if !a.Covers(period) || a.Remaining(period) != 0 {
		t.Errorf("accumulated %v, remaining %v", a.Accumulated(), a.Remaining(period))
	}
	a.Reset()
	if a.Remaining(period) != period {
		t.Error("Reset did not start a new period")
	}
}

func TestClassifyWake(t *testing.T) {
	tests := []struct {
		name     string
		ev       wake.Event
		triggers uint16
		want     WakeSource
	}{
		{"nothing", 0, 0, WakeNone},
		{"timer", wake.Timer, 0, WakeTimer},
		{"button", wake.Button1, 0, WakeButton},
		{"button beats timer", wake.Button0 | wake.Timer, 0, WakeButton},
		{"timer beats storm", wake.Timer | wake.Accel, 20, WakeTimer},
		{"activity", wake.Accel, 1, WakeActivity},
		{"at threshold", wake.Accel, 8, WakeActivity},
		{"above threshold", wake.Accel, 9, WakeStorm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyWake(tt.ev, tt.triggers, DefaultStormInterrupts); got != tt.want {
				t.Errorf("ClassifyWake() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitState(t *testing.T) {
	r := newRig(quietConfig(), nil)

	if next := r.m.Step(context.Background()); next != StateMeasure {
		t.Fatalf("Init -> %v, want MEASURE", next)
	}
	a := r.accel
	if !a.configured || a.rng != Range8G || a.odr != ODR12Hz5 || a.threshold != 6000 {
		t.Errorf("accelerometer configured %v %v %d", a.rng, a.odr, a.threshold)
	}
	if !a.enabled || a.acks != 1 || a.clears != 1 {
		t.Errorf("enabled=%v acks=%d clears=%d", a.enabled, a.acks, a.clears)
	}
	if len(r.sleeper.delays) != 1 || r.sleeper.delays[0] != DefaultSettleDelay {
		t.Errorf("delays = %v", r.sleeper.delays)
	}
	if r.radio.disables != 1 {
		t.Errorf("modem not left powered down")
	}
}

func TestSixTimerWakesSendBatch(t *testing.T) {
	r := newRig(quietConfig(), nil)
	for i := 0; i < 6; i++ {
		r.events.queue = append(r.events.queue, wake.Timer)
	}

	want := []State{StateMeasure}
	for i := 0; i < 5; i++ {
		want = append(want, StateSleep, StateWakeup, StateMeasure)
	}
	want = append(want, StateSend, StateSleep)

	got := r.steps(len(want))
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: %v, want %v (all %v)", i, got[i], want[i], got)
		}
	}
	if len(r.radio.measurements) != 1 || len(r.radio.measurements[0]) != BatchSize {
		t.Fatalf("measurements = %v", r.radio.measurements)
	}
	if r.radio.measurements[0][0] != 3301 || r.radio.measurements[0][5] != 3306 {
		t.Errorf("readings out of order: %v", r.radio.measurements[0])
	}
	if r.m.Batch().Count != 0 {
		t.Errorf("Count = %d after send", r.m.Batch().Count)
	}
	for _, d := range r.sleeper.requested {
		if d != DefaultWakePeriod {
			t.Errorf("slept %v, want %v", d, DefaultWakePeriod)
		}
	}
}

func TestSendJoinFailureDropsBatch(t *testing.T) {
	r := newRig(quietConfig(), nil)
	r.radio.joinResult = lora.Error
	r.m.state = StateSend
	r.m.batch.Append(1, 2, 3)

	if next := r.m.Step(context.Background()); next != StateSleep {
		t.Fatalf("Send -> %v, want SLEEP", next)
	}
	if len(r.radio.measurements) != 0 || r.radio.disables != 1 || r.m.Batch().Count != 0 {
		t.Errorf("sent=%d disables=%d count=%d", len(r.radio.measurements), r.radio.disables, r.m.Batch().Count)
	}
}

func TestFirstBootReport(t *testing.T) {
	r := newRig(DefaultConfig(), nil)
	r.events.queue = []wake.Event{wake.Timer}

	r.steps(4) // init, measure, sleep, wakeup
	r.steps(1) // second measure

	if len(r.radio.boots) != 1 {
		t.Fatalf("boot reports = %d, want 1", len(r.radio.boots))
	}
	want := bootReport{3301, 21000, 12000, false, false}
	if r.radio.boots[0] != want {
		t.Errorf("boot report = %+v, want %+v", r.radio.boots[0], want)
	}
	if r.m.Batch().Count != 2 {
		t.Errorf("Count = %d, want 2: the boot report must not consume the batch", r.m.Batch().Count)
	}
	if len(r.radio.measurements) != 0 {
		t.Error("boot report sent the batch")
	}
}

func TestFirstBootReportDisabled(t *testing.T) {
	r := newRig(quietConfig(), nil)
	r.steps(2)
	if len(r.radio.boots) != 0 || r.radio.inits != 0 {
		t.Errorf("radio used: boots=%d inits=%d", len(r.radio.boots), r.radio.inits)
	}
}

func TestActivityWakeSleepsRemainder(t *testing.T) {
	r := newRig(quietConfig(), nil)
	r.m.state = StateSleep
	r.sleeper.elapsed = []time.Duration{600 * time.Second, 900 * time.Second, 400 * time.Second}
	r.events.queue = []wake.Event{wake.Accel, wake.Accel, wake.Accel}
	r.accel.counter = 1

	got := r.steps(6)
	want := []State{StateWakeup, StateSleepRemaining, StateWakeup, StateSleepRemaining, StateWakeup, StateMeasure}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
	wantSleeps := []time.Duration{1800 * time.Second, 1200 * time.Second, 300 * time.Second}
	for i, d := range wantSleeps {
		if r.sleeper.requested[i] != d {
			t.Errorf("sleep %d = %v, want %v", i, r.sleeper.requested[i], d)
		}
	}
	if r.accel.acks != 3 {
		t.Errorf("acks = %d, want 3", r.accel.acks)
	}
	if r.m.Snapshot().Accumulated != 0 {
		t.Errorf("accounting not reset after the period elapsed")
	}
}

func TestTimerWakeResetsAccounting(t *testing.T) {
	r := newRig(quietConfig(), nil)
	r.m.state = StateSleep
	r.sleeper.elapsed = []time.Duration{600 * time.Second}
	r.events.queue = []wake.Event{wake.Accel, wake.Timer | wake.Accel}
	r.accel.counter = 2

	r.steps(4)

	if r.m.State() != StateMeasure {
		t.Fatalf("state = %v, want MEASURE", r.m.State())
	}
	if r.m.accounting.Accumulated() != 0 {
		t.Errorf("accumulated = %v after timer wake", r.m.accounting.Accumulated())
	}
	if r.accel.acks != 2 || r.accel.clears != 1 {
		t.Errorf("acks=%d clears=%d, want 2 and 1", r.accel.acks, r.accel.clears)
	}
	if r.trace[3].Wake != WakeTimer {
		t.Errorf("wake = %v, want timer", r.trace[3].Wake)
	}
}

func TestButtonWake(t *testing.T) {
	r := newRig(quietConfig(), nil)
	r.m.state = StateWakeup
	r.events.queue = []wake.Event{wake.Button0 | wake.Accel}
	r.accel.counter = 12

	if next := r.m.Step(context.Background()); next != StateMeasure {
		t.Fatalf("Wakeup -> %v, want MEASURE", next)
	}
	if r.accel.counter != 0 || r.accel.acks != 1 {
		t.Errorf("counter=%d acks=%d", r.accel.counter, r.accel.acks)
	}
}

func TestStormThreshold(t *testing.T) {
	tests := []struct {
		triggers uint16
		want     State
	}{
		{DefaultStormInterrupts, StateSleepRemaining},
		{DefaultStormInterrupts + 1, StateSendStorm},
	}
	for _, tt := range tests {
		r := newRig(quietConfig(), nil)
		r.m.state = StateWakeup
		r.m.lastSleep = time.Second
		r.events.queue = []wake.Event{wake.Accel}
		r.accel.counter = tt.triggers

		if next := r.m.Step(context.Background()); next != tt.want {
			t.Errorf("%d triggers -> %v, want %v", tt.triggers, next, tt.want)
		}
	}
}

func TestStormSequence(t *testing.T) {
	r := newRig(quietConfig(), nil)
	r.m.state = StateSendStorm
	r.m.batch.Append(3300, 21000, 12000)
	r.m.batch.Append(3310, 21000, 12000)
	r.accel.counter = 10

	if next := r.m.Step(context.Background()); next != StateSleepHalftime {
		t.Fatalf("SendStorm -> %v, want SLEEP_HALFTIME", next)
	}
	if r.radio.storms != 1 || len(r.radio.measurements) != 1 || len(r.radio.measurements[0]) != 2 {
		t.Errorf("storms=%d measurements=%v", r.radio.storms, r.radio.measurements)
	}
	if r.m.Batch().Count != 0 || !r.m.Snapshot().StormDetected || r.accel.counter != 0 {
		t.Errorf("count=%d storm=%v counter=%d", r.m.Batch().Count, r.m.Snapshot().StormDetected, r.accel.counter)
	}

	r.events.queue = []wake.Event{wake.Accel}
	r.accel.counter = 3
	r.steps(2)
	if r.sleeper.requested[0] != DefaultWakePeriod/2 {
		t.Errorf("half-time sleep = %v", r.sleeper.requested[0])
	}
	if r.m.State() != StateMeasure || r.m.Snapshot().StormDetected {
		t.Errorf("state=%v storm=%v, want MEASURE with storm cleared", r.m.State(), r.m.Snapshot().StormDetected)
	}
}

func TestStormRecoveryStartsFreshPeriod(t *testing.T) {
	r := newRig(quietConfig(), nil)
	r.m.state = StateSleep
	r.sleeper.elapsed = []time.Duration{1000 * time.Second, 100 * time.Second, 200 * time.Second, 500 * time.Second}

	// Activity part way into the period, then a storm during the remainder.
	r.events.queue = []wake.Event{wake.Accel}
	r.accel.counter = 1
	r.steps(2)
	r.events.queue = []wake.Event{wake.Accel}
	r.accel.counter = DefaultStormInterrupts + 1
	r.steps(3)
	if r.m.State() != StateSleepHalftime {
		t.Fatalf("state = %v, want SLEEP_HALFTIME", r.m.State())
	}

	// Calm activity during the half-time sleep recovers to a new period.
	r.events.queue = []wake.Event{wake.Accel}
	r.accel.counter = 1
	r.steps(2)
	if r.m.State() != StateMeasure {
		t.Fatalf("state = %v, want MEASURE", r.m.State())
	}
	if r.m.Snapshot().Accumulated != 0 || r.accel.counter != 0 {
		t.Errorf("accumulated=%v counter=%d after recovery", r.m.Snapshot().Accumulated, r.accel.counter)
	}

	r.events.queue = []wake.Event{wake.Accel}
	r.accel.counter = 1
	r.steps(4)

	want := []time.Duration{1800 * time.Second, 800 * time.Second, 900 * time.Second, 1800 * time.Second, 1300 * time.Second}
	if len(r.sleeper.requested) != len(want) {
		t.Fatalf("sleeps = %v, want %v", r.sleeper.requested, want)
	}
	for i, d := range want {
		if r.sleeper.requested[i] != d {
			t.Errorf("sleep %d = %v, want %v", i, r.sleeper.requested[i], d)
		}
	}
}

func TestStormWithEmptyBatch(t *testing.T) {
	r := newRig(quietConfig(), nil)
	r.m.state = StateSendStorm
	r.steps(1)
	if r.radio.storms != 1 || len(r.radio.measurements) != 0 {
		t.Errorf("storms=%d measurements=%d", r.radio.storms, len(r.radio.measurements))
	}
}

func TestCableMonitor(t *testing.T) {
	probe := &fakeProbe{intact: true}
	r := newRig(quietConfig(), func(r *rig) CableChecker { return NewCableMonitor(probe, r.radio) })
	r.steps(2)
	if r.radio.cables != 0 || r.m.Batch().Count != 1 {
		t.Fatalf("intact cable reported")
	}

	probe.intact = false
	for i := 0; i < 6; i++ {
		r.m.state = StateMeasure
		r.steps(1)
	}

	if r.radio.cables != MaxCableReports {
		t.Errorf("cable reports = %d, want %d", r.radio.cables, MaxCableReports)
	}
	if len(r.radio.measurements) != MaxCableReports {
		t.Fatalf("batches sent = %d", len(r.radio.measurements))
	}
	if len(r.radio.measurements[0]) != 2 || len(r.radio.measurements[1]) != 1 {
		t.Errorf("batch sizes %d, %d, want 2, 1", len(r.radio.measurements[0]), len(r.radio.measurements[1]))
	}
	if r.m.Batch().Count != 2 {
		t.Errorf("Count = %d after reports stopped, want 2", r.m.Batch().Count)
	}
	if !r.m.deps.Cable.Broken() {
		t.Error("Broken() = false")
	}
}

func TestUnknownState(t *testing.T) {
	r := newRig(quietConfig(), nil)
	r.m.state = State(42)

	if next := r.m.Step(context.Background()); next != StateSleep {
		t.Fatalf("unknown -> %v, want SLEEP", next)
	}
	if len(r.faults.codes) != 1 || r.faults.codes[0] != fault.ImpossibleState {
		t.Errorf("faults = %v", r.faults.codes)
	}
}

func TestIndicatorFollowsState(t *testing.T) {
	r := newRig(quietConfig(), nil)
	r.events.queue = []wake.Event{wake.Timer}

	r.steps(4) // init, measure, sleep, wakeup
	want := []bool{true, true, false, true}
	for i, on := range want {
		if r.led.history[i] != on {
			t.Errorf("LED history = %v, want %v", r.led.history, want)
			break
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(quietConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	r.m.deps.Observer = func(ev Event) {
		if ev.To == StateSleep {
			cancel()
		}
	}

	if err := r.m.Run(ctx); err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if r.m.Snapshot().Steps != 2 {
		t.Errorf("steps = %d, want 2", r.m.Snapshot().Steps)
	}
}
