// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lora

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lpp"
	"github.com/Thermoquad/tidewatch/pkg/rn2483"
)

type fakeModem struct {
	inits      int
	setups     int
	joinResult []rn2483.Status // consumed per Setup; last value repeats
	txResult   rn2483.Status
	payloads   [][]byte
	confirmed  []bool
	ports      []uint8
	sleeps     []time.Duration
	wakeResult rn2483.Status
	power      *fakePower
	resetsAt   []int // power changes seen at each link reset
}

func (f *fakeModem) Init() { f.inits++ }

func (f *fakeModem) Setup(s rn2483.Settings) rn2483.Status {
	f.setups++
	if len(f.joinResult) == 0 {
		return rn2483.JoinAccepted
	}
	st := f.joinResult[0]
	if len(f.joinResult) > 1 {
		f.joinResult = f.joinResult[1:]
	}
	return st
}

func (f *fakeModem) transmit(port uint8, p []byte, confirmed bool) rn2483.Status {
	f.payloads = append(f.payloads, append([]byte(nil), p...))
	f.confirmed = append(f.confirmed, confirmed)
	f.ports = append(f.ports, port)
	return f.txResult
}

func (f *fakeModem) TransmitConfirmed(port uint8, p []byte) rn2483.Status {
	return f.transmit(port, p, true)
}

func (f *fakeModem) TransmitUnconfirmed(port uint8, p []byte) rn2483.Status {
	return f.transmit(port, p, false)
}

func (f *fakeModem) Sleep(d time.Duration) { f.sleeps = append(f.sleeps, d) }

func (f *fakeModem) Wake() rn2483.Status { return f.wakeResult }

func (f *fakeModem) ResetLink() { f.resetsAt = append(f.resetsAt, len(f.power.states)) }

type fakePower struct {
	states []bool
}

func (p *fakePower) SetModemPower(on bool) { p.states = append(p.states, on) }

type fakeDelayer struct {
	delays []time.Duration
}

func (d *fakeDelayer) Delay(ctx context.Context, dur time.Duration) { d.delays = append(d.delays, dur) }

type recordingRaiser struct {
	codes []fault.Code
}

func (r *recordingRaiser) Raise(code fault.Code) { r.codes = append(r.codes, code) }

type harness struct {
	modem  *fakeModem
	power  *fakePower
	delay  *fakeDelayer
	faults *recordingRaiser
	mgr    *Manager
}

func newHarness(opts Options) *harness {
	h := &harness{
		modem:  &fakeModem{txResult: rn2483.MacTxOK},
		power:  &fakePower{},
		delay:  &fakeDelayer{},
		faults: &recordingRaiser{},
	}
	h.modem.power = h.power
	h.mgr = NewManager(h.modem, h.power, h.delay, h.faults, opts)
	return h
}

func TestJoinBound(t *testing.T) {
	tests := []struct {
		name       string
		results    []rn2483.Status
		wantStatus Status
		wantSetups int
		wantDelays int
	}{
		{"first attempt", []rn2483.Status{rn2483.JoinAccepted}, Joined, 1, 0},
		{"third attempt", []rn2483.Status{rn2483.JoinDenied, rn2483.RxTimeout, rn2483.JoinAccepted}, Joined, 3, 2},
		{"last attempt", []rn2483.Status{rn2483.JoinDenied, rn2483.JoinDenied, rn2483.JoinDenied, rn2483.JoinDenied, rn2483.JoinAccepted}, Joined, 5, 4},
		{"never", []rn2483.Status{rn2483.JoinDenied}, Error, 5, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Options{})
			h.modem.joinResult = tt.results

			if got := h.mgr.Join(context.Background()); got != tt.wantStatus {
				t.Errorf("Join() = %v, want %v", got, tt.wantStatus)
			}
			if h.modem.setups != tt.wantSetups {
				t.Errorf("setups = %d, want %d", h.modem.setups, tt.wantSetups)
			}
			if len(h.delay.delays) != tt.wantDelays {
				t.Errorf("delays = %d, want %d", len(h.delay.delays), tt.wantDelays)
			}
			for _, d := range h.delay.delays {
				if d != DefaultJoinBackoff {
					t.Errorf("backoff = %v, want %v", d, DefaultJoinBackoff)
				}
			}
			if h.mgr.Status() != tt.wantStatus {
				t.Errorf("Status() = %v", h.mgr.Status())
			}
		})
	}
}

func TestJoinCustomRetries(t *testing.T) {
	h := newHarness(Options{MaxJoinRetries: 2, JoinBackoff: time.Second})
	h.modem.joinResult = []rn2483.Status{rn2483.JoinDenied}

	if got := h.mgr.Join(context.Background()); got != Error {
		t.Fatalf("Join() = %v, want ERROR", got)
	}
	if h.modem.setups != 2 || len(h.delay.delays) != 1 || h.delay.delays[0] != time.Second {
		t.Errorf("setups=%d delays=%v", h.modem.setups, h.delay.delays)
	}
}

func TestJoinStopsWhenCancelled(t *testing.T) {
	h := newHarness(Options{})
	h.modem.joinResult = []rn2483.Status{rn2483.JoinDenied}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := h.mgr.Join(ctx); got != Error {
		t.Fatalf("Join() = %v, want ERROR", got)
	}
	if h.modem.setups != 1 {
		t.Errorf("setups = %d after cancellation, want 1", h.modem.setups)
	}
}

func TestInitRaisesOnJoinFailure(t *testing.T) {
	h := newHarness(Options{MaxJoinRetries: 1})
	h.modem.joinResult = []rn2483.Status{rn2483.JoinDenied}

	if got := h.mgr.Init(context.Background()); got != Error {
		t.Fatalf("Init() = %v, want ERROR", got)
	}
	if len(h.faults.codes) != 1 || h.faults.codes[0] != fault.JoinFailed {
		t.Errorf("faults = %v, want [%d]", h.faults.codes, fault.JoinFailed)
	}
	if len(h.power.states) != 1 || !h.power.states[0] || h.modem.inits != 1 {
		t.Errorf("power=%v inits=%d", h.power.states, h.modem.inits)
	}
}

func TestSendLPP(t *testing.T) {
	tests := []struct {
		name      string
		confirmed bool
		result    rn2483.Status
		want      Status
	}{
		{"unconfirmed tx ok", false, rn2483.MacTxOK, Success},
		{"unconfirmed downlink", false, rn2483.MacRx, Success},
		{"confirmed rx", true, rn2483.MacRx, Success},
		{"mac err", false, rn2483.MacErr, Error},
		{"not joined", true, rn2483.NotJoined, Error},
		{"timeout", false, rn2483.RxTimeout, Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Options{})
			h.modem.txResult = tt.result
			buf, _ := lpp.NewBuffer(lpp.SingleValueSize)
			buf.AddStatus(1)

			if got := h.mgr.SendLPP(buf, tt.confirmed); got != tt.want {
				t.Errorf("SendLPP() = %v, want %v", got, tt.want)
			}
			if h.modem.confirmed[0] != tt.confirmed {
				t.Errorf("confirmed = %v, want %v", h.modem.confirmed[0], tt.confirmed)
			}
			if h.modem.ports[0] != 1 {
				t.Errorf("port = %d, want 1", h.modem.ports[0])
			}
		})
	}
}

func TestSendWrappers(t *testing.T) {
	v := []int32{3300, 3290}
	it := []int32{21000, 21100}
	et := []int32{12000, -500}

	tests := []struct {
		name string
		send func(m *Manager) bool
		want []byte
		fail fault.Code
	}{
		{"measurements", func(m *Manager) bool { return m.SendMeasurements(v, it, et) },
			[]byte{0x02, 0x10, 0x02, 0x01, 0x4A, 0x01, 0x49, 0x11, 0x67, 0x00, 0xD2, 0x00, 0xD3, 0x12, 0x67, 0x00, 0x78, 0xFF, 0xFB},
			fault.MeasurementsSend},
		{"storm", func(m *Manager) bool { return m.SendStormDetected(true) }, []byte{0x01, 0x13, 0x00, 0x01}, fault.StormSend},
		{"cable", func(m *Manager) bool { return m.SendCableBroken(true) }, []byte{0x01, 0x14, 0x00, 0x01}, fault.CableSend},
		{"status", func(m *Manager) bool { return m.SendStatus(16) }, []byte{0x01, 0x15, 0x00, 0x10}, fault.StatusSend},
		{"boot report", func(m *Manager) bool { return m.SendBootReport(3300, 21000, 12000, false, false) },
			[]byte{0x10, 0x02, 0x01, 0x4A, 0x11, 0x67, 0x00, 0xD2, 0x12, 0x67, 0x00, 0x78, 0x13, 0x00, 0x00, 0x14, 0x00, 0x00, 0x15, 0x00, StatusBooted},
			fault.BootReportSend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var uplinks []Uplink
			h := newHarness(Options{OnUplink: func(kind Uplink, payload []byte, delivered bool) {
				uplinks = append(uplinks, kind)
			}})
			if !tt.send(h.mgr) {
				t.Fatalf("send failed, faults %v", h.faults.codes)
			}
			if len(h.modem.payloads) != 1 || !bytes.Equal(h.modem.payloads[0], tt.want) {
				t.Errorf("payload = % X\nwant      % X", h.modem.payloads, tt.want)
			}
			if h.modem.confirmed[0] {
				t.Error("wrapper sent a confirmed uplink")
			}
			if len(uplinks) != 1 {
				t.Errorf("observer saw %d uplinks", len(uplinks))
			}

			h.modem.txResult = rn2483.MacErr
			if tt.send(h.mgr) {
				t.Fatal("send succeeded on modem error")
			}
			if last := h.faults.codes[len(h.faults.codes)-1]; last != tt.fail {
				t.Errorf("fault = %d, want %d", last, tt.fail)
			}
		})
	}
}

func TestSendMeasurementsEncodeFailure(t *testing.T) {
	h := newHarness(Options{})
	seven := make([]int32, 7)

	if h.mgr.SendMeasurements(seven, seven, seven) {
		t.Fatal("seven readings sent")
	}
	if len(h.faults.codes) != 1 || h.faults.codes[0] != fault.MeasurementsEncode {
		t.Errorf("faults = %v, want [%d]", h.faults.codes, fault.MeasurementsEncode)
	}
	if len(h.modem.payloads) != 0 {
		t.Error("payload reached the modem")
	}
}

func TestSleepAndWakeEarly(t *testing.T) {
	h := newHarness(Options{})
	h.mgr.Sleep(time.Minute)
	if len(h.modem.sleeps) != 1 || h.modem.sleeps[0] != time.Minute {
		t.Errorf("sleeps = %v", h.modem.sleeps)
	}

	h.modem.wakeResult = rn2483.MacOK
	if got := h.mgr.WakeEarly(); got != Success {
		t.Errorf("WakeEarly() = %v, want SUCCESS", got)
	}
	h.modem.wakeResult = rn2483.RxTimeout
	if got := h.mgr.WakeEarly(); got != Error {
		t.Errorf("WakeEarly() = %v, want ERROR", got)
	}
}

func TestForwardFault(t *testing.T) {
	h := newHarness(Options{})

	h.mgr.ForwardFault(context.Background(), fault.AccelUnknownRange)

	if len(h.modem.payloads) != 1 || !bytes.Equal(h.modem.payloads[0], []byte{0x01, 0x15, 0x00, 22}) {
		t.Errorf("payloads = % X", h.modem.payloads)
	}
	if len(h.power.states) != 2 || !h.power.states[0] || h.power.states[1] {
		t.Errorf("power = %v, want [true false]", h.power.states)
	}
	if h.mgr.Status() != Idle {
		t.Errorf("Status() = %v after Disable", h.mgr.Status())
	}
	if len(h.modem.resetsAt) != 1 || h.modem.resetsAt[0] != 1 {
		t.Errorf("link resets at power changes %v, want [1]", h.modem.resetsAt)
	}
}

func TestForwardFaultWithoutJoin(t *testing.T) {
	h := newHarness(Options{MaxJoinRetries: 1})
	h.modem.joinResult = []rn2483.Status{rn2483.JoinDenied}

	h.mgr.ForwardFault(context.Background(), fault.ImpossibleState)

	if len(h.modem.payloads) != 0 {
		t.Error("status sent without a session")
	}
	if len(h.power.states) != 2 || h.power.states[1] {
		t.Errorf("modem not powered down: %v", h.power.states)
	}
}
