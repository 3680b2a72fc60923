// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lora"
	"github.com/Thermoquad/tidewatch/pkg/node"
	"github.com/Thermoquad/tidewatch/pkg/transport"
	"github.com/Thermoquad/tidewatch/pkg/wake"
)

type fixedMachine node.Snapshot

func (m fixedMachine) Snapshot() node.Snapshot { return node.Snapshot(m) }

type fixedLink transport.Statistics

func (l fixedLink) Statistics() transport.Statistics { return transport.Statistics(l) }

type fixedRadio lora.Status

func (r fixedRadio) Status() lora.Status { return lora.Status(r) }

type fixedFaults struct {
	last  fault.Code
	count uint64
}

func (f fixedFaults) Last() (fault.Code, bool) { return f.last, f.count > 0 }
func (f fixedFaults) Count() uint64            { return f.count }

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	h := NewRouter(Options{Machine: fixedMachine{}})
	rec := do(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["service"] != "tidewatch" {
		t.Errorf("body = %v", body)
	}
}

func TestStatus(t *testing.T) {
	h := NewRouter(Options{
		Machine: fixedMachine{
			State:       node.StateSleepRemaining,
			Count:       4,
			Accumulated: 20 * time.Minute,
			Steps:       17,
			LastWake:    node.WakeActivity,
			LastCauses:  wake.Accel,
		},
		Link:   fixedLink{TxFrames: 10, RxFrames: 9, DataTimeouts: 1, CommandTimeouts: 2},
		Radio:  fixedRadio(lora.Joined),
		Faults: fixedFaults{last: fault.DataResponseTimeout, count: 3},
	})

	rec := do(t, h, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.State != "SLEEP_REMAINING" || got.BatchCount != 4 || got.AccumulatedS != 1200 || got.Steps != 17 {
		t.Errorf("machine fields = %+v", got)
	}
	if got.LastWake != "activity" || got.LastCauses != "accel" {
		t.Errorf("wake = %q causes = %q", got.LastWake, got.LastCauses)
	}
	if got.Radio != lora.Joined.String() {
		t.Errorf("radio = %q", got.Radio)
	}
	if got.Faults == nil || got.Faults.Count != 3 || got.Faults.Last != uint8(fault.DataResponseTimeout) {
		t.Errorf("faults = %+v", got.Faults)
	}
	if got.Link == nil || got.Link.TxFrames != 10 || got.Link.Timeouts != 3 {
		t.Errorf("link = %+v", got.Link)
	}
}

func TestStatusWithoutOptionalSources(t *testing.T) {
	h := NewRouter(Options{Machine: fixedMachine{State: node.StateInit}})
	var got StatusResponse
	json.NewDecoder(do(t, h, http.MethodGet, "/status").Body).Decode(&got)
	if got.Faults != nil || got.Link != nil || got.Radio != "" {
		t.Errorf("optional fields present: %+v", got)
	}
}

type controlLog struct {
	mu     sync.Mutex
	events []wake.Event
	shakes []int
	cuts   int
}

func (c *controlLog) controls() *Controls {
	return &Controls{
		Post: func(ev wake.Event) {
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		},
		Shake: func(n int) {
			c.mu.Lock()
			c.shakes = append(c.shakes, n)
			c.mu.Unlock()
		},
		CutCable: func() {
			c.mu.Lock()
			c.cuts++
			c.mu.Unlock()
		},
	}
}

func TestSimulationRoutes(t *testing.T) {
	log := &controlLog{}
	h := NewRouter(Options{Machine: fixedMachine{}, Controls: log.controls()})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/sim/button/0", http.StatusOK},
		{http.MethodPost, "/sim/button/1", http.StatusOK},
		{http.MethodPost, "/sim/button/2", http.StatusBadRequest},
		{http.MethodPost, "/sim/timer", http.StatusOK},
		{http.MethodPost, "/sim/shake/12", http.StatusOK},
		{http.MethodPost, "/sim/shake/0", http.StatusBadRequest},
		{http.MethodPost, "/sim/shake/lots", http.StatusBadRequest},
		{http.MethodPost, "/sim/cable/cut", http.StatusOK},
		{http.MethodPost, "/sim/cable/repair", http.StatusNotFound},
		{http.MethodGet, "/sim/timer", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if rec := do(t, h, tt.method, tt.path); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if len(log.events) != 3 || log.events[0] != wake.Button0 || log.events[1] != wake.Button1 || log.events[2] != wake.Timer {
		t.Errorf("events = %v", log.events)
	}
	if len(log.shakes) != 1 || log.shakes[0] != 12 {
		t.Errorf("shakes = %v", log.shakes)
	}
	if log.cuts != 1 {
		t.Errorf("cuts = %d", log.cuts)
	}
}

func TestNoSimulationRoutesByDefault(t *testing.T) {
	h := NewRouter(Options{Machine: fixedMachine{}})
	if rec := do(t, h, http.MethodPost, "/sim/button/0"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestWatchdogPetsWhileAlive(t *testing.T) {
	var mu sync.Mutex
	var states []string
	notify = func(unsetEnv bool, state string) (bool, error) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
		return true, nil
	}
	defer func() { notify = daemon.SdNotify }()

	alive := true
	var aliveMu sync.Mutex
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go func() {
		time.Sleep(25 * time.Millisecond)
		aliveMu.Lock()
		alive = false
		aliveMu.Unlock()
	}()
	watchdogLoop(ctx, 5*time.Millisecond, func() bool {
		aliveMu.Lock()
		defer aliveMu.Unlock()
		return alive
	})

	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 {
		t.Fatal("watchdog never petted")
	}
	if len(states) > 6 {
		t.Errorf("watchdog petted %d times after liveness was lost", len(states))
	}
	for _, s := range states {
		if s != daemon.SdNotifyWatchdog {
			t.Errorf("notified %q", s)
		}
	}
}

func TestNotifyStatus(t *testing.T) {
	var got string
	notify = func(unsetEnv bool, state string) (bool, error) {
		got = state
		return false, nil
	}
	defer func() { notify = daemon.SdNotify }()

	NotifyStatus("SLEEP count=3")
	if got != "STATUS=SLEEP count=3" {
		t.Errorf("notified %q", got)
	}
}
