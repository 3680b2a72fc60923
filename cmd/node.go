// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/Thermoquad/tidewatch/pkg/config"
	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/hal/sim"
	"github.com/Thermoquad/tidewatch/pkg/lora"
	"github.com/Thermoquad/tidewatch/pkg/node"
	"github.com/Thermoquad/tidewatch/pkg/rn2483"
	"github.com/Thermoquad/tidewatch/pkg/statusapi"
	"github.com/Thermoquad/tidewatch/pkg/trace"
	"github.com/Thermoquad/tidewatch/pkg/transport"
	"github.com/Thermoquad/tidewatch/pkg/wake"
)

// stackOptions describes the modem side of a node. Everything else (the
// sensors, accelerometer, buttons, cable probe and RTC) runs on the host.
type stackOptions struct {
	cfg    *config.Config
	clock  *sim.Clock
	periph transport.Peripheral
	attach func(link *transport.Transport)
	power  lora.PowerSwitch

	trace       io.Writer
	traceSerial bool

	// Hooks for the monitor. Each may be nil.
	onEvent  func(node.Event)
	onUplink func(kind lora.Uplink, payload []byte, delivered bool)
	onFault  func(fault.Code)
}

// nodeStack is a fully wired node.
type nodeStack struct {
	cfg      *config.Config
	clock    *sim.Clock
	queue    *wake.Queue
	sensors  *sim.Sensors
	accel    *sim.Accelerometer
	buttons  *sim.Buttons
	probe    *sim.CableProbe
	led      *sim.LED
	link     *transport.Transport
	manager  *lora.Manager
	faults   *fault.Escalator
	machine  *node.Machine
	recorder *trace.Recorder
}

func buildNode(ctx context.Context, o stackOptions) *nodeStack {
	s := &nodeStack{
		cfg:   o.cfg,
		clock: o.clock,
		queue: wake.NewQueue(),
		probe: &sim.CableProbe{},
		led:   &sim.LED{},
	}
	if o.trace != nil {
		s.recorder = trace.NewRecorder(o.trace, s.clock.Now)
	}

	fopts := o.cfg.FaultOptions()
	fopts.Indicator = s.led
	fopts.OnRaise = func(code fault.Code) {
		if s.recorder != nil {
			s.recorder.Fault(code)
		}
		if o.onFault != nil {
			o.onFault(code)
		}
	}
	s.faults = fault.NewEscalator(ctx, fopts)

	s.sensors = sim.NewSensors(s.clock, s.faults)
	s.accel = sim.NewAccelerometer(s.queue, s.faults)
	s.buttons = sim.NewButtons(s.queue)

	topts := transport.Options{Timeouts: o.cfg.Timeouts(), Clock: s.clock}
	if s.recorder != nil && o.traceSerial {
		topts.Observer = s.recorder.Serial
	}
	s.link = transport.New(o.periph, s.faults, topts)
	o.attach(s.link)

	rtc := sim.NewRTC(s.clock, s.queue)
	lopts := o.cfg.LoRaOptions()
	lopts.OnUplink = func(kind lora.Uplink, payload []byte, delivered bool) {
		if s.recorder != nil {
			s.recorder.Uplink(kind, payload, delivered)
		}
		if o.onUplink != nil {
			o.onUplink(kind, payload, delivered)
		}
	}
	s.manager = lora.NewManager(rn2483.New(s.link), o.power, rtc, s.faults, lopts)
	s.faults.SetForwarder(s.manager)

	s.machine = node.NewMachine(o.cfg.NodeConfig(), node.Deps{
		Sensors:   s.sensors,
		Accel:     s.accel,
		Sleeper:   rtc,
		Events:    s.queue,
		Indicator: s.led,
		Radio:     s.manager,
		Cable:     node.NewCableMonitor(s.probe, s.manager),
		Faults:    s.faults,
		Now:       s.clock.Now,
		Observer: func(ev node.Event) {
			if s.recorder != nil {
				s.recorder.State(ev)
			}
			if o.cfg.API.Notify {
				statusapi.NotifyStatus(fmt.Sprintf("%s batch=%d", ev.To, ev.Count))
			}
			if o.onEvent != nil {
				o.onEvent(ev)
			}
		},
	})
	return s
}

// controls exposes the simulated inputs to the status API.
func (s *nodeStack) controls() *statusapi.Controls {
	return &statusapi.Controls{
		Post:        s.queue.Post,
		Shake:       s.accel.Shake,
		CutCable:    s.probe.Cut,
		RepairCable: s.probe.Repair,
	}
}

// serve runs the machine, and the status API when one is configured, until
// ctx ends. alive feeds the systemd watchdog.
func (s *nodeStack) serve(ctx context.Context, alive func() bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if addr := s.cfg.API.Listen; addr != "" {
		router := statusapi.NewRouter(statusapi.Options{
			Machine:  s.machine,
			Link:     s.link,
			Radio:    s.manager,
			Faults:   s.faults,
			Controls: s.controls(),
			Now:      s.clock.Now,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := statusapi.Serve(ctx, addr, router); err != nil {
				log.Printf("status api failed: %v", err)
				cancel()
			}
		}()
	}
	if s.cfg.API.Notify {
		statusapi.NotifyReady()
		wg.Add(1)
		go func() {
			defer wg.Done()
			statusapi.RunWatchdog(ctx, alive)
		}()
	}

	err := s.machine.Run(ctx)
	if s.cfg.API.Notify {
		statusapi.NotifyStopping()
	}
	cancel()
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openTrace creates the trace file named by path, or returns nil for "".
func openTrace(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace: %w", err)
	}
	return f, nil
}
