// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lora"
	"github.com/Thermoquad/tidewatch/pkg/node"
	"github.com/Thermoquad/tidewatch/pkg/trace"
)

// eventSink sends node activity to the monitor TUI, or prints it as trace
// lines when there is no TUI. program must be set before the node starts.
type eventSink struct {
	program *tea.Program
	now     func() time.Time
}

func (s *eventSink) event(ev node.Event) {
	if s.program != nil {
		s.program.Send(nodeEventMsg(ev))
		return
	}
	fmt.Println(trace.FormatEntry(trace.StateEntry(ev)))
}

func (s *eventSink) uplink(kind lora.Uplink, payload []byte, delivered bool) {
	at := s.now()
	if s.program != nil {
		s.program.Send(uplinkMsg{kind: kind, payload: append([]byte(nil), payload...), delivered: delivered, at: at})
		return
	}
	fmt.Println(trace.FormatEntry(trace.UplinkEntry(at, kind, payload, delivered)))
}

func (s *eventSink) fault(code fault.Code) {
	at := s.now()
	if s.program != nil {
		s.program.Send(faultMsg{code: code, at: at})
		return
	}
	fmt.Println(trace.FormatEntry(trace.FaultEntry(at, code)))
}

// hook installs the sink on o.
func (s *eventSink) hook(o *stackOptions) {
	s.now = o.clock.Now
	o.onEvent = s.event
	o.onUplink = s.uplink
	o.onFault = s.fault
}

// tuiOptions selects the monitor TUI.
type tuiOptions struct {
	enabled  bool
	title    string
	connInfo string
	// logFile receives log output while the TUI owns the terminal. Empty
	// discards it.
	logFile string
}

// runNode runs stack until ctx ends, under the monitor TUI when enabled.
// Quitting the TUI stops the node.
func runNode(ctx context.Context, stack *nodeStack, sink *eventSink, tui tuiOptions, alive func() bool) error {
	if !tui.enabled {
		return stack.serve(ctx, alive)
	}

	prev := log.Writer()
	defer log.SetOutput(prev)
	if tui.logFile != "" {
		f, err := tea.LogToFile(tui.logFile, "tidewatch")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink.program = tea.NewProgram(newMonitorModel(tui.title, tui.connInfo, stack))
	errCh := make(chan error, 1)
	go func() {
		errCh <- stack.serve(ctx, alive)
		sink.program.Quit()
	}()

	if _, err := sink.program.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	cancel()
	return <-errCh
}
