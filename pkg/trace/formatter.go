// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package trace

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lpp"
)

// FormatEntry renders one entry as a line of text. Uplink payloads are
// decoded when they parse.
func FormatEntry(e Entry) string {
	ts := e.Timestamp().Format("01/02/06 15:04:05.000")
	switch e.Kind {
	case KindState:
		s := fmt.Sprintf("[%s] %-8s %s -> %s count=%d", ts, e.Kind, e.From, e.To, e.Count)
		if e.Wake != "" {
			s += " wake=" + e.Wake
		}
		if e.Storm {
			s += " storm"
		}
		if e.AccumulateS > 0 {
			s += fmt.Sprintf(" slept=%ds", e.AccumulateS)
		}
		return s
	case KindUplink:
		status := "delivered"
		if !e.Delivered {
			status = "FAILED"
		}
		s := fmt.Sprintf("[%s] %-8s %s %s (%d bytes) % X", ts, e.Kind, e.Uplink, status, len(e.Payload), e.Payload)
		if u, err := lpp.Decode(e.Payload); err == nil {
			s += "\n" + indent(lpp.FormatUplink(u))
		} else if recs, err := lpp.DecodeRecords(e.Payload); err == nil {
			s += "\n" + indent(lpp.FormatRecords(recs))
		}
		return s
	case KindFault:
		code := fault.Code(e.Fault)
		return fmt.Sprintf("[%s] %-8s %d %s (%s)", ts, e.Kind, e.Fault, code, code.Band())
	case KindSerial:
		return fmt.Sprintf("[%s] %-8s %s %q", ts, e.Kind, e.Direction, string(e.Payload))
	default:
		return fmt.Sprintf("[%s] %s", ts, e.Kind)
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
