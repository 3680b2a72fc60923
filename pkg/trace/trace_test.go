// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package trace

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lora"
	"github.com/Thermoquad/tidewatch/pkg/node"
	"github.com/Thermoquad/tidewatch/pkg/transport"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return epoch }

func TestRecordAndRead(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf, fixedNow)

	r.State(node.Event{
		Time:          epoch,
		From:          node.StateWakeup,
		To:            node.StateSleepRemaining,
		Wake:          node.WakeActivity,
		Count:         3,
		Accumulated:   10 * time.Minute,
		StormDetected: false,
	})
	r.Uplink(lora.UplinkStatus, []byte{0x01, 0x15, 0x00, 0x16}, true)
	r.Fault(fault.AccelUnknownRange)
	r.Serial(transport.Rx, []byte("mac_tx_ok\r"))

	entries, err := NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}

	st := entries[0]
	if st.Kind != KindState || st.From != "WAKEUP" || st.To != "SLEEP_REMAINING" || st.Wake != "activity" || st.Count != 3 || st.AccumulateS != 600 {
		t.Errorf("state entry = %+v", st)
	}
	if !st.Timestamp().Equal(epoch) {
		t.Errorf("timestamp = %v", st.Timestamp())
	}

	up := entries[1]
	if up.Kind != KindUplink || up.Uplink != "status" || !up.Delivered || !bytes.Equal(up.Payload, []byte{0x01, 0x15, 0x00, 0x16}) {
		t.Errorf("uplink entry = %+v", up)
	}
	if entries[2].Kind != KindFault || entries[2].Fault != uint8(fault.AccelUnknownRange) {
		t.Errorf("fault entry = %+v", entries[2])
	}
	if entries[3].Direction != "rx" || string(entries[3].Payload) != "mac_tx_ok\r" {
		t.Errorf("serial entry = %+v", entries[3])
	}
}

func TestStateOmitsWakeOutsideWakeup(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf, fixedNow)
	r.State(node.Event{Time: epoch, From: node.StateMeasure, To: node.StateSleep, Wake: node.WakeTimer})

	entries, err := NewReader(&buf).ReadAll()
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadAll = %v, %v", entries, err)
	}
	if entries[0].Wake != "" {
		t.Errorf("wake = %q on a measure step", entries[0].Wake)
	}
}

func TestReaderRejectsGarbage(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0xFF, 0x00})).ReadAll()
	if err == nil {
		t.Error("garbage decoded")
	}
}

func TestFormatEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  []string
	}{
		{"state", Entry{Kind: KindState, From: "WAKEUP", To: "SEND_STORM", Wake: "storm", Count: 2},
			[]string{"STATE", "WAKEUP -> SEND_STORM", "wake=storm"}},
		{"status uplink", Entry{Kind: KindUplink, Uplink: "status", Payload: []byte{0x01, 0x15, 0x00, 0x0A}, Delivered: true},
			[]string{"status delivered", "01 15 00 0A"}},
		{"failed uplink", Entry{Kind: KindUplink, Uplink: "storm", Payload: []byte{0x01, 0x13, 0x00, 0x01}},
			[]string{"storm FAILED"}},
		{"fault", Entry{Kind: KindFault, Fault: 52}, []string{"FAULT", "52"}},
		{"serial", Entry{Kind: KindSerial, Direction: "tx", Payload: []byte("sys get ver\r\n")}, []string{"tx", `"sys get ver\r\n"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatEntry(tt.entry)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("FormatEntry() = %q, missing %q", got, w)
				}
			}
		})
	}
}
