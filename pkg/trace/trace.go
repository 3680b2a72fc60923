// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package trace records what the node did as a stream of CBOR entries:
// state transitions, uplinks, faults and serial frames. A trace file is a
// concatenation of entries and can be replayed with Reader.
package trace

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lora"
	"github.com/Thermoquad/tidewatch/pkg/node"
	"github.com/Thermoquad/tidewatch/pkg/transport"
)

// Kind is the type of a trace entry.
type Kind uint8

const (
	KindState Kind = iota + 1
	KindUplink
	KindFault
	KindSerial
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "STATE"
	case KindUplink:
		return "UPLINK"
	case KindFault:
		return "FAULT"
	case KindSerial:
		return "SERIAL"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// Entry is one trace record. Integer keys keep entries small.
type Entry struct {
	Kind Kind  `cbor:"0,keyasint"`
	Time int64 `cbor:"1,keyasint"` // unix milliseconds

	// state
	From        string `cbor:"2,keyasint,omitempty"`
	To          string `cbor:"3,keyasint,omitempty"`
	Wake        string `cbor:"4,keyasint,omitempty"`
	Count       int    `cbor:"5,keyasint,omitempty"`
	Storm       bool   `cbor:"6,keyasint,omitempty"`
	AccumulateS int64  `cbor:"7,keyasint,omitempty"`

	// uplink
	Uplink    string `cbor:"8,keyasint,omitempty"`
	Payload   []byte `cbor:"9,keyasint,omitempty"`
	Delivered bool   `cbor:"10,keyasint,omitempty"`

	// fault
	Fault uint8 `cbor:"11,keyasint,omitempty"`

	// serial
	Direction string `cbor:"12,keyasint,omitempty"`
}

// Timestamp returns the entry time.
func (e Entry) Timestamp() time.Time {
	return time.UnixMilli(e.Time)
}

// Recorder writes entries to w. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	now    func() time.Time
	failed bool
}

// NewRecorder creates a recorder. now stamps entries that carry no time of
// their own; nil selects time.Now.
func NewRecorder(w io.Writer, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{enc: cbor.NewEncoder(w), now: now}
}

// Write appends e.
func (r *Recorder) Write(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(e); err != nil {
		if !r.failed {
			log.Printf("trace: write failed: %v", err)
		}
		r.failed = true
		return fmt.Errorf("encode trace entry: %w", err)
	}
	return nil
}

// StateEntry converts a state machine step. The wake source is kept only
// for steps out of WAKEUP, where it was decided.
func StateEntry(ev node.Event) Entry {
	e := Entry{
		Kind:        KindState,
		Time:        ev.Time.UnixMilli(),
		From:        ev.From.String(),
		To:          ev.To.String(),
		Count:       ev.Count,
		Storm:       ev.StormDetected,
		AccumulateS: int64(ev.Accumulated / time.Second),
	}
	if ev.From == node.StateWakeup {
		e.Wake = ev.Wake.String()
	}
	return e
}

// UplinkEntry describes a payload handed to the modem at t.
func UplinkEntry(t time.Time, kind lora.Uplink, payload []byte, delivered bool) Entry {
	return Entry{
		Kind:      KindUplink,
		Time:      t.UnixMilli(),
		Uplink:    string(kind),
		Payload:   append([]byte(nil), payload...),
		Delivered: delivered,
	}
}

// FaultEntry describes a fault raised at t.
func FaultEntry(t time.Time, code fault.Code) Entry {
	return Entry{Kind: KindFault, Time: t.UnixMilli(), Fault: uint8(code)}
}

// SerialEntry describes a frame on the modem link at t.
func SerialEntry(t time.Time, dir transport.Direction, data []byte) Entry {
	d := "tx"
	if dir == transport.Rx {
		d = "rx"
	}
	return Entry{
		Kind:      KindSerial,
		Time:      t.UnixMilli(),
		Direction: d,
		Payload:   append([]byte(nil), data...),
	}
}

// State records a state machine step.
func (r *Recorder) State(ev node.Event) {
	r.Write(StateEntry(ev))
}

// Uplink records a payload handed to the modem.
func (r *Recorder) Uplink(kind lora.Uplink, payload []byte, delivered bool) {
	r.Write(UplinkEntry(r.now(), kind, payload, delivered))
}

// Fault records a raised fault.
func (r *Recorder) Fault(code fault.Code) {
	r.Write(FaultEntry(r.now(), code))
}

// Serial records a frame on the modem link.
func (r *Recorder) Serial(dir transport.Direction, data []byte) {
	r.Write(SerialEntry(r.now(), dir, data))
}

// Reader decodes entries written by a Recorder.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next entry, or io.EOF at the end of the trace.
func (r *Reader) Next() (Entry, error) {
	var e Entry
	if err := r.dec.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			return e, io.EOF
		}
		return e, fmt.Errorf("decode trace entry: %w", err)
	}
	return e, nil
}

// ReadAll returns every entry up to the end of the trace.
func (r *Reader) ReadAll() ([]Entry, error) {
	var entries []Entry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
}
