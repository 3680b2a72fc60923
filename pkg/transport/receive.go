// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import "github.com/Thermoquad/tidewatch/pkg/fault"

// RxBufferSize is the capacity of the receive buffer. A frame completes at
// a line feed or when RxBufferSize-1 bytes have accumulated.
const RxBufferSize = 64

// ReceiveByte is the receive completion callback. The line feed ending a
// frame is dropped; a preceding carriage return is kept. Completing a frame
// resets the cursor so the next byte starts a new frame.
func (t *Transport) ReceiveByte(b byte) {
	t.mu.Lock()
	var frame []byte
	overflow := false
	if b == '\n' {
		frame = t.completeLocked()
		t.line = append(t.carry, frame...)
		t.carry = nil
	} else {
		t.rx[t.cursor] = b
		t.cursor++
		if t.cursor >= RxBufferSize-1 {
			frame = t.completeLocked()
			t.carry = append(t.carry, frame...)
			overflow = true
		}
	}
	t.mu.Unlock()

	if frame == nil {
		return
	}
	t.stats.update(func(s *Statistics) {
		s.RxFrames++
		s.RxBytes += uint64(len(frame))
		if overflow {
			s.Overflows++
		}
	})
	if t.observer != nil {
		t.observer(Rx, frame)
	}
}

// completeLocked publishes the buffered bytes as the current frame.
func (t *Transport) completeLocked() []byte {
	frame := make([]byte, t.cursor)
	copy(frame, t.rx[:t.cursor])
	t.frame = frame
	t.cursor = 0
	t.complete.Store(true)
	return frame
}

// ResponseAvailable reports whether a completed frame is waiting.
func (t *Transport) ResponseAvailable() bool {
	return t.complete.Load()
}

// ReadResponse returns the last completed frame and clears the completion
// flag.
func (t *Transport) ReadResponse() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := string(t.frame)
	t.complete.Store(false)
	t.cursor = 0
	return s
}

// ReadLine returns the last complete line and clears the completion flag.
// Frames cut at the buffer limit are joined with the frames that follow them
// up to the line feed; ReadLine waits under the response budget for the rest
// of a cut line.
func (t *Transport) ReadLine() string {
	if !t.waitFor(func() bool { return !t.lineCut() }, t.timeouts.Response) {
		t.stats.update(func(s *Statistics) { s.ResponseTimeouts++ })
		t.faults.Raise(fault.AwaitResponseTimeout)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	line := t.line
	if len(t.carry) > 0 {
		line = t.carry
	}
	t.complete.Store(false)
	return string(line)
}

func (t *Transport) lineCut() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.carry) > 0
}

// ClearBuffers zeroes the receive buffer and drops any completed frame.
func (t *Transport) ClearBuffers() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = [RxBufferSize]byte{}
	t.cursor = 0
	t.frame = nil
	t.carry = nil
	t.line = nil
	t.complete.Store(false)
}

func (t *Transport) resetCursor() {
	t.mu.Lock()
	t.cursor = 0
	t.mu.Unlock()
}
