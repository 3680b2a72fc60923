// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks link traffic and timeouts.
type Statistics struct {
	StartTime time.Time

	// Counters
	TxFrames  uint64
	TxBytes   uint64
	RxFrames  uint64
	RxBytes   uint64
	Overflows uint64 // frames completed by a full buffer

	SyncTimeouts     uint64
	DMATimeouts      uint64
	CommandTimeouts  uint64
	DataTimeouts     uint64
	ResponseTimeouts uint64
}

// tracker guards the counters updated from the receive goroutine.
type tracker struct {
	mu sync.Mutex
	s  Statistics
}

func newTracker() *tracker {
	return &tracker{s: Statistics{StartTime: time.Now()}}
}

func (t *tracker) update(f func(s *Statistics)) {
	t.mu.Lock()
	f(&t.s)
	t.mu.Unlock()
}

func (t *tracker) snapshot() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}

// Timeouts returns the total number of timeouts of every kind.
func (s Statistics) Timeouts() uint64 {
	return s.SyncTimeouts + s.DMATimeouts + s.CommandTimeouts + s.DataTimeouts + s.ResponseTimeouts
}

// String returns a formatted statistics summary
func (s Statistics) String() string {
	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("TX Frames:       %8d (%d bytes)\n", s.TxFrames, s.TxBytes)
	result += fmt.Sprintf("RX Frames:       %8d (%d bytes)\n", s.RxFrames, s.RxBytes)

	if s.Overflows > 0 {
		result += fmt.Sprintf("Overflows:       %8d\n", s.Overflows)
	}
	if total := s.Timeouts(); total > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", total)
		if s.SyncTimeouts > 0 {
			result += fmt.Sprintf("  Sync:             %5d\n", s.SyncTimeouts)
		}
		if s.DMATimeouts > 0 {
			result += fmt.Sprintf("  DMA:              %5d\n", s.DMATimeouts)
		}
		if s.CommandTimeouts > 0 {
			result += fmt.Sprintf("  Command:          %5d\n", s.CommandTimeouts)
		}
		if s.DataTimeouts > 0 {
			result += fmt.Sprintf("  Data:             %5d\n", s.DataTimeouts)
		}
		if s.ResponseTimeouts > 0 {
			result += fmt.Sprintf("  Response:         %5d\n", s.ResponseTimeouts)
		}
	}
	result += "=====================================\n"

	return result
}
