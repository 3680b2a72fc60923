// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpp

import (
	"errors"
	"fmt"
)

// ErrCapacity is returned for a buffer capacity outside 1..MaxCapacity.
var ErrCapacity = errors.New("lpp: invalid buffer capacity")

// Buffer is a capacity-bounded payload under construction. A buffer is
// created for one message and released once that message is sent.
type Buffer struct {
	data     []byte
	fill     int
	released bool
}

// NewBuffer allocates a buffer of exactly capacity bytes.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ErrCapacity, capacity)
	}
	return &Buffer{data: make([]byte, capacity)}, nil
}

// Capacity returns the declared capacity.
func (b *Buffer) Capacity() int { return len(b.data) }

// Len returns the number of bytes written.
func (b *Buffer) Len() int { return b.fill }

// Space returns the number of bytes that can still be written.
func (b *Buffer) Space() int {
	if b.released {
		return 0
	}
	return len(b.data) - b.fill
}

// Bytes returns the written part of the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.fill] }

// Released reports whether Release was called.
func (b *Buffer) Released() bool { return b.released }

// Release drops the backing storage. Appends to a released buffer fail.
func (b *Buffer) Release() {
	b.data = nil
	b.fill = 0
	b.released = true
}

// put appends record if it fits entirely, otherwise leaves b untouched.
func (b *Buffer) put(record ...byte) bool {
	if len(record) > b.Space() {
		return false
	}
	copy(b.data[b.fill:], record)
	b.fill += len(record)
	return true
}
