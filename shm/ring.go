// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package shm

import "encoding/binary"

// RingBufferScale selects one of the three fixed live-view time
// resolutions the data segment keeps side by side.
type RingBufferScale int

const (
	Scale1s RingBufferScale = iota
	Scale10s
	Scale100s
	RingBufferScaleCount
)

// RingBufferCapacity is the fixed row count of every tier's ring buffer,
// independent of scale: each tier always holds its own most recent
// RingBufferCapacity rows, oldest evicted first.
const RingBufferCapacity = 1000

// RingBuffer is a fixed-capacity, fixed-row-width circular buffer of
// int64 vectors, laid out for direct placement inside a shared-memory
// segment: a little-endian header (write cursor, row count written) is
// followed by RingBufferCapacity*rowWidth int64 slots.
type RingBuffer struct {
	buf      []byte
	rowWidth int
	cursor   int // next slot to write, 0..RingBufferCapacity-1
	total    uint64
}

const ringHeaderSize = 8 + 8 // cursor + total, both uint64

// RingBufferSize returns the byte size of a RingBuffer's backing storage
// for the given row width (number of int64 values per row), including its
// header -- the size CreateSegment must allocate for the data segment.
func RingBufferSize(rowWidth int) int {
	return ringHeaderSize + RingBufferCapacity*rowWidth*8
}

// NewRingBuffer wraps buf (at least RingBufferSize(rowWidth) bytes, e.g.
// a Segment's Bytes()) as a RingBuffer of the given row width.
func NewRingBuffer(buf []byte, rowWidth int) *RingBuffer {
	return &RingBuffer{buf: buf, rowWidth: rowWidth}
}

// Reset clears the ring buffer's header fields, used when the daemon
// (re)starts a measurement and begins publishing from an empty buffer.
func (r *RingBuffer) Reset() {
	r.cursor = 0
	r.total = 0
	r.storeHeader()
}

// Add writes one row (length rowWidth) into the next slot, overwriting
// the oldest row once the buffer has wrapped.
func (r *RingBuffer) Add(row []int64) {
	off := ringHeaderSize + r.cursor*r.rowWidth*8
	for i := 0; i < r.rowWidth; i++ {
		v := int64(0)
		if i < len(row) {
			v = row[i]
		}
		binary.LittleEndian.PutUint64(r.buf[off+i*8:], uint64(v))
	}
	r.cursor = (r.cursor + 1) % RingBufferCapacity
	r.total++
	r.storeHeader()
}

// Get returns the n most recently added rows, oldest first, n capped at
// both RingBufferCapacity and the number of rows written so far.
func (r *RingBuffer) Get(n int) [][]int64 {
	if n > RingBufferCapacity {
		n = RingBufferCapacity
	}
	if have := int(r.total); n > have {
		n = have
	}
	out := make([][]int64, n)
	start := r.cursor - n
	for start < 0 {
		start += RingBufferCapacity
	}
	for i := 0; i < n; i++ {
		slot := (start + i) % RingBufferCapacity
		off := ringHeaderSize + slot*r.rowWidth*8
		row := make([]int64, r.rowWidth)
		for j := 0; j < r.rowWidth; j++ {
			row[j] = int64(binary.LittleEndian.Uint64(r.buf[off+j*8:]))
		}
		out[i] = row
	}
	return out
}

// Total reports how many rows have ever been written, used by readers to
// compute how many new rows have arrived since their last poll.
func (r *RingBuffer) Total() uint64 { return r.total }

func (r *RingBuffer) storeHeader() {
	binary.LittleEndian.PutUint64(r.buf[0:], uint64(r.cursor))
	binary.LittleEndian.PutUint64(r.buf[8:], r.total)
}

// LoadHeader re-reads the cursor and total-written counters from the
// backing buffer, used by a reading process (which does not itself call
// Add) to pick up the writer's current position.
func (r *RingBuffer) LoadHeader() {
	r.cursor = int(binary.LittleEndian.Uint64(r.buf[0:]))
	r.total = binary.LittleEndian.Uint64(r.buf[8:])
}
