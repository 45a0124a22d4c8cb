// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package shm

import (
	"encoding/binary"
	"sync"
)

// SensorCountMax bounds the number of concurrently discovered ambient
// sensors recorded in Status, matching RL_SENSOR_COUNT_MAX.
const SensorCountMax = 128

// Status is the process-wide status record, read by any CLI or server
// invocation and written only by the owning daemon/sampler.
type Status struct {
	Sampling           bool
	WebEnable          bool
	Error              bool
	SampleCount        uint64
	BlockCount         uint32
	CalibrationTime    uint64
	DiskFreeBytes      uint64
	DiskFreePermille   uint16
	BytesPerSecond     uint32
	SensorCount        uint16
	SensorIndex        [SensorCountMax]int32
}

const statusRecordSize = 1 + 1 + 1 + 8 + 4 + 8 + 8 + 2 + 4 + 2 + SensorCountMax*4

// StatusHandle is an explicit, typed handle onto the status shared-memory
// segment: instead of a global status variable mutated from daemon,
// sampler, and CLI alike, the daemon owns a writable handle and lends
// read-only handles to peers.
type StatusHandle struct {
	seg    *Segment
	mu     sync.Mutex // serializes readers and writers within this process; no cross-process lock guards the record
	owner  bool
}

// CreateStatus creates (or re-creates) the status segment; it is called
// once by the owning daemon.
func CreateStatus() (*StatusHandle, error) {
	seg, err := CreateSegment(StatusKey, statusRecordSize)
	if err != nil {
		return nil, err
	}
	return &StatusHandle{seg: seg, owner: true}, nil
}

// OpenStatus attaches to an already-created status segment; used by the
// sampler, CLI, and server processes as read (or, for the sampler,
// read-write) peers.
func OpenStatus() (*StatusHandle, error) {
	seg, err := OpenSegment(StatusKey, statusRecordSize)
	if err != nil {
		return nil, err
	}
	return &StatusHandle{seg: seg}, nil
}

// Read decodes the current status record. It does not itself take any
// semaphore; callers that need a consistent snapshot across the
// sampling/error/count fields should still serialize with the data
// semaphore if they are racing a concurrent Set.
func (h *StatusHandle) Read() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return decodeStatus(h.seg.Bytes())
}

// Set overwrites the status record via a typed setter rather than a raw
// memory write.
func (h *StatusHandle) Set(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	encodeStatus(h.seg.Bytes(), s)
}

// Close detaches from the segment. If this handle created the segment, it
// also marks it for removal once all attaches are released.
func (h *StatusHandle) Close() error {
	if h.owner {
		return h.seg.Destroy()
	}
	return h.seg.Detach()
}

func encodeStatus(buf []byte, s Status) {
	off := 0
	putBool(buf, off, s.Sampling)
	off++
	putBool(buf, off, s.WebEnable)
	off++
	putBool(buf, off, s.Error)
	off++
	binary.LittleEndian.PutUint64(buf[off:], s.SampleCount)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], s.BlockCount)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], s.CalibrationTime)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], s.DiskFreeBytes)
	off += 8
	binary.LittleEndian.PutUint16(buf[off:], s.DiskFreePermille)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:], s.BytesPerSecond)
	off += 4
	binary.LittleEndian.PutUint16(buf[off:], s.SensorCount)
	off += 2
	for _, idx := range s.SensorIndex {
		binary.LittleEndian.PutUint32(buf[off:], uint32(idx))
		off += 4
	}
}

func decodeStatus(buf []byte) Status {
	var s Status
	off := 0
	s.Sampling = getBool(buf, off)
	off++
	s.WebEnable = getBool(buf, off)
	off++
	s.Error = getBool(buf, off)
	off++
	s.SampleCount = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	s.BlockCount = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	s.CalibrationTime = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	s.DiskFreeBytes = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	s.DiskFreePermille = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	s.BytesPerSecond = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	s.SensorCount = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	for i := range s.SensorIndex {
		s.SensorIndex[i] = int32(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	return s
}

func putBool(buf []byte, off int, v bool) {
	if v {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
}

func getBool(buf []byte, off int) bool {
	return buf[off] != 0
}
