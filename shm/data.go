// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package shm

import "encoding/binary"

// dataHeaderSize is the data segment's own fixed header, ahead of the
// three ring buffers: an 8-byte realtime timestamp in milliseconds of the
// most recent publish (copied in under the data semaphore alongside the
// ring buffer pushes, so a reader can tell whether it has already seen
// the newest element) followed by a 4-byte row width, fixed for the
// lifetime of the segment, that lets a reader process -- which has no
// config of its own -- discover the channel count before it can size its
// own ring buffer views.
const dataHeaderSize = 8 + 4

// DataHandle owns the data shared-memory segment at DataKey: a small
// fixed header followed by three fixed-width ring buffers, one per
// RingBufferScale, laid out back to back.
type DataHandle struct {
	seg   *Segment
	rows  [RingBufferScaleCount]*RingBuffer
	owner bool
}

// DataSegmentSize returns the total byte size of the data segment for the
// given row width, the size CreateData/OpenData must request.
func DataSegmentSize(rowWidth int) int {
	return dataHeaderSize + int(RingBufferScaleCount)*RingBufferSize(rowWidth)
}

// CreateData creates (or recreates) the data segment sized for rowWidth
// int64 values per row and initializes all three ring buffers empty. It
// is called once by the owning daemon at measurement start.
func CreateData(rowWidth int) (*DataHandle, error) {
	size := DataSegmentSize(rowWidth)
	seg, err := CreateSegment(DataKey, size)
	if err != nil {
		return nil, err
	}
	h := newDataHandle(seg, rowWidth, true)
	h.SetTimestampMs(0)
	h.setRowWidth(rowWidth)
	for _, r := range h.rows {
		r.Reset()
	}
	return h, nil
}

// OpenData attaches to an already-created data segment whose row width
// is already known to the caller (the sampler's own configuration, for
// example). Readers with no config of their own should use OpenDataAuto
// instead.
func OpenData(rowWidth int) (*DataHandle, error) {
	size := DataSegmentSize(rowWidth)
	seg, err := OpenSegment(DataKey, size)
	if err != nil {
		return nil, err
	}
	h := newDataHandle(seg, rowWidth, false)
	for _, r := range h.rows {
		r.LoadHeader()
	}
	return h, nil
}

// OpenDataAuto attaches to the data segment without already knowing its
// row width: it first opens just the fixed header to read the row width
// the sampler recorded at CreateData, detaches, then reopens sized for
// the full three ring buffers. This is how the live-view reader, a
// separate process with no measurement config of its own, discovers the
// segment's shape.
func OpenDataAuto() (*DataHandle, error) {
	probe, err := OpenSegment(DataKey, dataHeaderSize)
	if err != nil {
		return nil, err
	}
	rowWidth := int(int32(binary.LittleEndian.Uint32(probe.Bytes()[8:])))
	if err := probe.Detach(); err != nil {
		return nil, err
	}
	return OpenData(rowWidth)
}

func newDataHandle(seg *Segment, rowWidth int, owner bool) *DataHandle {
	buf := seg.Bytes()
	perScale := RingBufferSize(rowWidth)
	var rows [RingBufferScaleCount]*RingBuffer
	for s := RingBufferScale(0); s < RingBufferScaleCount; s++ {
		off := dataHeaderSize + int(s)*perScale
		rows[s] = NewRingBuffer(buf[off:off+perScale], rowWidth)
	}
	return &DataHandle{seg: seg, rows: rows, owner: owner}
}

// Buffer returns the ring buffer for the given scale.
func (h *DataHandle) Buffer(scale RingBufferScale) *RingBuffer { return h.rows[scale] }

// RowWidth returns the channel count recorded at CreateData.
func (h *DataHandle) RowWidth() int {
	return int(int32(binary.LittleEndian.Uint32(h.seg.Bytes()[8:])))
}

func (h *DataHandle) setRowWidth(n int) {
	binary.LittleEndian.PutUint32(h.seg.Bytes()[8:], uint32(n))
}

// SetTimestampMs records the realtime timestamp, in milliseconds, of the
// most recent publish. The sampler calls this under the data semaphore,
// alongside pushing the new rows.
func (h *DataHandle) SetTimestampMs(ms int64) {
	binary.LittleEndian.PutUint64(h.seg.Bytes()[0:], uint64(ms))
}

// TimestampMs returns the realtime timestamp, in milliseconds, recorded
// by the most recent SetTimestampMs call. Readers call this under the
// data semaphore to decide whether anything newer than their own
// last-seen timestamp has been published.
func (h *DataHandle) TimestampMs() int64 {
	return int64(binary.LittleEndian.Uint64(h.seg.Bytes()[0:]))
}

// Close detaches from the segment. If this handle created the segment it
// also marks it for removal.
func (h *DataHandle) Close() error {
	if h.owner {
		return h.seg.Destroy()
	}
	return h.seg.Detach()
}
