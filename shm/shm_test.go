// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package shm

import "testing"

// TestRingBufferCapacity verifies that each tier always holds exactly its
// most recent RingBufferCapacity rows, oldest evicted first.
func TestRingBufferCapacity(t *testing.T) {
	const width = 3
	buf := make([]byte, RingBufferSize(width))
	r := NewRingBuffer(buf, width)
	r.Reset()

	for i := 0; i < RingBufferCapacity+10; i++ {
		r.Add([]int64{int64(i), int64(i) + 1, int64(i) + 2})
	}

	got := r.Get(RingBufferCapacity)
	if len(got) != RingBufferCapacity {
		t.Fatalf("Get(%d) returned %d rows", RingBufferCapacity, len(got))
	}
	wantFirst := int64(10)
	if got[0][0] != wantFirst {
		t.Errorf("oldest retained row = %d, want %d", got[0][0], wantFirst)
	}
	wantLast := int64(RingBufferCapacity + 9)
	if got[len(got)-1][0] != wantLast {
		t.Errorf("newest row = %d, want %d", got[len(got)-1][0], wantLast)
	}
}

// TestRingBufferGetBeforeFull covers the partially-filled case: Get must
// not fabricate rows that were never written.
func TestRingBufferGetBeforeFull(t *testing.T) {
	const width = 2
	buf := make([]byte, RingBufferSize(width))
	r := NewRingBuffer(buf, width)
	r.Reset()

	r.Add([]int64{1, 2})
	r.Add([]int64{3, 4})

	got := r.Get(100)
	if len(got) != 2 {
		t.Fatalf("Get(100) with 2 rows written returned %d rows", len(got))
	}
	if got[0][0] != 1 || got[1][0] != 3 {
		t.Errorf("got %v, want [[1 2] [3 4]]", got)
	}
}

// TestStatusRoundTrip verifies the status record survives an encode then
// decode cycle, including the fixed sensor-index array.
func TestStatusRoundTrip(t *testing.T) {
	buf := make([]byte, statusRecordSize)
	want := Status{
		Sampling:         true,
		Error:            false,
		SampleCount:      123456789,
		BlockCount:       42,
		CalibrationTime:  1700000000,
		DiskFreeBytes:    987654321,
		DiskFreePermille: 500,
		BytesPerSecond:   8000,
		SensorCount:      2,
	}
	want.SensorIndex[0] = 3
	want.SensorIndex[1] = 7

	encodeStatus(buf, want)
	got := decodeStatus(buf)

	if got != want {
		t.Errorf("decodeStatus(encodeStatus(s)) = %+v, want %+v", got, want)
	}
}
