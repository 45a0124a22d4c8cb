// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rld

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethz-csg/rocketlogger-go/channel"
)

func TestHeaderRoundTrip(t *testing.T) {
	enabled := map[channel.Channel]bool{channel.V1: true, channel.V2: true, channel.I1H: true, channel.I2H: true}
	descs, binCount := BuildDescriptors(false, enabled)

	dir := t.TempDir()
	path := filepath.Join(dir, "data.rld")
	start := Timestamp{Sec: 1700000000}
	w, err := Create(path, 1000, [6]byte{1, 2, 3, 4, 5, 6}, start, "test comment", descs, binCount, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	var got LeadIn
	if err := binary.Read(f, binary.LittleEndian, &got); err != nil {
		t.Fatalf("reading lead-in: %v", err)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	wantLen := HeaderLength("test comment", len(descs))
	if got.HeaderLength != wantLen {
		t.Errorf("header_length = %d, want %d", got.HeaderLength, wantLen)
	}
	expected := uint16(LeadInSize) + uint16(paddedCommentLength("test comment")) + uint16(len(descs))*ChannelDescriptorSize
	if got.HeaderLength != expected {
		t.Errorf("header_length = %d, want invariant-derived %d", got.HeaderLength, expected)
	}
	if got.ChannelCount != uint16(len(descs))-binCount {
		t.Errorf("channel_count = %d, want %d", got.ChannelCount, len(descs)-int(binCount))
	}
}

func TestSampleCountMonotonic(t *testing.T) {
	enabled := map[channel.Channel]bool{channel.V1: true}
	descs, binCount := BuildDescriptors(false, enabled)
	dir := t.TempDir()
	path := filepath.Join(dir, "data.rld")

	w, err := Create(path, 1000, [6]byte{}, Timestamp{}, "", descs, binCount, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var total uint64
	for i := 0; i < 5; i++ {
		rows := make([][]byte, 10)
		for j := range rows {
			rows[j] = make([]byte, 4)
		}
		if err := w.WriteBlock(Timestamp{}, Timestamp{}, rows); err != nil {
			t.Fatalf("WriteBlock: %v", err)
		}
		total += uint64(len(rows))
		if w.leadIn.SampleCount != total {
			t.Fatalf("sample_count = %d, want %d", w.leadIn.SampleCount, total)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRolloverNaming(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.rld")
	enabled := map[channel.Channel]bool{channel.V1: true}
	descs, binCount := BuildDescriptors(false, enabled)

	w, err := Create(path, 1000, [6]byte{}, Timestamp{}, "", descs, binCount, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Rollover(); err != nil {
		t.Fatalf("Rollover: %v", err)
	}
	want := filepath.Join(dir, "data_p1.rld")
	if w.Path() != want {
		t.Errorf("Path() = %s, want %s", w.Path(), want)
	}
	if err := w.Rollover(); err != nil {
		t.Fatalf("second Rollover: %v", err)
	}
	want2 := filepath.Join(dir, "data_p2.rld")
	if w.Path() != want2 {
		t.Errorf("Path() = %s, want %s", w.Path(), want2)
	}
	w.Close()
}
