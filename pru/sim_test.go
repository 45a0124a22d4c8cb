// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pru

import (
	"context"
	"testing"
)

func TestSimDriverFiniteSampleCount(t *testing.T) {
	d := NewSimDriver(func(i uint64) Sample {
		return Sample{Digital: uint32(i), Analog: [8]int32{int32(i)}}
	})
	cfg := SampleConfig{SampleRateHz: 1000, SampleLimit: 250, BufferLength: 100}

	var total int
	err := d.SampleLoop(context.Background(), cfg, func(block Block, ts Timestamps, lost uint32) error {
		total += len(block.Samples)
		return nil
	})
	if err != nil {
		t.Fatalf("SampleLoop: %v", err)
	}
	if total != 250 {
		t.Errorf("total samples = %d, want 250", total)
	}
}

func TestSimDriverBufferGap(t *testing.T) {
	d := NewSimDriver(nil)
	d.GapAtBlock = 1
	d.GapAmount = 3
	cfg := SampleConfig{SampleRateHz: 1000, SampleLimit: 300, BufferLength: 100}

	var gaps []uint32
	err := d.SampleLoop(context.Background(), cfg, func(block Block, ts Timestamps, lost uint32) error {
		gaps = append(gaps, lost)
		return nil
	})
	if err != nil {
		t.Fatalf("SampleLoop: %v", err)
	}
	if len(gaps) != 3 || gaps[1] != 3 {
		t.Errorf("gaps = %v, want [0 3 0]", gaps)
	}
}
