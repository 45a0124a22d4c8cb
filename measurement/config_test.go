// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package measurement

import (
	"testing"

	"github.com/ethz-csg/rocketlogger-go/channel"
	"github.com/ethz-csg/rocketlogger-go/pipeline"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(WithChannels(channel.V1))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.SampleRateHz != 1000 || cfg.UpdateRateHz != 1 {
		t.Errorf("defaults = %d Hz / %d Hz, want 1000/1", cfg.SampleRateHz, cfg.UpdateRateHz)
	}
}

func TestNewConfigRejectsUpdateRateAboveSampleRate(t *testing.T) {
	_, err := NewConfig(
		WithSampleRate(10),
		WithUpdateRate(10), // 10 Hz update with a 10 Hz sample rate is fine...
	)
	if err != nil {
		t.Fatalf("10/10 should validate: %v", err)
	}

	_, err = NewConfig(
		WithSampleRate(1),
		WithUpdateRate(10), // ...but 10 Hz update with a 1 Hz sample rate must not
	)
	if err == nil {
		t.Fatal("expected an error for update rate exceeding sample rate")
	}
}

func TestNewConfigRejectsBadSampleRate(t *testing.T) {
	_, err := NewConfig(WithSampleRate(3))
	if err == nil {
		t.Fatal("expected an error for a sample rate outside the allowed set")
	}
}

func TestNewConfigRejectsForceHighRangeOnDisabledPort(t *testing.T) {
	_, err := NewConfig(
		WithChannels(channel.V1),
		WithForceHighRange(channel.Port1, true),
	)
	if err == nil {
		t.Fatal("expected an error: force-high-range set for a port with no enabled channel")
	}
}

func TestNewConfigAcceptsForceHighRangeOnEnabledPort(t *testing.T) {
	_, err := NewConfig(
		WithChannels(channel.I1H),
		WithForceHighRange(channel.Port1, true),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewConfigRejectsFileInMeterMode(t *testing.T) {
	_, err := NewConfig(
		WithChannels(channel.V1),
		WithMode(ModeMeter, 0),
		WithFile("/tmp/out.rld", FileFormatBinary, 0),
	)
	if err == nil {
		t.Fatal("expected an error: meter mode must not write a file")
	}
}

func TestWithAggregationSetsMode(t *testing.T) {
	cfg, err := NewConfig(WithChannels(channel.V1), WithAggregation(pipeline.Average))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Aggregation != pipeline.Average {
		t.Errorf("Aggregation = %v, want Average", cfg.Aggregation)
	}
}
