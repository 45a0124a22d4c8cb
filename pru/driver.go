// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pru

import (
	"context"
	"errors"
)

// ErrTimeout is returned when the co-processor does not signal within
// Timeout, a fatal condition per §4.1/§7 ("PRU not responding").
var ErrTimeout = errors.New("pru: co-processor timeout")

// ErrBusy is returned by Init if another process already holds the
// co-processor interrupt file descriptor.
var ErrBusy = errors.New("pru: co-processor already in use")

// SampleConfig carries the subset of the measurement configuration the
// driver needs to build the control block: §3's sample_rate, sample
// limit, and finite/continuous mode selection.
type SampleConfig struct {
	SampleRateHz  uint32
	SampleLimit   uint64 // 0 = continuous
	BufferLength  uint32 // samples per block (buffer_length)
	ADCCommands   []uint32
}

// Continuous reports whether this configuration samples indefinitely.
func (c SampleConfig) Continuous() bool {
	return c.SampleLimit == 0
}

// Timestamps carries the realtime and monotonic timestamps computed for
// one block, back-adjusted to the start of the block per §4.1.
type Timestamps struct {
	RealtimeSec, RealtimeNsec   int64
	MonotonicSec, MonotonicNsec int64
}

// BlockHandler is called once per completed block. buffersLost is nonzero
// when the co-processor's leading index outran the host (§4.1's
// recoverable buffer-index-gap warning); the handler should still process
// the (resynced) block. Returning a non-nil error stops the sample loop.
type BlockHandler func(block Block, ts Timestamps, buffersLost uint32) error

// Driver abstracts the co-processor subsystem boundary (§4.1). There are
// two reasons for defining this interface, mirroring api.API's own
// rationale in the teacher module:
//  1. it lets a real UIO/mmap-backed implementation and an in-process
//     simulated implementation be verified against the same contract;
//  2. it lets measurement and pipeline be tested without BeagleBone
//     hardware, using SimDriver as a scriptable test double.
type Driver interface {
	// Init attaches to the co-processor subsystem and opens its interrupt
	// file descriptor. It returns ErrBusy if another process already
	// holds it.
	Init() error

	// SampleLoop programs the control block, starts the firmware, and
	// blocks until the context is cancelled, SampleLimit samples have
	// been produced, or a fatal error occurs (including ErrTimeout). It
	// calls handler once per completed block.
	SampleLoop(ctx context.Context, cfg SampleConfig, handler BlockHandler) error

	// Stop requests an orderly halt: writes State=off with a barrier and
	// waits up to Timeout for the final interrupt to drain. It must not
	// be called concurrently with a goroutine still reading the most
	// recent buffer.
	Stop() error

	// Deinit disables the co-processor and unmaps its memory.
	Deinit() error
}
