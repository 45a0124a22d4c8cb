// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pru

import (
	"context"
	"sync"
	"sync/atomic"
)

// SampleSource generates the analog/digital content of one native sample
// at the given global sample index. Tests provide deterministic sources;
// production code never uses SimDriver directly (see uio.go).
type SampleSource func(index uint64) Sample

// SimDriver is an in-process software model of the co-processor boundary,
// used by package tests in place of real hardware (mirrring how
// api.API's two real backends, cgo and dll, are
// both verified against a single interface — SimDriver is the same
// interface's test-double leg).
type SimDriver struct {
	mu      sync.Mutex
	source  SampleSource
	stopped atomic.Bool

	// GapAtBlock, if set, injects a single buffer-index gap of GapAmount
	// at the given block iteration, to exercise the buffers_lost
	// recoverable-warning path (§4.1).
	GapAtBlock int
	GapAmount  uint32
}

// NewSimDriver creates a SimDriver that generates samples from source. A
// nil source produces all-zero samples.
func NewSimDriver(source SampleSource) *SimDriver {
	if source == nil {
		source = func(uint64) Sample { return Sample{} }
	}
	return &SimDriver{source: source}
}

func (d *SimDriver) Init() error   { return nil }
func (d *SimDriver) Deinit() error { return nil }

func (d *SimDriver) Stop() error {
	d.stopped.Store(true)
	return nil
}

// SampleLoop generates blocks of cfg.BufferLength samples until
// cfg.SampleLimit samples have been produced (or indefinitely under
// Continuous mode, until ctx is cancelled or Stop is called), calling
// handler once per block.
func (d *SimDriver) SampleLoop(ctx context.Context, cfg SampleConfig, handler BlockHandler) error {
	var produced uint64
	var blockIdx uint32
	for iteration := 0; ; iteration++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if d.stopped.Load() {
			return nil
		}
		if !cfg.Continuous() && produced >= cfg.SampleLimit {
			return nil
		}

		n := cfg.BufferLength
		if !cfg.Continuous() {
			remaining := cfg.SampleLimit - produced
			if uint64(n) > remaining {
				n = uint32(remaining)
			}
		}

		samples := make([]Sample, n)
		for i := uint32(0); i < n; i++ {
			samples[i] = d.source(produced + uint64(i))
		}

		var lost uint32
		if iteration == d.GapAtBlock && d.GapAmount > 0 {
			lost = d.GapAmount
			blockIdx += d.GapAmount
		}
		block := Block{Index: blockIdx, Samples: samples}
		blockIdx++
		produced += uint64(n)

		if err := handler(block, Timestamps{}, lost); err != nil {
			return err
		}
	}
}
