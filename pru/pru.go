// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:generate go run golang.org/x/tools/cmd/stringer -type State -output pru_string.go

// Package pru implements the co-processor control block and double-buffer
// protocol (§4.1): the fixed-layout control block written by the host and
// polled by the co-processor, the sample block buffer format, and a
// Driver interface with a real memory-mapped implementation and an
// in-process simulated implementation for tests.
package pru

import "time"

// MMapSysfsPath is the sysfs directory describing the UIO device's PRU
// shared-memory map; UIODriver itself maps the memory through the UIO
// device node (NewUIODriver), not through this path. It matches
// PRU_MMAP_SYSFS_PATH in
// _examples/original_source/software/rocketlogger/pru.h.
const MMapSysfsPath = "/sys/class/uio/uio0/maps/map1/"

// Timeout is the hard timeout the sample loop waits for a co-processor
// interrupt before declaring the co-processor non-responsive, matching
// PRU_TIMEOUT_US (2,000,000 microseconds).
const Timeout = 2 * time.Second

// AnalogChannelCount is the number of 32-bit analog words in one sample,
// matching RL_CHANNEL_COUNT.
const AnalogChannelCount = 8

// adcCommandCount is the fixed number of ADC commands embedded in the
// control block, matching PRU_ADC_COMMAND_COUNT.
const adcCommandCount = 12

// State is the co-processor's run state, written by the host and polled
// by the co-processor firmware.
type State uint32

const (
	StateOff              State = 0x00
	StateSampleFinite     State = 0x01
	StateSampleContinuous State = 0x03
)

// ControlBlock is the fixed-layout structure written by the host at a
// known offset in co-processor data RAM before sampling starts (§3). Field
// order and widths match the C struct pru_control exactly.
type ControlBlock struct {
	State           State
	Buffer0Addr     uint32
	Buffer1Addr     uint32
	BufferLength    uint32
	SampleLimit     uint32
	ADCSampleRate   uint32
	ADCCommandCount uint32
	ADCCommand      [adcCommandCount]uint32
}

// Sample is one native sample's worth of data as laid out in a sample
// block buffer: a digital word followed by 8 signed analog words. Layout
// is bit-exact with the co-processor's pru_data struct.
type Sample struct {
	Digital uint32
	Analog  [AnalogChannelCount]int32
}

// SampleSize is the size in bytes of one Sample, used to compute buffer
// offsets in the real driver.
const SampleSize = 4 + AnalogChannelCount*4

// Block is one decoded double-buffer block: the leading fence index and
// the samples it guards.
type Block struct {
	Index   uint32
	Samples []Sample
}
