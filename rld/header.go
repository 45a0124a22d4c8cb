// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rld implements the RocketLogger binary (.rld) and CSV file
// container formats (§4.3, §6): the fixed lead-in, the per-channel
// descriptor table, live-updated counters, and size-based rollover.
package rld

import (
	"fmt"

	"github.com/ethz-csg/rocketlogger-go/channel"
)

// FileMagic is the file header magic constant, ASCII "%RLD" read as a
// little-endian uint32.
const FileMagic uint32 = 0x444c5225

// FileVersion is the file format version this implementation reads and
// writes.
const FileVersion uint16 = 0x0003

// LeadInSize is the fixed size in bytes of the lead-in structure.
const LeadInSize = 56

// ChannelDescriptorSize is the fixed size in bytes of one channel
// descriptor on disk: Unit (4) + Scale (4) + DataSize (2) +
// ValidDataChannel (2) + Name (ChannelNameLength).
const ChannelDescriptorSize = 4 + 4 + 2 + 2 + ChannelNameLength

// ChannelNameLength is the fixed width, in bytes, of a channel descriptor's
// NUL-padded ASCII name field.
const ChannelNameLength = 16

// NoValidChannel marks a channel descriptor's ValidDataChannel field as
// "no companion range-valid bit channel".
const NoValidChannel uint16 = 0xffff

// Scale exponents (power of ten) used by channel descriptors, matching
// RL_SCALE_* in the original file format.
const (
	ScalePico    int32 = -12
	ScaleTenPico int32 = -11
	ScaleNano    int32 = -9
	ScaleTenNano int32 = -8
	ScaleMicro   int32 = -6
	ScaleMilli   int32 = -3
	ScaleNone    int32 = 0
)

// Timestamp is a two-field (seconds, nanoseconds) timestamp, stored as two
// little-endian int64 values, used for both the realtime and monotonic
// clocks in the lead-in and in each data block.
type Timestamp struct {
	Sec  int64
	Nsec int64
}

// LeadIn is the file header's fixed-size prefix (§3, §6). Field order and
// sizes match the binary layout exactly; it must be written/read with
// binary.Write/Read using LittleEndian and no additional padding (all
// fields are already naturally aligned at their declared widths).
type LeadIn struct {
	Magic            uint32
	FileVersion      uint16
	HeaderLength     uint16
	DataBlockSize    uint32
	DataBlockCount   uint32
	SampleCount      uint64
	SampleRate       uint16
	MACAddress       [6]byte
	StartTime        Timestamp
	CommentLength    uint32
	ChannelBinCount  uint16
	ChannelCount     uint16
}

// ChannelDescriptor describes one channel (digital, range-valid, or
// analog) in the file header's channel table.
type ChannelDescriptor struct {
	Unit             channel.Unit
	Scale            int32
	DataSize         uint16
	ValidDataChannel uint16
	Name             [ChannelNameLength]byte
}

// NewChannelDescriptor builds a descriptor with name truncated/padded to
// ChannelNameLength bytes.
func NewChannelDescriptor(unit channel.Unit, scale int32, dataSize uint16, validDataChannel uint16, name string) ChannelDescriptor {
	d := ChannelDescriptor{
		Unit:             unit,
		Scale:            scale,
		DataSize:         dataSize,
		ValidDataChannel: validDataChannel,
	}
	copy(d.Name[:], name)
	return d
}

func (d ChannelDescriptor) NameString() string {
	end := len(d.Name)
	for i, b := range d.Name {
		if b == 0 {
			end = i
			break
		}
	}
	return string(d.Name[:end])
}

// scaleFor returns the decimal scale exponent used for an analog channel's
// descriptor, per §4.3: ten-pico for the low-range current channels,
// nano for the high-range current channels, ten-nano for voltages.
func scaleFor(c channel.Channel) int32 {
	switch {
	case c.IsLowRange():
		return ScaleTenPico
	case c.IsHighRange():
		return ScaleNano
	default:
		return ScaleTenNano
	}
}

func unitFor(c channel.Channel) channel.Unit {
	if c.IsLowRange() || c.IsHighRange() {
		return channel.UnitAmpere
	}
	return channel.UnitVolt
}

// BuildDescriptors lays out the channel descriptor table in file order:
// digital channels first (one per enabled DI, packed as a single binary
// word, hence DataSize 0), then range-valid descriptors for enabled
// low-range channels, then analog descriptors for every enabled analog
// channel, per §4.3's setup_channels.
//
// It returns the descriptors and the number of "binary" (digital +
// range-valid) descriptors, needed for LeadIn.ChannelBinCount.
func BuildDescriptors(digitalEnabled bool, analogEnabled map[channel.Channel]bool) ([]ChannelDescriptor, uint16) {
	var descs []ChannelDescriptor

	if digitalEnabled {
		for _, di := range channel.DigitalChannels {
			descs = append(descs, NewChannelDescriptor(channel.UnitBinary, ScaleNone, 0, NoValidChannel, di.Name()))
		}
	}

	// Range-valid descriptors for enabled low-range channels, tracked so
	// the analog descriptor for that low-range channel can link to it.
	validIndex := make(map[channel.Channel]uint16)
	for _, port := range []channel.Port{channel.Port1, channel.Port2} {
		low := port.Low()
		if analogEnabled[low] {
			validIndex[low] = uint16(len(descs))
			descs = append(descs, NewChannelDescriptor(channel.UnitRangeValid, ScaleNone, 0, NoValidChannel, low.Name()+"_valid"))
		}
	}
	binCount := uint16(len(descs))

	for _, c := range channel.AnalogChannels {
		if !analogEnabled[c] {
			continue
		}
		link := NoValidChannel
		if idx, ok := validIndex[c]; ok {
			link = idx
		}
		descs = append(descs, NewChannelDescriptor(unitFor(c), scaleFor(c), 4, link, c.Name()))
	}

	return descs, binCount
}

// paddedCommentLength rounds length up to a 4-byte boundary, matching
// RL_FILE_COMMENT_ALIGNMENT_BYTES, and accounts for the mandatory NUL
// terminator.
func paddedCommentLength(comment string) uint32 {
	n := len(comment) + 1 // NUL terminator
	rem := n % 4
	if rem != 0 {
		n += 4 - rem
	}
	return uint32(n)
}

// HeaderLength computes the total header size in bytes: lead-in, padded
// comment, and channel descriptor table, matching invariant 1 of §8.
func HeaderLength(comment string, numDescriptors int) uint16 {
	return uint16(LeadInSize) + uint16(paddedCommentLength(comment)) + uint16(numDescriptors)*ChannelDescriptorSize
}

// Validate checks that a parsed LeadIn is structurally sane, used by
// header round-trip tests (invariant 1).
func (l LeadIn) Validate() error {
	if l.Magic != FileMagic {
		return fmt.Errorf("rld: bad magic 0x%08x", l.Magic)
	}
	if l.FileVersion != FileVersion {
		return fmt.Errorf("rld: unsupported version 0x%04x", l.FileVersion)
	}
	return nil
}
