// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:generate go run golang.org/x/tools/cmd/stringer -type Channel,Unit -output channel_string.go

// Package channel defines the fixed analog and digital channel identity
// shared by every other package in the module.
package channel

// Channel identifies one of the fixed analog or digital measurement
// channels. The set is closed: RocketLogger hardware never exposes more
// or fewer channels than this.
type Channel int

const (
	V1 Channel = iota
	V2
	V3
	V4
	I1L
	I1H
	I2L
	I2H
	DI1
	DI2
	DI3
	DI4
	DI5
	DI6
)

// AnalogChannels lists the 8 analog channels in file/descriptor order.
var AnalogChannels = [8]Channel{V1, V2, V3, V4, I1L, I1H, I2L, I2H}

// DigitalChannels lists the 6 digital channels in bit order (bit 0 = DI1).
var DigitalChannels = [6]Channel{DI1, DI2, DI3, DI4, DI5, DI6}

// IsAnalog reports whether c is one of the 8 analog channels.
func (c Channel) IsAnalog() bool {
	return c >= V1 && c <= I2H
}

// IsDigital reports whether c is one of the 6 digital channels.
func (c Channel) IsDigital() bool {
	return c >= DI1 && c <= DI6
}

// IsLowRange reports whether c is a switched low-range current channel.
func (c Channel) IsLowRange() bool {
	return c == I1L || c == I2L
}

// IsHighRange reports whether c is a switched high-range current channel.
func (c Channel) IsHighRange() bool {
	return c == I1H || c == I2H
}

// Pair returns the companion channel of a switched current channel: I1L
// returns I1H and vice versa, same for I2L/I2H. ok is false for any other
// channel.
func (c Channel) Pair() (Channel, bool) {
	switch c {
	case I1L:
		return I1H, true
	case I1H:
		return I1L, true
	case I2L:
		return I2H, true
	case I2H:
		return I2L, true
	default:
		return 0, false
	}
}

// Port identifies a switched current port, which merges a high- and
// low-range channel pair into a single logical reading.
type Port int

const (
	Port1 Port = iota
	Port2
)

// Low and High return the low- and high-range channels for the port.
func (p Port) Low() Channel {
	if p == Port1 {
		return I1L
	}
	return I2L
}

func (p Port) High() Channel {
	if p == Port1 {
		return I1H
	}
	return I2H
}

// Unit identifies the physical unit of a file channel descriptor, matching
// the rl_unit enum of the original file format.
type Unit uint32

const (
	UnitUnitless   Unit = 0
	UnitVolt       Unit = 1
	UnitAmpere     Unit = 2
	UnitBinary     Unit = 3
	UnitRangeValid Unit = 4
	UnitLux        Unit = 5
	UnitDegC       Unit = 6
	UnitInteger    Unit = 7
	UnitPercent    Unit = 8
	UnitPascal     Unit = 9
	UnitUndefined  Unit = 0xffffffff
)

// Name returns the canonical short name used in file descriptors and CLI
// channel lists.
func (c Channel) Name() string {
	switch c {
	case V1:
		return "V1"
	case V2:
		return "V2"
	case V3:
		return "V3"
	case V4:
		return "V4"
	case I1L:
		return "I1L"
	case I1H:
		return "I1H"
	case I2L:
		return "I2L"
	case I2H:
		return "I2H"
	case DI1:
		return "DI1"
	case DI2:
		return "DI2"
	case DI3:
		return "DI3"
	case DI4:
		return "DI4"
	case DI5:
		return "DI5"
	case DI6:
		return "DI6"
	default:
		return "?"
	}
}

func (c Channel) String() string {
	return c.Name()
}

// Parse returns the Channel named by s, or ok=false if s does not match
// any known channel name (case-sensitive, matching file descriptor names).
func Parse(s string) (Channel, bool) {
	for _, c := range append(AnalogChannels[:], DigitalChannels[:]...) {
		if c.Name() == s {
			return c, true
		}
	}
	return 0, false
}
