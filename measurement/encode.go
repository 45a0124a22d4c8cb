// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package measurement

import (
	"encoding/binary"
	"strings"

	"github.com/ethz-csg/rocketlogger-go/channel"
	"github.com/ethz-csg/rocketlogger-go/pipeline"
	"github.com/ethz-csg/rocketlogger-go/rld"
)

// resolvedChannel captures everything encodeRow/csvValues need to know
// about one descriptor slot.
type resolvedChannel struct {
	unit       channel.Unit
	ch         channel.Channel
	hasChannel bool
	isI1LRange bool
	isI2LRange bool
}

// resolveChannels precomputes each descriptor's channel identity once, up
// front, so the per-sample encodeRow/csvValues calls on the handler's hot
// path never re-parse a descriptor name string or re-run a prefix check.
func resolveChannels(descs []rld.ChannelDescriptor, binCount uint16) []resolvedChannel {
	out := make([]resolvedChannel, len(descs))
	for i, d := range descs {
		r := resolvedChannel{unit: d.Unit}
		switch d.Unit {
		case channel.UnitRangeValid:
			r.isI1LRange = strings.HasPrefix(d.NameString(), channel.I1L.Name())
			r.isI2LRange = strings.HasPrefix(d.NameString(), channel.I2L.Name())
		default:
			r.ch, r.hasChannel = channel.Parse(d.NameString())
		}
		out[i] = r
	}
	return out
}

// encodeRow packs one pipeline.Row into the raw row bytes the binary file
// format expects: the packed digital word (present iff binCount > 0,
// since the descriptor table's digital and range-valid entries all
// collapse into this single word) followed by one little-endian int32
// per enabled analog channel, in descriptor order.
func encodeRow(row pipeline.Row, chans []resolvedChannel, binCount uint16) []byte {
	n := 0
	if binCount > 0 {
		n += 4
	}
	numAnalog := len(chans) - int(binCount)
	n += numAnalog * 4
	buf := make([]byte, n)

	off := 0
	if binCount > 0 {
		binary.LittleEndian.PutUint32(buf[off:], uint32(row.Digital))
		off += 4
	}
	for i := int(binCount); i < len(chans); i++ {
		if !chans[i].hasChannel {
			off += 4
			continue
		}
		binary.LittleEndian.PutUint32(buf[off:], uint32(row.Analog[chans[i].ch]))
		off += 4
	}
	return buf
}

// csvValues builds the flat value slice NewCSVWriter.WriteRow expects: one
// value per descriptor, in descriptor order, matching the header row
// NewCSVWriter already wrote.
func csvValues(row pipeline.Row, chans []resolvedChannel) []int64 {
	values := make([]int64, 0, len(chans))
	for _, r := range chans {
		switch r.unit {
		case channel.UnitBinary:
			v := int64(0)
			for n := 1; n <= 6; n++ {
				if channel.DigitalChannels[n-1] == r.ch && row.Digital.DI(n) {
					v = 1
				}
			}
			values = append(values, v)
		case channel.UnitRangeValid:
			v := int64(0)
			switch {
			case r.isI1LRange:
				if row.Digital.I1LValid() {
					v = 1
				}
			case r.isI2LRange:
				if row.Digital.I2LValid() {
					v = 1
				}
			}
			values = append(values, v)
		default:
			if !r.hasChannel {
				values = append(values, 0)
				continue
			}
			values = append(values, int64(row.Analog[r.ch]))
		}
	}
	return values
}
