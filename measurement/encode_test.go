// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package measurement

import (
	"encoding/binary"
	"testing"

	"github.com/ethz-csg/rocketlogger-go/channel"
	"github.com/ethz-csg/rocketlogger-go/pipeline"
	"github.com/ethz-csg/rocketlogger-go/rld"
)

func TestEncodeRowAndCSVValuesAgreeOnDescriptors(t *testing.T) {
	analogEnabled := map[channel.Channel]bool{
		channel.V1:  true,
		channel.I1L: true,
	}
	descs, binCount := rld.BuildDescriptors(true, analogEnabled)
	chans := resolveChannels(descs, binCount)

	row := pipeline.Row{
		Digital: pipeline.ExtractDigital(0b000101, true, true, false),
		Analog: map[channel.Channel]int32{
			channel.V1:  1234,
			channel.I1L: -5,
		},
	}

	values := csvValues(row, chans)
	if len(values) != len(descs) {
		t.Fatalf("csvValues returned %d values, want %d (one per descriptor)", len(values), len(descs))
	}

	buf := encodeRow(row, chans, binCount)
	numAnalog := len(descs) - int(binCount)
	wantLen := 0
	if binCount > 0 {
		wantLen += 4
	}
	wantLen += numAnalog * 4
	if len(buf) != wantLen {
		t.Fatalf("encodeRow returned %d bytes, want %d", len(buf), wantLen)
	}

	gotDigitalWord := binary.LittleEndian.Uint32(buf[:4])
	if pipeline.DigitalWord(gotDigitalWord) != row.Digital {
		t.Errorf("packed digital word = %#x, want %#x", gotDigitalWord, row.Digital)
	}
}

func TestCSVValuesMarksRangeValidColumn(t *testing.T) {
	analogEnabled := map[channel.Channel]bool{channel.I1L: true}
	descs, binCount := rld.BuildDescriptors(false, analogEnabled)
	chans := resolveChannels(descs, binCount)

	row := pipeline.Row{
		Digital: pipeline.ExtractDigital(0, false, true, false),
		Analog:  map[channel.Channel]int32{channel.I1L: 42},
	}

	values := csvValues(row, chans)
	if len(values) != len(descs) {
		t.Fatalf("got %d values, want %d", len(values), len(descs))
	}
	// descs[0] is the I1L range-valid descriptor, descs[1] is I1L itself.
	if values[0] != 1 {
		t.Errorf("range-valid column = %d, want 1 (I1LValid set)", values[0])
	}
	if values[1] != 42 {
		t.Errorf("analog column = %d, want 42", values[1])
	}
}
