// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

// AggregationMode selects how sub-native-rate aggregation collapses N
// native samples into one output sample (§3, §4.2 point 3).
type AggregationMode int

const (
	// Downsample emits every Nth native sample and drops the rest.
	Downsample AggregationMode = iota
	// Average accumulates analog values and AND-reduces digital words
	// over the whole window, emitting one mean/reduced value per window.
	Average
)

// AnalogAggregator accumulates N native analog samples for one channel and
// produces a single output value, reused block to block to avoid
// allocation, mirroring the persistent-closure pattern of
// helpers/callback/convert.go.
type AnalogAggregator struct {
	mode  AggregationMode
	n     int
	sum   int64
	count int
}

// NewAnalogAggregator creates an aggregator for windows of n native
// samples under the given mode.
func NewAnalogAggregator(mode AggregationMode, n int) *AnalogAggregator {
	return &AnalogAggregator{mode: mode, n: n}
}

// Add feeds one native sample into the current window. It returns the
// output value and true when the window closes, on the Nth sample of each
// window under both modes: Downsample returns the window's first sample,
// Average the truncated mean of all N.
func (a *AnalogAggregator) Add(raw int32) (out int32, closed bool) {
	switch a.mode {
	case Downsample:
		a.count++
		if a.count == 1 {
			a.sum = int64(raw) // keep the window's first sample
		}
		if a.count < a.n {
			return 0, false
		}
		out = int32(a.sum)
		a.sum = 0
		a.count = 0
		return out, true
	default: // Average
		a.sum += int64(raw)
		a.count++
		if a.count < a.n {
			return 0, false
		}
		// Accumulate-then-divide-once, matching meter.c's
		// accumulate-into-double / divide-at-the-end strategy (§9's
		// open-question resolution), truncating toward zero via Go's
		// native integer division.
		mean := a.sum / int64(a.n)
		a.sum = 0
		a.count = 0
		return int32(mean), true
	}
}

// DigitalAggregator AND-reduces a window of digital words under Average
// mode, or forwards the window's first word under Downsample; either way
// the window closes on its Nth word.
type DigitalAggregator struct {
	mode  AggregationMode
	n     int
	acc   DigitalWord
	count int
}

func NewDigitalAggregator(mode AggregationMode, n int) *DigitalAggregator {
	d := &DigitalAggregator{mode: mode, n: n}
	d.reset()
	return d
}

func (d *DigitalAggregator) reset() {
	if d.mode == Average {
		d.acc = ^DigitalWord(0)
	} else {
		d.acc = 0
	}
	d.count = 0
}

// Add feeds one native digital word into the current window, returning
// the output word and true when the window closes.
func (d *DigitalAggregator) Add(word DigitalWord) (out DigitalWord, closed bool) {
	d.count++
	switch d.mode {
	case Downsample:
		if d.count == 1 {
			d.acc = word
		}
		if d.count < d.n {
			return 0, false
		}
		out = d.acc
	default: // Average
		d.acc = AndReduce(d.acc, word)
		if d.count < d.n {
			return 0, false
		}
		out = d.acc
	}
	d.reset()
	return out, true
}
