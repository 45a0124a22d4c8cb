// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import "github.com/ethz-csg/rocketlogger-go/channel"

// LiveRow is one merged, web-facing output row: one value per enabled
// "web channel" (enabled analog channels after dual-range merge, plus
// enabled digital channels), in WebChannels order.
type LiveRow struct {
	Values []int64
}

// WebChannels computes the ordered channel list a LiveRow carries, per
// §3's ring-buffer element shape: merged analog channels (voltages pass
// through, current ports collapse to one channel each) followed by
// enabled digital channels. No range-valid bit channel ever appears in
// the web stream (§8 scenario S3).
func WebChannels(analogEnabled map[channel.Channel]bool, digitalEnabled bool) []channel.Channel {
	var out []channel.Channel
	for _, c := range []channel.Channel{channel.V1, channel.V2, channel.V3, channel.V4} {
		if analogEnabled[c] {
			out = append(out, c)
		}
	}
	for _, port := range []channel.Port{channel.Port1, channel.Port2} {
		if analogEnabled[port.Low()] || analogEnabled[port.High()] {
			out = append(out, port.Low())
		}
	}
	if digitalEnabled {
		out = append(out, channel.DigitalChannels[:]...)
	}
	return out
}

// LiveAggregator implements §4.2 point 5: three cascading mean-downsample
// windows (sampleRateHz rows -> 1s/div, 10 -> 10s/div, 1 -> 100s/div), each
// window's output feeding the next. Dual-range merge is decided exactly
// once per port, at the moment the 1s/div window closes, using that
// window's mean low/high readings and the valid-bit-for-the-whole-window
// rule in §4.2 point 5 and invariant 4. From there on the merged value is
// just another scalar: win10s and win100s average it like any other
// channel, they never re-run the merge decision.
type LiveAggregator struct {
	webChannels []channel.Channel
	mergedIndex map[channel.Port]int // port -> its slot in the analog vector

	mergers           map[channel.Port]*RangeMerger
	lastLow, lastHigh map[channel.Port]int32
	highWindow        map[channel.Port]*meanWindow // per-port mean of high-range readings, same cadence as win1s

	win1s   *meanWindow // sampleRateHz file-rate rows -> one 1s/div row
	win10s  *meanWindow // 10 1s/div rows -> one 10s/div row
	win100s *meanWindow // 1 10s/div row -> one 100s/div row (pass-through)

	digitalEnabled bool
	digital1s      *DigitalAggregator
	digital10s     *DigitalAggregator
	digital100s    *DigitalAggregator
}

// NewLiveAggregator builds an aggregator for the given enabled analog and
// digital channels. sampleRateHz is the rate AddRow is fed at (one Row per
// file-rate sample); the 1s/div window width scales with it so the
// published "1s"/"10s"/"100s" buffers actually span those durations of
// real time rather than a fixed row count tuned to one particular rate.
func NewLiveAggregator(analogEnabled map[channel.Channel]bool, digitalEnabled bool, sampleRateHz uint32) *LiveAggregator {
	rowsPerSecond := int(sampleRateHz)
	if rowsPerSecond < 1 {
		rowsPerSecond = 1
	}
	webChannels := WebChannels(analogEnabled, digitalEnabled)
	mergers := make(map[channel.Port]*RangeMerger)
	for _, port := range []channel.Port{channel.Port1, channel.Port2} {
		low, high := analogEnabled[port.Low()], analogEnabled[port.High()]
		if low || high {
			mergers[port] = NewRangeMerger(low, high)
		}
	}

	mergedIndex := make(map[channel.Port]int)
	highWindow := make(map[channel.Port]*meanWindow)
	n := 0
	for _, c := range webChannels {
		if !c.IsAnalog() {
			continue
		}
		if port, merged := portFor(c); merged {
			if _, has := mergers[port]; has {
				mergedIndex[port] = n
			}
		}
		n++
	}
	for port := range mergers {
		highWindow[port] = newMeanWindow(1, rowsPerSecond)
	}

	return &LiveAggregator{
		webChannels:    webChannels,
		mergedIndex:    mergedIndex,
		mergers:        mergers,
		lastLow:        make(map[channel.Port]int32),
		lastHigh:       make(map[channel.Port]int32),
		highWindow:     highWindow,
		win1s:          newMeanWindow(n, rowsPerSecond),
		win10s:         newMeanWindow(n, 10),
		win100s:        newMeanWindow(n, 1),
		digitalEnabled: digitalEnabled,
		digital1s:      NewDigitalAggregator(Average, rowsPerSecond),
		digital10s:     NewDigitalAggregator(Average, 10),
		digital100s:    NewDigitalAggregator(Average, 1),
	}
}

// AddRow feeds one file-rate Row into the cascade. It returns, for each of
// the three buffer scales that closed a window on this call, a LiveRow
// ready to push into that scale's ring buffer.
func (a *LiveAggregator) AddRow(row Row) (oneSecond, tenSecond, hundredSecond *LiveRow, ok [3]bool) {
	highMean := make(map[channel.Port]int64, len(a.mergers))
	for port := range a.mergers {
		if v, present := row.Analog[port.Low()]; present {
			a.lastLow[port] = v
		}
		if v, present := row.Analog[port.High()]; present {
			a.lastHigh[port] = v
		}
		lowValid := false
		if port == channel.Port1 {
			lowValid = row.Digital.I1LValid()
		} else {
			lowValid = row.Digital.I2LValid()
		}
		a.mergers[port].AddSample(lowValid)
		if closed, mean := a.highWindow[port].add([]int64{int64(a.lastHigh[port])}); closed {
			highMean[port] = mean[0]
		}
	}

	// digital1s must see every row regardless of whether win1s's window
	// closes on this call: it has the same width as win1s (sampleRateHz
	// rows), so feeding it only on closed1s (as win10s/win100s are fed
	// below) would make it need that many closures, not rows, to ever close.
	var dig1s DigitalWord
	if a.digitalEnabled {
		dig1s, _ = a.digital1s.Add(row.Digital)
	}

	vec := a.buildAnalogVector(row)
	closed1s, vals1s := a.win1s.add(vec)
	if !closed1s {
		return nil, nil, nil, ok
	}

	// vals1s[idx] is currently the window-mean low-range reading for a
	// merged port (buildAnalogVector fed a.lastLow[port] into the vector
	// every sample); decide the merge once here and overwrite it with the
	// merged scalar so win10s/win100s below average the decided value,
	// not the raw low reading.
	for port, idx := range a.mergedIndex {
		merged := a.mergers[port].Close(int32(vals1s[idx]), int32(highMean[port]))
		vals1s[idx] = int64(merged)
	}

	oneSecond = a.assembleLiveRow(vals1s, dig1s)
	ok[0] = true

	// digital10s is fed once per 1s/div row (every closed1s event), same
	// cadence as win10s.add(vals1s) below; it must not wait for win10s to
	// close, for the same reason digital1s must not wait for win1s.
	var dig10s DigitalWord
	if a.digitalEnabled {
		dig10s, _ = a.digital10s.Add(dig1s)
	}

	closed10s, vals10s := a.win10s.add(vals1s)
	if closed10s {
		tenSecond = a.assembleLiveRow(vals10s, dig10s)
		ok[1] = true

		var dig100s DigitalWord
		if a.digitalEnabled {
			dig100s, _ = a.digital100s.Add(dig10s)
		}

		closed100s, vals100s := a.win100s.add(vals10s)
		if closed100s {
			hundredSecond = a.assembleLiveRow(vals100s, dig100s)
			ok[2] = true
		}
	}
	return oneSecond, tenSecond, hundredSecond, ok
}

// buildAnalogVector builds this single file-rate row's per-channel analog
// vector, in the analog subset of webChannels order. A merged port's slot
// carries that sample's raw low-range reading; win1s means it across the
// window and AddRow substitutes the actual merge decision once the window
// closes (see the mergedIndex loop in AddRow).
func (a *LiveAggregator) buildAnalogVector(row Row) []int64 {
	out := make([]int64, 0, len(a.webChannels))
	for _, c := range a.webChannels {
		if !c.IsAnalog() {
			continue
		}
		if port, merged := portFor(c); merged {
			if _, has := a.mergers[port]; has {
				out = append(out, int64(a.lastLow[port]))
				continue
			}
		}
		out = append(out, int64(row.Analog[c]))
	}
	return out
}

func portFor(c channel.Channel) (channel.Port, bool) {
	switch c {
	case channel.I1L, channel.I1H:
		return channel.Port1, true
	case channel.I2L, channel.I2H:
		return channel.Port2, true
	default:
		return 0, false
	}
}

// assembleLiveRow appends digital values to an already-computed analog
// vector (merge decisions, if any, are baked into analogVals by the time
// this is called), producing the final LiveRow in webChannels order.
func (a *LiveAggregator) assembleLiveRow(analogVals []int64, digital DigitalWord) *LiveRow {
	values := make([]int64, 0, len(a.webChannels))
	ai := 0
	for _, c := range a.webChannels {
		if c.IsAnalog() {
			values = append(values, analogVals[ai])
			ai++
			continue
		}
		// digital channel
		for n := 1; n <= 6; n++ {
			if channel.DigitalChannels[n-1] == c {
				v := int64(0)
				if digital.DI(n) {
					v = 1
				}
				values = append(values, v)
			}
		}
	}
	return &LiveRow{Values: values}
}

// meanWindow accumulates n int64 vectors of fixed width and emits their
// per-component integer mean (truncated toward zero) when the window
// closes, matching the average-mode truncation rule used throughout the
// live-view cascade.
type meanWindow struct {
	width int
	n     int
	count int
	sum   []int64
}

func newMeanWindow(width, n int) *meanWindow {
	return &meanWindow{width: width, n: n, sum: make([]int64, width)}
}

func (w *meanWindow) add(vec []int64) (bool, []int64) {
	for i := 0; i < w.width && i < len(vec); i++ {
		w.sum[i] += vec[i]
	}
	w.count++
	if w.count < w.n {
		return false, nil
	}
	out := make([]int64, w.width)
	for i := range out {
		out[i] = w.sum[i] / int64(w.n)
		w.sum[i] = 0
	}
	w.count = 0
	return true, out
}
