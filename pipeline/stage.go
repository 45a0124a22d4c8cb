// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"github.com/ethz-csg/rocketlogger-go/calibration"
	"github.com/ethz-csg/rocketlogger-go/channel"
	"github.com/ethz-csg/rocketlogger-go/parse"
)

// Row is one output sample after sub-native rate aggregation (§4.2 points
// 2-3): calibrated analog values for every enabled channel, unmerged (the
// file stream logs I1H and I1L separately; only the live-view path merges
// dual-range pairs), plus the packed digital word.
type Row struct {
	Digital DigitalWord
	Analog  map[channel.Channel]int32
}

// Config selects which channels the Stage processes and how sub-native
// aggregation behaves.
type Config struct {
	SampleRateHz   uint32
	Mode           AggregationMode
	AnalogEnabled  map[channel.Channel]bool
	DigitalEnabled bool
	Calibration    *calibration.Calibration
}

// Stage implements the per-native-sample half of §4.2: calibration,
// digital-bit extraction, and sub-native rate aggregation. It is reused
// block after block; ProcessSample allocates only on the (much rarer)
// sample where a window actually closes, building the Row map it must
// return (kept, not pooled, because Rows are handed off to both the file
// writer and the live-view aggregator and may outlive the call).
type Stage struct {
	cfg         Config
	aggregates  uint32
	calibrators map[channel.Channel]CalibrateFn
	analogAggs  map[channel.Channel]*AnalogAggregator
	digitalAgg  *DigitalAggregator
}

// NewStage builds a Stage for cfg.
func NewStage(cfg Config) *Stage {
	n := parse.AggregatesFor(cfg.SampleRateHz)
	s := &Stage{
		cfg:         cfg,
		aggregates:  n,
		calibrators: make(map[channel.Channel]CalibrateFn),
		analogAggs:  make(map[channel.Channel]*AnalogAggregator),
	}
	for ch, enabled := range cfg.AnalogEnabled {
		if !enabled {
			continue
		}
		s.calibrators[ch] = NewCalibrateFn(cfg.Calibration, ch)
		s.analogAggs[ch] = NewAnalogAggregator(cfg.Mode, int(n))
	}
	s.digitalAgg = NewDigitalAggregator(cfg.Mode, int(n))
	return s
}

// ProcessSample feeds one native sample (raw digital word and the 8 raw
// analog words, in channel.AnalogChannels order) through calibration,
// digital extraction, and aggregation. It returns a Row and true when an
// output sample closes (always, when SampleRateHz >= 1000; every Nth
// native sample otherwise).
func (s *Stage) ProcessSample(rawDigitalWord uint32, rawAnalog [8]int32) (Row, bool) {
	i1lEnabled := s.cfg.AnalogEnabled[channel.I1L]
	i2lEnabled := s.cfg.AnalogEnabled[channel.I2L]
	digital := ExtractDigital(rawDigitalWord, s.cfg.DigitalEnabled, i1lEnabled, i2lEnabled)

	outDigital, digitalClosed := s.digitalAgg.Add(digital)

	// analog is allocated lazily, only once some channel's aggregation
	// window actually closes: most calls on the hot path see closed ==
	// false for every channel (at SampleRateHz well below the native ADC
	// rate, the vast majority of native samples just feed a window still
	// accumulating), and allocating a map per call regardless would churn
	// the GC for no benefit.
	var analog map[channel.Channel]int32
	closed := digitalClosed
	for idx, ch := range channel.AnalogChannels {
		agg, ok := s.analogAggs[ch]
		if !ok {
			continue
		}
		raw := s.calibrators[ch](rawAnalog[idx])
		v, c := agg.Add(raw)
		if c {
			if analog == nil {
				analog = make(map[channel.Channel]int32, len(s.analogAggs))
			}
			analog[ch] = v
		}
		closed = closed || c
	}
	if !closed {
		return Row{}, false
	}
	return Row{Digital: outDigital, Analog: analog}, true
}
