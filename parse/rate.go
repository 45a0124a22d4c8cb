// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package parse

import (
	"fmt"
	"strconv"
	"strings"
)

// NativeADCRateHz is the minimum native sampling rate the ADC can produce;
// sample rates below this are realized by aggregating native samples.
const NativeADCRateHz = 1000

// AllowedSampleRates is the closed set of sample rates accepted by the
// configuration record, in Hz.
var AllowedSampleRates = []uint32{1, 10, 100, 1000, 2000, 4000, 8000, 16000, 32000, 64000}

// AllowedUpdateRates is the closed set of file/ring-buffer update rates
// accepted by the configuration record, in Hz.
var AllowedUpdateRates = []uint32{1, 2, 5, 10}

// SampleRate parses and validates a sample rate given as a command-line
// argument. It accepts a plain integer or one with a k suffix (e.g. "16k"
// for 16000). An error is returned if the value is not in
// AllowedSampleRates.
func SampleRate(arg string) (uint32, error) {
	rate, err := parseRateArg(arg)
	if err != nil {
		return 0, err
	}
	for _, r := range AllowedSampleRates {
		if rate == r {
			return rate, nil
		}
	}
	return 0, fmt.Errorf("parse.SampleRate: %d is not an allowed sample rate %v", rate, AllowedSampleRates)
}

// UpdateRate parses and validates a data/ring-buffer update rate given as
// a command-line argument. An error is returned if the value is not in
// AllowedUpdateRates.
func UpdateRate(arg string) (uint32, error) {
	rate, err := parseRateArg(arg)
	if err != nil {
		return 0, err
	}
	for _, r := range AllowedUpdateRates {
		if rate == r {
			return rate, nil
		}
	}
	return 0, fmt.Errorf("parse.UpdateRate: %d is not an allowed update rate %v", rate, AllowedUpdateRates)
}

func parseRateArg(arg string) (uint32, error) {
	var mult uint64 = 1
	arg = strings.ToLower(strings.TrimSpace(arg))
	if strings.HasSuffix(arg, "k") {
		mult = 1000
		arg = strings.TrimSuffix(arg, "k")
	}
	v, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v * mult), nil
}

// AggregatesFor returns the number of native samples that must be
// aggregated into one output sample at the given sample rate, per §4.2's
// sub-native rate aggregation rule. It is 1 for any rate at or above
// NativeADCRateHz.
func AggregatesFor(sampleRateHz uint32) uint32 {
	if sampleRateHz >= NativeADCRateHz {
		return 1
	}
	return NativeADCRateHz / sampleRateHz
}
