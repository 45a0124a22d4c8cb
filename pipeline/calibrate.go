// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"github.com/ethz-csg/rocketlogger-go/calibration"
	"github.com/ethz-csg/rocketlogger-go/channel"
)

// CalibrateFn applies a calibration to one raw analog sample for a fixed
// channel. NewCalibrateFn returns a closure bound to one channel and
// calibration table, avoiding a map lookup per sample in the block's
// inner loop.
type CalibrateFn func(raw int32) int32

// NewCalibrateFn returns a closure computing (raw+offset)*scale for ch
// using cal, matching helpers/callback's closure-factory idiom for
// per-sample hot-path transforms.
func NewCalibrateFn(cal *calibration.Calibration, ch channel.Channel) CalibrateFn {
	return func(raw int32) int32 {
		return cal.Apply(ch, raw)
	}
}
