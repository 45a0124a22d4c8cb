// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package gpio provides the cape's fixed GPIO lines (range-force pins,
// status/error LEDs, the start/stop button, and the cape power-enable
// pin), grounded on the teacher's hardware-boundary interface-split
// idiom (api.Driver/pru.Driver): a real line set backed by
// github.com/warthog618/go-gpiocdev and a SimLines fake for tests.
package gpio

import "time"

// Line numbers on the cape's GPIO header, fixed by the hardware design.
const (
	LineForceHighRange1 = 30
	LineForceHighRange2 = 60
	LineStatusLED       = 45
	LineErrorLED        = 44
	LineButton          = 26
	LinePowerEnable     = 31
)

// Edge identifies which edge(s) of a digital input to watch.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

// ButtonEvent reports one edge transition on the button line, with the
// monotonic time it was observed; buttond measures the interval between a
// falling and a subsequent rising edge to classify the press duration.
type ButtonEvent struct {
	Rising bool
	At     time.Time
}

// Lines is the cape's fixed GPIO surface. Every line is either a
// known-direction output (force-range, LEDs, power enable) or the single
// button input, so the interface models named operations rather than a
// generic numbered-pin API.
type Lines interface {
	// SetForceHighRange sets channel port 1 or 2's range-force line.
	// port must be 1 or 2.
	SetForceHighRange(port int, high bool) error
	SetStatusLED(on bool) error
	SetErrorLED(on bool) error
	SetPowerEnable(on bool) error

	// WatchButton delivers one ButtonEvent per edge transition on the
	// button line until Close is called.
	WatchButton() (<-chan ButtonEvent, error)

	Close() error
}
