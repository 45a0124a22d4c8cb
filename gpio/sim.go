// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gpio

import "sync"

// SimLines is an in-memory Lines fake for tests: it records every output
// write and lets a test inject button events.
type SimLines struct {
	mu sync.Mutex

	ForceHighRange1 bool
	ForceHighRange2 bool
	StatusLED       bool
	ErrorLED        bool
	PowerEnable     bool

	events chan ButtonEvent
	closed bool
}

// NewSimLines returns a ready-to-use SimLines.
func NewSimLines() *SimLines {
	return &SimLines{events: make(chan ButtonEvent, 16)}
}

func (s *SimLines) SetForceHighRange(port int, high bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if port == 2 {
		s.ForceHighRange2 = high
	} else {
		s.ForceHighRange1 = high
	}
	return nil
}

func (s *SimLines) SetStatusLED(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatusLED = on
	return nil
}

func (s *SimLines) SetErrorLED(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorLED = on
	return nil
}

func (s *SimLines) SetPowerEnable(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PowerEnable = on
	return nil
}

func (s *SimLines) WatchButton() (<-chan ButtonEvent, error) {
	return s.events, nil
}

// InjectButtonEvent lets a test simulate a button press/release edge.
func (s *SimLines) InjectButtonEvent(evt ButtonEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.events <- evt
	}
}

func (s *SimLines) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.events)
		s.closed = true
	}
	return nil
}
