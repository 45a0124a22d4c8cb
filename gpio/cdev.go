// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// defaultChip is the gpiochip device exposing the cape's header lines on
// the BeagleBone-class carrier board this firmware targets.
const defaultChip = "gpiochip0"

// CdevLines is the real Lines implementation, backed by the kernel's
// character-device GPIO ABI via go-gpiocdev.
type CdevLines struct {
	chip *gpiocdev.Chip

	fhr1, fhr2       *gpiocdev.Line
	statusLED        *gpiocdev.Line
	errorLED         *gpiocdev.Line
	powerEnable      *gpiocdev.Line
	button           *gpiocdev.Line
	buttonEvents     chan ButtonEvent

	stopEvents chan struct{} // closed by Close to unblock a pending send, never blocking itself
	closeOnce  sync.Once
}

// NewCdevLines opens defaultChip and requests every cape line, leaving
// outputs at their inactive level.
func NewCdevLines() (*CdevLines, error) {
	chip, err := gpiocdev.NewChip(defaultChip, gpiocdev.WithConsumer("rocketlogger"))
	if err != nil {
		return nil, fmt.Errorf("gpio: open %s: %w", defaultChip, err)
	}
	l := &CdevLines{chip: chip}

	requestOut := func(offset int) (*gpiocdev.Line, error) {
		return chip.RequestLine(offset, gpiocdev.AsOutput(0))
	}
	var openErr error
	if l.fhr1, openErr = requestOut(LineForceHighRange1); openErr != nil {
		l.Close()
		return nil, fmt.Errorf("gpio: request line %d: %w", LineForceHighRange1, openErr)
	}
	if l.fhr2, openErr = requestOut(LineForceHighRange2); openErr != nil {
		l.Close()
		return nil, fmt.Errorf("gpio: request line %d: %w", LineForceHighRange2, openErr)
	}
	if l.statusLED, openErr = requestOut(LineStatusLED); openErr != nil {
		l.Close()
		return nil, fmt.Errorf("gpio: request line %d: %w", LineStatusLED, openErr)
	}
	if l.errorLED, openErr = requestOut(LineErrorLED); openErr != nil {
		l.Close()
		return nil, fmt.Errorf("gpio: request line %d: %w", LineErrorLED, openErr)
	}
	if l.powerEnable, openErr = requestOut(LinePowerEnable); openErr != nil {
		l.Close()
		return nil, fmt.Errorf("gpio: request line %d: %w", LinePowerEnable, openErr)
	}

	l.buttonEvents = make(chan ButtonEvent, 8)
	l.stopEvents = make(chan struct{})
	l.button, openErr = chip.RequestLine(LineButton,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(l.onButtonEvent))
	if openErr != nil {
		l.Close()
		return nil, fmt.Errorf("gpio: request line %d: %w", LineButton, openErr)
	}
	return l, nil
}

func (l *CdevLines) onButtonEvent(evt gpiocdev.LineEvent) {
	select {
	case l.buttonEvents <- ButtonEvent{
		Rising: evt.Type == gpiocdev.LineEventRisingEdge,
		At:     time.Now(),
	}:
	case <-l.stopEvents:
	}
}

func (l *CdevLines) SetForceHighRange(port int, high bool) error {
	line := l.fhr1
	if port == 2 {
		line = l.fhr2
	}
	return line.SetValue(boolToInt(high))
}

func (l *CdevLines) SetStatusLED(on bool) error { return l.statusLED.SetValue(boolToInt(on)) }
func (l *CdevLines) SetErrorLED(on bool) error  { return l.errorLED.SetValue(boolToInt(on)) }
func (l *CdevLines) SetPowerEnable(on bool) error { return l.powerEnable.SetValue(boolToInt(on)) }

func (l *CdevLines) WatchButton() (<-chan ButtonEvent, error) {
	return l.buttonEvents, nil
}

func (l *CdevLines) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.stopEvents != nil {
			close(l.stopEvents)
		}
		for _, line := range []*gpiocdev.Line{l.fhr1, l.fhr2, l.statusLED, l.errorLED, l.powerEnable, l.button} {
			if line != nil {
				line.Close()
			}
		}
		// l.button is now closed, so go-gpiocdev's event-handler goroutine
		// has returned: no onButtonEvent call can still be in flight, and
		// buttonEvents is safe to close.
		if l.buttonEvents != nil {
			close(l.buttonEvents)
		}
		if l.chip != nil {
			err = l.chip.Close()
		}
	})
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
