// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package buttond implements the start/stop button daemon: a long-running
// process that waits on button edge events and dispatches a short press to
// toggle measurement start/stop, a long press to request this daemon's own
// shutdown, and a very long press to request a system reboot. It is the
// continuous blocking-read/dispatch loop of rocketloggerd.c's
// button_interrupt_handler, generalized from a GPIO interrupt callback to
// a gpio.Lines.WatchButton() channel range.
package buttond

import (
	"context"
	"time"

	"github.com/ethz-csg/rocketlogger-go/gpio"
	"github.com/ethz-csg/rocketlogger-go/logging"
	"github.com/ethz-csg/rocketlogger-go/shm"
)

// Press duration thresholds, matching RL_BUTTON_LONG_PRESS and
// RL_BUTTON_VERY_LONG_PRESS.
const (
	LongPress     = 3 * time.Second
	VeryLongPress = 10 * time.Second
)

// StatusReader reports whether a measurement is currently running; deps
// inject shm.StatusHandle in production and a fake in tests.
type StatusReader interface {
	Read() shm.Status
}

// Exec starts or stops a measurement by forking off the rocketlogger CLI,
// mirroring rocketloggerd.c's fork/execvp of "rocketlogger start"/"stop".
// Run itself never shuts the system down; it only reports the reboot
// decision back to its caller (cmd/rocketlogger-buttond), which execs the
// system shutdown command after Run returns.
type Exec interface {
	StartMeasurement() error
	StopMeasurement() error
}

// Deps carries buttond.Run's collaborators, mirroring measurement.Deps'
// dependency-injection shape so Run can be driven by gpio.SimLines and a
// fake StatusReader/Exec in tests instead of real hardware and processes.
type Deps struct {
	Lines  gpio.Lines
	Status StatusReader
	Exec   Exec
	Logger logging.Logger
}

// Run watches the button line until ctx is done or a long/very-long press
// requests this daemon's own exit. reboot is true only when the exit was
// triggered by a very-long press; the caller is responsible for actually
// rebooting once Run returns.
func Run(ctx context.Context, deps Deps) (reboot bool, err error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard
	}

	events, err := deps.Lines.WatchButton()
	if err != nil {
		return false, err
	}

	var downAt time.Time
	for {
		select {
		case <-ctx.Done():
			return false, nil
		case evt, ok := <-events:
			if !ok {
				return false, nil
			}
			if !evt.Rising {
				downAt = evt.At
				continue
			}
			if downAt.IsZero() {
				continue // spurious release with no matching press
			}
			duration := evt.At.Sub(downAt)
			downAt = time.Time{}

			shutdown, wantReboot := dispatch(duration, deps, logger)
			if shutdown {
				return wantReboot, nil
			}
		}
	}
}

// dispatch implements button_interrupt_handler's duration-keyed action
// table. A long or very long press always requests this daemon's exit
// (very long additionally requests a system reboot), but only stops a
// running measurement first; it never starts one on a long press while
// idle. A short press always toggles the measurement.
func dispatch(duration time.Duration, deps Deps, logger logging.Logger) (shutdown, reboot bool) {
	status := deps.Status.Read()

	switch {
	case duration >= VeryLongPress:
		logger.Infof("registered very long press (%s), requesting system shutdown", duration)
		if !status.Sampling {
			return true, true
		}
		if err := deps.Exec.StopMeasurement(); err != nil {
			logger.Errorf("stop measurement: %v", err)
		}
		return true, true
	case duration >= LongPress:
		logger.Infof("registered long press (%s), requesting daemon shutdown", duration)
		if !status.Sampling {
			return true, false
		}
		if err := deps.Exec.StopMeasurement(); err != nil {
			logger.Errorf("stop measurement: %v", err)
		}
		return true, false
	}

	if status.Sampling {
		if err := deps.Exec.StopMeasurement(); err != nil {
			logger.Errorf("stop measurement: %v", err)
		}
	} else {
		if err := deps.Exec.StartMeasurement(); err != nil {
			logger.Errorf("start measurement: %v", err)
		}
	}
	return false, false
}
