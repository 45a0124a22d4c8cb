// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buttond

import (
	"context"
	"testing"
	"time"

	"github.com/ethz-csg/rocketlogger-go/gpio"
	"github.com/ethz-csg/rocketlogger-go/shm"
)

type fakeStatus struct{ sampling bool }

func (f *fakeStatus) Read() shm.Status { return shm.Status{Sampling: f.sampling} }

type fakeExec struct {
	started, stopped int
}

func (f *fakeExec) StartMeasurement() error { f.started++; return nil }
func (f *fakeExec) StopMeasurement() error  { f.stopped++; return nil }

func pressRelease(lines *gpio.SimLines, start time.Time, dur time.Duration) {
	lines.InjectButtonEvent(gpio.ButtonEvent{Rising: false, At: start})
	lines.InjectButtonEvent(gpio.ButtonEvent{Rising: true, At: start.Add(dur)})
}

func TestRunShortPressTogglesMeasurement(t *testing.T) {
	lines := gpio.NewSimLines()
	status := &fakeStatus{sampling: false}
	exec := &fakeExec{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var reboot bool
	var runErr error
	go func() {
		reboot, runErr = Run(ctx, Deps{Lines: lines, Status: status, Exec: exec})
		close(done)
	}()

	base := time.Now()
	pressRelease(lines, base, 200*time.Millisecond)

	// Give Run's goroutine a moment to process the injected event, then
	// stop the loop cleanly since a short press never requests shutdown.
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if reboot {
		t.Error("short press must not request reboot")
	}
	if exec.started != 1 || exec.stopped != 0 {
		t.Errorf("started=%d stopped=%d, want started=1 stopped=0", exec.started, exec.stopped)
	}
}

func TestRunLongPressWhileIdleRequestsShutdownWithoutStarting(t *testing.T) {
	lines := gpio.NewSimLines()
	status := &fakeStatus{sampling: false}
	exec := &fakeExec{}

	base := time.Now()
	pressRelease(lines, base, LongPress+time.Second)

	reboot, err := Run(context.Background(), Deps{Lines: lines, Status: status, Exec: exec})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reboot {
		t.Error("long (not very long) press must not request reboot")
	}
	if exec.started != 0 || exec.stopped != 0 {
		t.Errorf("long press while idle must not start or stop a measurement, got started=%d stopped=%d", exec.started, exec.stopped)
	}
}

func TestRunVeryLongPressWhileSamplingStopsAndRequestsReboot(t *testing.T) {
	lines := gpio.NewSimLines()
	status := &fakeStatus{sampling: true}
	exec := &fakeExec{}

	base := time.Now()
	pressRelease(lines, base, VeryLongPress+time.Second)

	reboot, err := Run(context.Background(), Deps{Lines: lines, Status: status, Exec: exec})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reboot {
		t.Error("very long press must request reboot")
	}
	if exec.stopped != 1 {
		t.Errorf("stopped=%d, want 1 (running measurement must be stopped before shutdown)", exec.stopped)
	}
}
