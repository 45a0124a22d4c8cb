// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command rocketlogger-buttond watches the cape's start/stop button and
// forks the rocketlogger CLI to start or stop a measurement, matching
// rocketloggerd.c's behavior: a short press toggles, a long press exits
// this daemon, and a very long press additionally reboots the system.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/ethz-csg/rocketlogger-go/buttond"
	"github.com/ethz-csg/rocketlogger-go/gpio"
	"github.com/ethz-csg/rocketlogger-go/logging"
	"github.com/ethz-csg/rocketlogger-go/shm"
)

// rocketloggerExec forks the rocketlogger CLI with "start" or "stop",
// matching rocketloggerd.c's fork/execvp rather than calling in-process:
// a separate process means buttond's own crash or restart never leaves a
// measurement running with no owner, and vice versa.
type rocketloggerExec struct{}

func (rocketloggerExec) run(args ...string) error {
	cmd := exec.Command("rocketlogger", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start() // matches the original's fire-and-forget fork; buttond does not wait on the child
}

func (e rocketloggerExec) StartMeasurement() error { return e.run("start") }
func (e rocketloggerExec) StopMeasurement() error  { return e.run("stop") }

func buttondMain() (reboot bool, err error) {
	logger, err := logging.New(logging.DefaultLogFile)
	if err != nil {
		return false, fmt.Errorf("rocketlogger-buttond: %w", err)
	}

	lines, err := gpio.NewCdevLines()
	if err != nil {
		return false, fmt.Errorf("rocketlogger-buttond: gpio: %w", err)
	}
	defer lines.Close()

	status, err := shm.OpenStatus()
	if err != nil {
		return false, fmt.Errorf("rocketlogger-buttond: status: %w", err)
	}
	defer status.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	return buttond.Run(ctx, buttond.Deps{
		Lines:  lines,
		Status: status,
		Exec:   rocketloggerExec{},
		Logger: logger,
	})
}

func main() {
	reboot, err := buttondMain()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if reboot {
		if err := exec.Command("shutdown", "-r", "now").Run(); err != nil {
			fmt.Fprintf(os.Stderr, "rocketlogger-buttond: reboot: %v\n", err)
			os.Exit(1)
		}
	}
}
