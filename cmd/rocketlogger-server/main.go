// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command rocketlogger-server is the ephemeral live-view reader CLI:
// `rocketlogger-server <request-id> <get-data> <time-scale> <last-seen-ms>`.
// It attaches to a running sampler's status (and, if needed, data)
// shared-memory segments, answers with one JSON object on stdout, and
// exits.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/ethz-csg/rocketlogger-go/liveview"
	"github.com/ethz-csg/rocketlogger-go/shm"
	"github.com/spf13/pflag"
)

func parseArgs(args []string) (liveview.Request, error) {
	if len(args) != 4 {
		return liveview.Request{}, fmt.Errorf("usage: rocketlogger-server <request-id> <get-data: 0|1> <time-scale: 0|1|2> <last-seen-ms>")
	}
	getData, err := strconv.ParseBool(args[1])
	if err != nil {
		return liveview.Request{}, fmt.Errorf("get-data: %w", err)
	}
	scale, err := strconv.Atoi(args[2])
	if err != nil || scale < 0 || scale > 2 {
		return liveview.Request{}, fmt.Errorf("time-scale must be 0, 1, or 2")
	}
	lastSeen, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return liveview.Request{}, fmt.Errorf("last-seen-ms: %w", err)
	}
	return liveview.Request{
		RequestID:  args[0],
		GetData:    getData,
		TimeScale:  shm.RingBufferScale(scale),
		LastSeenMs: lastSeen,
	}, nil
}

func serverMain() error {
	pflag.Parse()
	req, err := parseArgs(pflag.Args())
	if err != nil {
		return err
	}

	status, err := shm.OpenStatus()
	if err != nil {
		return fmt.Errorf("rocketlogger-server: status: %w", err)
	}
	defer status.Close()

	resp, err := liveview.Query(req, liveview.Deps{
		Status: status,
		OpenData: func() (liveview.DataReader, error) {
			return shm.OpenDataAuto()
		},
		OpenSems: func() (liveview.Semaphore, error) {
			return shm.OpenSemaphoreSet()
		},
	})
	if err != nil {
		return fmt.Errorf("rocketlogger-server: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(resp)
}

func main() {
	if err := serverMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
