// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package liveview implements the ephemeral live-view reader: a
// short-lived process that attaches to the running sampler's status and
// data shared-memory segments, decides whether anything newer than the
// caller's last-seen timestamp has been published, and either returns
// immediately or blocks on the wait semaphore until the next publish or
// a timeout. It is grounded structurally on the teacher's short-lived,
// flag-parsed-then-single-pass command shape (cmd/rspdetect/main.go),
// adapted from a one-shot RF scan to a poll-or-block shared-memory read.
package liveview

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethz-csg/rocketlogger-go/shm"
)

// Request is the decoded form of the server CLI's four positional
// arguments.
type Request struct {
	RequestID  string
	GetData    bool
	TimeScale  shm.RingBufferScale
	LastSeenMs int64
}

// Response is the JSON payload the server CLI prints to stdout. Data is
// omitted (both in Go and in the emitted JSON, via omitempty) whenever
// the request short-circuits on status alone.
type Response struct {
	RequestID  string    `json:"request_id"`
	Sampling   bool      `json:"sampling"`
	WebEnable  bool      `json:"web_enable"`
	TimeScale  int       `json:"time_scale"`
	TimeMs     int64     `json:"time"`
	Count      int       `json:"count"`
	BufferSize int       `json:"buffer_size"`
	Data       [][]int64 `json:"data,omitempty"`
}

// StatusReader reports the sampler's current status; shm.StatusHandle
// satisfies this directly, a fake satisfies it in tests.
type StatusReader interface {
	Read() shm.Status
}

// DataReader is the subset of shm.DataHandle the reader needs; declared
// separately so tests can inject an in-memory fake instead of real
// shared memory.
type DataReader interface {
	TimestampMs() int64
	Buffer(scale shm.RingBufferScale) *shm.RingBuffer
}

// Semaphore is the subset of shm.SemaphoreSet the reader needs.
type Semaphore interface {
	Lock(timeout time.Duration) error
	Unlock() error
	Wait(timeout time.Duration) error
}

// Deps carries Query's collaborators. OpenData/OpenSems are only called
// when the request actually needs to touch the data segment, mirroring
// the CLI contract's "prints status and exits" short-circuit -- a reader
// that finds sampling inactive or web-view disabled never attaches to
// the data segment or semaphore set at all.
type Deps struct {
	Status   StatusReader
	OpenData func() (DataReader, error)
	OpenSems func() (Semaphore, error)
}

// Query implements the server CLI's single request/response cycle: read
// status, short-circuit on status alone when sampling is inactive, the
// web view is disabled, or the caller didn't ask for data, otherwise
// loop acquiring the data semaphore briefly to check for anything newer
// than LastSeenMs, returning it immediately or blocking on the wait
// semaphore for the next publish (or its timeout, which ends the reader
// cleanly with no data, same as the original CLI contract).
func Query(req Request, deps Deps) (*Response, error) {
	status := deps.Status.Read()
	resp := &Response{
		RequestID: req.RequestID,
		Sampling:  status.Sampling,
		WebEnable: status.WebEnable,
		TimeScale: int(req.TimeScale),
	}
	if !status.Sampling || !status.WebEnable || !req.GetData {
		return resp, nil
	}

	data, err := deps.OpenData()
	if err != nil {
		return nil, fmt.Errorf("liveview: open data segment: %w", err)
	}
	sems, err := deps.OpenSems()
	if err != nil {
		return nil, fmt.Errorf("liveview: open semaphore set: %w", err)
	}

	for {
		latestMs, rows, filled, err := peek(data, sems, req.TimeScale)
		if err != nil {
			return nil, fmt.Errorf("liveview: %w", err)
		}
		if latestMs-req.LastSeenMs >= 10 {
			count := int((latestMs - req.LastSeenMs + 10) / (1000 * secondsPerRow(req.TimeScale)))
			if count > filled {
				count = filled
			}
			if count < 0 {
				count = 0
			}
			// TimestampMs is one value shared by all three scales: a
			// publish at a faster scale bumps it without necessarily
			// producing a new row at this request's (slower) scale, so a
			// zero count here is not yet "new data" -- keep waiting
			// instead of returning an empty response.
			if count > 0 {
				if count < len(rows) {
					rows = rows[len(rows)-count:]
				}

				resp.TimeMs = latestMs
				resp.Count = count
				resp.BufferSize = shm.RingBufferCapacity
				resp.Data = rows
				return resp, nil
			}
		}

		if err := sems.Wait(shm.WaitSemReadTimeout); err != nil {
			if errors.Is(err, shm.ErrSemTimeout) {
				return resp, nil
			}
			return nil, fmt.Errorf("liveview: wait semaphore: %w", err)
		}
	}
}

// secondsPerRow returns how many seconds of sampling one row at the given
// scale represents, used to turn an elapsed-time budget into a row count.
func secondsPerRow(scale shm.RingBufferScale) int64 {
	switch scale {
	case shm.Scale10s:
		return 10
	case shm.Scale100s:
		return 100
	default:
		return 1
	}
}

// peek acquires the data semaphore just long enough to read the latest
// publish timestamp and a full copy of the requested scale's filled
// rows, matching the ring buffer's "caller must hold the data semaphore"
// read contract.
func peek(data DataReader, sems Semaphore, scale shm.RingBufferScale) (latestMs int64, rows [][]int64, filled int, err error) {
	if err := sems.Lock(shm.DataSemReadTimeout); err != nil {
		return 0, nil, 0, err
	}
	defer sems.Unlock()

	buf := data.Buffer(scale)
	buf.LoadHeader() // refresh cursor/total from the shared segment; a cross-process writer never updates this reader's cached copy otherwise
	filled = int(buf.Total())
	if filled > shm.RingBufferCapacity {
		filled = shm.RingBufferCapacity
	}
	return data.TimestampMs(), buf.Get(filled), filled, nil
}
