// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

// Package shm implements the live-view IPC layer: the status and
// ring-buffer shared-memory segments and the two-semaphore coordination
// protocol between the sampler and ephemeral reader processes. It
// repurposes golang.org/x/sys/unix's SysV IPC wrappers, the teacher
// module's sole third-party dependency, from SDR device register access
// to shared-memory IPC.
package shm

import (
	"errors"
	"time"
)

// Shared-segment and semaphore-set keys.
const (
	StatusKey = 0x457  // 1111 decimal
	DataKey   = 0x115B // 4443 decimal
	SemSetKey = 0x8AE  // 2222 decimal
)

// SegmentPerm is the permission bits for both shared-memory segments.
const SegmentPerm = 0666

// SemSetPerm is the permission bits for the semaphore set.
const SemSetPerm = 0700

// Semaphore indices within the set created at SemSetKey.
const (
	DataSem = 0 // binary, protects every access to the shared segment
	WaitSem = 1 // counting, releases blocked readers on publish
)

// Timed-operation bounds for semaphore waits.
const (
	DataSemWriteTimeout = 1 * time.Second
	DataSemReadTimeout  = 3 * time.Second
	WaitSemReadTimeout  = 3 * time.Second
)

// ErrSemTimeout is returned when a timed semaphore operation does not
// complete within its bound. Exceeding the write timeout disables web
// publishing for the remainder of the measurement (non-fatal); exceeding
// the wait-semaphore read timeout terminates the reader process.
var ErrSemTimeout = errors.New("shm: semaphore operation timed out")
