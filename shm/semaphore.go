// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package shm

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SemaphoreSet wraps the two-semaphore set at SemSetKey: DataSem guards
// every access to the data (ring-buffer) segment, WaitSem wakes
// blocked readers once a new window has been published (§4.5, §6).
type SemaphoreSet struct {
	id int
}

// sembuf mirrors the kernel's struct sembuf; x/sys/unix exposes the
// SYS_SEM* syscall numbers but no semop/semctl wrapper or struct, so the
// set operations here go through unix.Syscall directly.
type sembuf struct {
	semnum uint16
	semop  int16
	semflg int16
}

// semSetVal is Linux's SETVAL semctl command, not exported by x/sys/unix.
const semSetVal = 16

func semget(key, nsems, flags int) (int, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(flags))
	if errno != 0 {
		return 0, errno
	}
	return int(id), nil
}

func semctl(id, semnum, cmd, arg int) error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), uintptr(semnum), uintptr(cmd), uintptr(arg), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// CreateSemaphoreSet creates the semaphore set, initializing DataSem to 1
// (unlocked) and WaitSem to 0 (no pending readers). It is called once by
// the owning daemon.
func CreateSemaphoreSet() (*SemaphoreSet, error) {
	id, err := semget(SemSetKey, 2, unix.IPC_CREAT|SemSetPerm)
	if err != nil {
		return nil, fmt.Errorf("shm: semget(0x%x): %w", SemSetKey, err)
	}
	s := &SemaphoreSet{id: id}
	if err := s.setValue(DataSem, 1); err != nil {
		return nil, err
	}
	if err := s.setValue(WaitSem, 0); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSemaphoreSet attaches to an already-created semaphore set.
func OpenSemaphoreSet() (*SemaphoreSet, error) {
	id, err := semget(SemSetKey, 2, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: semget(0x%x): %w", SemSetKey, err)
	}
	return &SemaphoreSet{id: id}, nil
}

func (s *SemaphoreSet) setValue(sem int, val int) error {
	if err := semctl(s.id, sem, semSetVal, val); err != nil {
		return fmt.Errorf("shm: semctl(%d, %d, SETVAL): %w", s.id, sem, err)
	}
	return nil
}

// Lock acquires DataSem (decrements by 1, blocking until available),
// bounded by timeout. It returns ErrSemTimeout if the bound elapses first.
func (s *SemaphoreSet) Lock(timeout time.Duration) error {
	return s.op(DataSem, -1, timeout)
}

// Unlock releases DataSem (increments by 1).
func (s *SemaphoreSet) Unlock() error {
	return s.op(DataSem, 1, 0)
}

// Notify increments WaitSem once per newly published window, waking one
// blocked reader per §5's sampler-to-reader handoff.
func (s *SemaphoreSet) Notify() error {
	return s.op(WaitSem, 1, 0)
}

// Wait blocks until WaitSem is nonzero, then decrements it, bounded by
// timeout. Readers that exceed WaitSemReadTimeout give up and report a
// stale connection per §7.
func (s *SemaphoreSet) Wait(timeout time.Duration) error {
	return s.op(WaitSem, -1, timeout)
}

func (s *SemaphoreSet) op(sem int, delta int16, timeout time.Duration) error {
	buf := []sembuf{{semnum: uint16(sem), semop: delta, semflg: 0}}
	if timeout <= 0 {
		return semtimedop(s.id, buf, nil)
	}
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	if err := semtimedop(s.id, buf, &ts); err != nil {
		if err == unix.EAGAIN {
			return ErrSemTimeout
		}
		return err
	}
	return nil
}

// Close is a no-op placeholder: semaphore sets are process-lifetime and
// removed explicitly via Destroy by the owning daemon, mirroring the
// shared-memory segment's Detach/Destroy split.
func (s *SemaphoreSet) Close() error { return nil }

// Destroy removes the semaphore set. Called once, by the owning daemon,
// during final teardown.
func (s *SemaphoreSet) Destroy() error {
	if err := semctl(s.id, 0, int(unix.IPC_RMID), 0); err != nil {
		return fmt.Errorf("shm: semctl(%d, IPC_RMID): %w", s.id, err)
	}
	return nil
}

func semtimedop(id int, buf []sembuf, timeout *unix.Timespec) error {
	var errno unix.Errno
	if timeout != nil {
		_, _, errno = unix.Syscall6(unix.SYS_SEMTIMEDOP, uintptr(id),
			uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), uintptr(unsafe.Pointer(timeout)), 0, 0)
	} else {
		_, _, errno = unix.Syscall6(unix.SYS_SEMTIMEDOP, uintptr(id),
			uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), 0, 0, 0)
	}
	if errno != 0 {
		return errno
	}
	return nil
}
