// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Segment is an attached SysV shared-memory segment.
type Segment struct {
	id   int
	addr []byte
	size int
}

// CreateSegment creates (or recreates) a segment of the given size at
// key, sized exactly to size bytes, and attaches it.
func CreateSegment(key int, size int) (*Segment, error) {
	id, err := unix.SysvShmGet(key, size, unix.IPC_CREAT|SegmentPerm)
	if err != nil {
		return nil, fmt.Errorf("shm: shmget(0x%x, %d): %w", key, size, err)
	}
	return attach(id)
}

// OpenSegment attaches to an already-existing segment at key. size may be
// smaller than the segment's real size (shmget tolerates that for an
// existing segment), in which case the returned Segment still exposes the
// real, larger backing memory.
func OpenSegment(key int, size int) (*Segment, error) {
	id, err := unix.SysvShmGet(key, size, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: shmget(0x%x, %d): %w", key, size, err)
	}
	return attach(id)
}

func attach(id int) (*Segment, error) {
	addr, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: shmat(%d): %w", id, err)
	}
	return &Segment{id: id, addr: addr, size: len(addr)}, nil
}

// Bytes returns the segment's backing memory. Callers must not retain
// the slice beyond Detach/Destroy.
func (s *Segment) Bytes() []byte { return s.addr }

// Detach detaches from the segment without marking it for removal,
// leaving it available for other attachers.
func (s *Segment) Detach() error {
	if err := unix.SysvShmDetach(s.addr); err != nil {
		return fmt.Errorf("shm: shmdt(%d): %w", s.id, err)
	}
	return nil
}

// Destroy detaches and marks the segment for removal once every attached
// process has detached, per the owning daemon's teardown responsibility.
func (s *Segment) Destroy() error {
	if err := s.Detach(); err != nil {
		return err
	}
	if _, err := unix.SysvShmCtl(s.id, unix.IPC_RMID, nil); err != nil {
		return fmt.Errorf("shm: shmctl(%d, IPC_RMID): %w", s.id, err)
	}
	return nil
}
