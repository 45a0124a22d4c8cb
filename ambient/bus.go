// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package ambient

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	i2cRdwrIOCTL = 0x0707 // I2C_RDWR, combined write+read with REPEATED START
	i2cMsgRD     = 0x0001 // i2c_msg flag: read direction
)

// i2cMsg mirrors struct i2c_msg from linux/i2c.h.
type i2cMsg struct {
	addr   uint16
	flags  uint16
	length uint16
	_pad   uint16
	buf    uintptr
}

// i2cRdwrData mirrors struct i2c_rdwr_ioctl_data from linux/i2c-dev.h.
type i2cRdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// Bus is a shared handle onto the ambient sensor I2C bus.
type Bus struct {
	fd int
}

// OpenBus opens the I2C character device at path.
func OpenBus(path string) (*Bus, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("ambient: open %s: %w", path, err)
	}
	return &Bus{fd: fd}, nil
}

// Close closes the bus device.
func (b *Bus) Close() error {
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}

// WriteRegister writes one byte to addr's register reg.
func (b *Bus) WriteRegister(addr uint8, reg uint8, val byte) error {
	wbuf := [2]byte{reg, val}
	msgs := [1]i2cMsg{
		{addr: uint16(addr), flags: 0, length: 2, buf: uintptr(unsafe.Pointer(&wbuf[0]))},
	}
	return b.rdwr(msgs[:])
}

// ReadRegister reads n bytes starting at addr's register reg.
func (b *Bus) ReadRegister(addr uint8, reg uint8, n int) ([]byte, error) {
	wbuf := [1]byte{reg}
	rbuf := make([]byte, n)
	msgs := [2]i2cMsg{
		{addr: uint16(addr), flags: 0, length: 1, buf: uintptr(unsafe.Pointer(&wbuf[0]))},
		{addr: uint16(addr), flags: i2cMsgRD, length: uint16(n), buf: uintptr(unsafe.Pointer(&rbuf[0]))},
	}
	if err := b.rdwr(msgs[:]); err != nil {
		return nil, err
	}
	return rbuf, nil
}

// Probe attempts a zero-length read of addr's register 0, to check
// whether any device responds there. A NACK from the bus is reported as
// a non-nil error.
func (b *Bus) Probe(addr uint8) error {
	_, err := b.ReadRegister(addr, 0, 1)
	return err
}

func (b *Bus) rdwr(msgs []i2cMsg) error {
	data := i2cRdwrData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), i2cRdwrIOCTL, uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return fmt.Errorf("ambient: I2C_RDWR: %w", errno)
	}
	return nil
}
