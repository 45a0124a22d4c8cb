// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package ambient

import (
	"fmt"

	"github.com/ethz-csg/rocketlogger-go/channel"
)

// TSL4531 I2C addresses and device identity.
const (
	tsl4531AddressLeft  = 0x29
	tsl4531AddressRight = 0x28
	tsl4531DeviceID     = 162

	tsl4531Command     = 0x80
	tsl4531RegControl  = 0x00
	tsl4531RegConfig   = 0x01
	tsl4531RegDataLow  = 0x04
	tsl4531RegID       = 0x0a
	tsl4531SampleCont  = 0x03
	tsl4531IntTime200  = 0x01
	tsl4531Multiplier  = 2 // matches the 200ms integration time's TSL4531_MULT_200
)

// TSL4531 is an ambient light sensor channel.
type TSL4531 struct {
	name  string
	addr  uint8
	value int32
}

// NewTSL4531 registers a TSL4531 light sensor at addr.
func NewTSL4531(name string, addr uint8) *TSL4531 {
	return &TSL4531{name: name, addr: addr}
}

func (s *TSL4531) Name() string        { return s.name }
func (s *TSL4531) Address() uint8      { return s.addr }
func (s *TSL4531) Unit() channel.Unit  { return channel.UnitLux }
func (s *TSL4531) Scale() int32        { return 0 } // RL_SCALE_UNIT
func (s *TSL4531) Value() int32        { return s.value }
func (s *TSL4531) Deinit(bus *Bus)     {}

// Init powers the sensor on, verifies its device ID, and sets it to
// continuous 200ms-integration sampling.
func (s *TSL4531) Init(bus *Bus) error {
	id, err := bus.ReadRegister(s.addr, tsl4531Command|tsl4531RegID, 1)
	if err != nil {
		return err
	}
	if int(id[0]) != tsl4531DeviceID {
		return fmt.Errorf("ambient: %s: unexpected device id %d", s.name, id[0])
	}
	if err := bus.WriteRegister(s.addr, tsl4531Command|tsl4531RegControl, tsl4531SampleCont); err != nil {
		return err
	}
	return bus.WriteRegister(s.addr, tsl4531Command|tsl4531RegConfig, tsl4531IntTime200)
}

// Read fetches the latest lux reading.
func (s *TSL4531) Read(bus *Bus) error {
	data, err := bus.ReadRegister(s.addr, tsl4531Command|tsl4531RegDataLow, 2)
	if err != nil {
		return err
	}
	raw := uint16(data[0]) | uint16(data[1])<<8
	s.value = int32(raw) * tsl4531Multiplier
	return nil
}
