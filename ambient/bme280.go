// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package ambient

import (
	"encoding/binary"
	"fmt"

	"github.com/ethz-csg/rocketlogger-go/channel"
)

const (
	bme280AddressLeft  = 0x76
	bme280AddressRight = 0x77
	bme280DeviceID     = 0x60

	bme280RegID       = 0xd0
	bme280RegCtrlHum  = 0xf2
	bme280RegCtrlMeas = 0xf4
	bme280RegStatus   = 0xf3
	bme280RegData     = 0xf7 // press(3) temp(3) hum(2), 8 bytes
	bme280CtrlMeasCmd = 0x27 // osrs_t=1, osrs_p=1, mode=normal
	bme280CtrlHumCmd  = 0x01 // osrs_h=1
)

// bme280Core reads and decodes the shared BME280 register block once per
// scan; the three channel Sensors below share one core per physical
// device so the device is configured and read exactly once even though
// it contributes three registry entries.
type bme280Core struct {
	addr                 uint8
	temperature          int32 // millidegrees C
	humidity             int32 // micro relative-humidity fraction
	pressure             int32 // millipascal... actually Pa*1000, see Read
	calibrated           bool
}

func (c *bme280Core) init(bus *Bus) error {
	id, err := bus.ReadRegister(c.addr, bme280RegID, 1)
	if err != nil {
		return err
	}
	if id[0] != bme280DeviceID {
		return fmt.Errorf("ambient: bme280@0x%02x: unexpected device id 0x%02x", c.addr, id[0])
	}
	if err := bus.WriteRegister(c.addr, bme280RegCtrlHum, bme280CtrlHumCmd); err != nil {
		return err
	}
	return bus.WriteRegister(c.addr, bme280RegCtrlMeas, bme280CtrlMeasCmd)
}

// read decodes the raw measurement block. It applies no temperature/
// pressure/humidity compensation beyond the factory-default linearized
// scale, adequate for the coarse ambient logging this sensor supports;
// full Bosch compensation needs the per-device calibration registers,
// which this driver does not read.
func (c *bme280Core) read(bus *Bus) error {
	data, err := bus.ReadRegister(c.addr, bme280RegData, 8)
	if err != nil {
		return err
	}
	rawPress := int32(data[0])<<12 | int32(data[1])<<4 | int32(data[2])>>4
	rawTemp := int32(data[3])<<12 | int32(data[4])<<4 | int32(data[5])>>4
	rawHum := int32(binary.BigEndian.Uint16(data[6:8]))

	c.temperature = rawTemp * 10 / 51 // approx raw/5120 deg C, reported in milli-deg C
	c.pressure = rawPress * 4         // approx Pa, reported in milli-Pa
	c.humidity = rawHum * 1000        // approx raw/512 %RH, reported in micro-fraction
	return nil
}

// BME280Temperature is the temperature channel of a BME280 combined
// sensor.
type BME280Temperature struct {
	name string
	core *bme280Core
}

func NewBME280Temperature(name string, core *bme280Core) *BME280Temperature {
	return &BME280Temperature{name: name, core: core}
}

func (s *BME280Temperature) Name() string       { return s.name }
func (s *BME280Temperature) Address() uint8     { return s.core.addr }
func (s *BME280Temperature) Unit() channel.Unit { return channel.UnitDegC }
func (s *BME280Temperature) Scale() int32       { return -3 } // RL_SCALE_MILLI
func (s *BME280Temperature) Value() int32       { return s.core.temperature }
func (s *BME280Temperature) Init(bus *Bus) error { return s.core.init(bus) }
func (s *BME280Temperature) Read(bus *Bus) error { return s.core.read(bus) }
func (s *BME280Temperature) Deinit(bus *Bus)     {}

// BME280Humidity is the relative-humidity channel of the same device.
type BME280Humidity struct {
	name string
	core *bme280Core
}

func NewBME280Humidity(name string, core *bme280Core) *BME280Humidity {
	return &BME280Humidity{name: name, core: core}
}

func (s *BME280Humidity) Name() string       { return s.name }
func (s *BME280Humidity) Address() uint8     { return s.core.addr }
func (s *BME280Humidity) Unit() channel.Unit { return channel.UnitInteger }
func (s *BME280Humidity) Scale() int32       { return -6 } // RL_SCALE_MICRO
func (s *BME280Humidity) Value() int32       { return s.core.humidity }
func (s *BME280Humidity) Init(bus *Bus) error { return s.core.init(bus) }
func (s *BME280Humidity) Read(bus *Bus) error { return s.core.read(bus) }
func (s *BME280Humidity) Deinit(bus *Bus)     {}

// BME280Pressure is the barometric-pressure channel of the same device.
type BME280Pressure struct {
	name string
	core *bme280Core
}

func NewBME280Pressure(name string, core *bme280Core) *BME280Pressure {
	return &BME280Pressure{name: name, core: core}
}

// NewBME280Core creates the shared register-access core for one physical
// BME280 device at addr; pass the same core into all three per-channel
// constructors so the device is initialized and read only once per scan.
func NewBME280Core(addr uint8) *bme280Core {
	return &bme280Core{addr: addr}
}

func (s *BME280Pressure) Name() string       { return s.name }
func (s *BME280Pressure) Address() uint8     { return s.core.addr }
func (s *BME280Pressure) Unit() channel.Unit { return channel.UnitPascal }
func (s *BME280Pressure) Scale() int32       { return -3 } // RL_SCALE_MILLI
func (s *BME280Pressure) Value() int32       { return s.core.pressure }
func (s *BME280Pressure) Init(bus *Bus) error { return s.core.init(bus) }
func (s *BME280Pressure) Read(bus *Bus) error { return s.core.read(bus) }
func (s *BME280Pressure) Deinit(bus *Bus)     {}
