// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

// Package ambient implements the optional ambient-sensor sidecar: a
// static registry of known I2C sensors probed by address at measurement
// start, read on a rate-limited schedule, and written to a parallel
// ambient data file via the rld package. Each sensor is a trait object
// behind the Sensor interface rather than a case in a switch over a
// closed enum, so adding a sensor model needs no change to the scan loop.
package ambient

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ethz-csg/rocketlogger-go/channel"
)

// BusDevice is the default I2C bus device exposing the cape's ambient
// sensor header, matching the original's I2C_BUS_FILENAME default.
const BusDevice = "/dev/i2c-2"

// ScanRateLimit bounds how often the I2C bus is polled across all
// registered sensors, avoiding bus contention with any other I2C user on
// the cape.
const ScanRateLimit = rate.Limit(20) // probes/sec

// Reading is one value produced by a Sensor.
type Reading struct {
	Name  string
	Unit  channel.Unit
	Scale int32
	Value int32
}

// Sensor is the interface every ambient sensor driver implements. A
// single physical device exposing several channels (e.g. a combined
// temperature/humidity/pressure sensor) registers one Sensor per
// channel, matching the original registry's one-entry-per-channel shape.
type Sensor interface {
	Name() string
	Address() uint8
	Unit() channel.Unit
	Scale() int32

	// Init probes the device at Address() on bus and returns an error if
	// it does not respond or fails to configure. Called once per scan.
	Init(bus *Bus) error
	// Read triggers a measurement and caches it for Value.
	Read(bus *Bus) error
	Value() int32
	// Deinit releases any per-device state. Safe to call even if Init
	// never succeeded.
	Deinit(bus *Bus)
}

// Registry lists every known ambient sensor channel, in scan order.
// Multi-channel devices appear as consecutive entries sharing an Init
// target, mirroring the original SENSOR_REGISTRY layout.
var Registry = buildRegistry()

func buildRegistry() []Sensor {
	bme280 := NewBME280Core(bme280AddressLeft)
	return []Sensor{
		NewTSL4531("TSL4531_left", tsl4531AddressLeft),
		NewTSL4531("TSL4531_right", tsl4531AddressRight),
		NewBME280Temperature("BME280_temp", bme280),
		NewBME280Humidity("BME280_rh", bme280),
		NewBME280Pressure("BME280_press", bme280),
	}
}

// Scanner owns the shared I2C bus and the set of sensors found present
// on it during the most recent Scan. mu serializes Scan/Readings/Close
// against the bus and available, since the owning measurement.Run calls
// Readings from both its status-reporting path and its background
// Run(ctx, ...) poll loop.
type Scanner struct {
	mu        sync.Mutex
	bus       *Bus
	limiter   *rate.Limiter
	available []bool
}

// NewScanner opens busDevice and prepares a Scanner over Registry.
func NewScanner(busDevice string) (*Scanner, error) {
	bus, err := OpenBus(busDevice)
	if err != nil {
		return nil, err
	}
	return &Scanner{
		bus:       bus,
		limiter:   rate.NewLimiter(ScanRateLimit, 1),
		available: make([]bool, len(Registry)),
	}, nil
}

// Scan probes every registry entry, skipping repeated Init calls for
// consecutive entries sharing a device address (multi-channel sensors),
// and returns the number found present.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	lastAddr, lastOK := uint8(0), false
	for i, sensor := range Registry {
		ok := lastOK && sensor.Address() == lastAddr
		if !ok {
			if err := s.limiter.Wait(ctx); err != nil {
				return count, err
			}
			ok = sensor.Init(s.bus) == nil
		}
		s.available[i] = ok
		if ok {
			count++
		}
		lastAddr, lastOK = sensor.Address(), ok
	}
	return count, nil
}

// Readings triggers a Read on every available sensor and returns their
// current values, rate-limited the same way Scan is. Consecutive registry
// entries sharing a device address (a multi-channel sensor) trigger only
// one Read, matching Scan's Init de-duplication, since Read on any one of
// them refreshes the shared core all of them read from.
func (s *Scanner) Readings(ctx context.Context) ([]Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reading
	lastAddr, lastOK := uint8(0), false
	for i, sensor := range Registry {
		if !s.available[i] {
			lastOK = false
			continue
		}
		sameDevice := lastOK && sensor.Address() == lastAddr
		if !sameDevice {
			if err := s.limiter.Wait(ctx); err != nil {
				return out, err
			}
			if err := sensor.Read(s.bus); err != nil {
				lastAddr, lastOK = sensor.Address(), false
				continue
			}
		}
		lastAddr, lastOK = sensor.Address(), true
		out = append(out, Reading{
			Name:  sensor.Name(),
			Unit:  sensor.Unit(),
			Scale: sensor.Scale(),
			Value: sensor.Value(),
		})
	}
	return out, nil
}

// Close deinitializes every available sensor and closes the bus.
func (s *Scanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sensor := range Registry {
		if s.available[i] {
			sensor.Deinit(s.bus)
		}
	}
	return s.bus.Close()
}

// pollInterval derives a sensible read period from the measurement's
// configured update rate, floored at one second since ambient conditions
// change far slower than electrical measurements.
func pollInterval(updateRateHz uint32) time.Duration {
	if updateRateHz == 0 {
		return time.Second
	}
	d := time.Second / time.Duration(updateRateHz)
	if d < time.Second {
		return time.Second
	}
	return d
}

// Run calls onReadings once per pollInterval(updateRateHz) until ctx is
// done. It is the goroutine measurement.Run starts when ambient sensors
// are enabled, and assumes the caller has already run an initial Scan
// (measurement.Run does this up front to log the sensor count before
// starting Run); Run does not rescan, so a device that was not present
// at startup stays unavailable until the caller calls Scan again.
func (s *Scanner) Run(ctx context.Context, updateRateHz uint32, onReadings func([]Reading)) error {
	ticker := time.NewTicker(pollInterval(updateRateHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			readings, err := s.Readings(ctx)
			if err != nil {
				return err
			}
			onReadings(readings)
		}
	}
}
