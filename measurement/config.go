// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package measurement implements the measurement lifecycle: acquiring the
// PID file and shared status segment, configuring the co-processor,
// hardware, and ambient sensors, running the sample loop, and performing
// deferred teardown. It generalizes session.Session/session.Run's
// acquire-configure-execute-teardown shape from a single RSP device
// session to the whole measurement daemon.
package measurement

import (
	"errors"
	"fmt"

	"github.com/ethz-csg/rocketlogger-go/channel"
	"github.com/ethz-csg/rocketlogger-go/parse"
	"github.com/ethz-csg/rocketlogger-go/pipeline"
)

// Mode is the sampling mode: finite (stop after SampleLimit samples),
// continuous (run until stopped), or meter (continuous, console-only,
// no file output).
type Mode int

const (
	ModeFinite Mode = iota
	ModeContinuous
	ModeMeter
)

// FileFormat selects the on-disk data format.
type FileFormat int

const (
	FileFormatBinary FileFormat = iota
	FileFormatCSV
)

// Config is the measurement configuration record, immutable for the
// lifetime of one measurement. It is built through a ConfigFn
// functional-options chain, directly generalizing
// session.ConfigFn/session.WithXxx.
type Config struct {
	Mode         Mode
	SampleLimit  uint64 // 0 = unbounded, only meaningful under ModeFinite
	SampleRateHz uint32
	UpdateRateHz uint32

	AnalogEnabled  map[channel.Channel]bool
	ForceHighRange map[channel.Port]bool
	DigitalEnabled bool

	Aggregation pipeline.AggregationMode

	WebEnable         bool
	AmbientEnable     bool
	CalibrationIgnore bool

	FileEnable        bool
	FilePath          string
	FileFormat        FileFormat
	FileSizeLimitBytes uint64
	Comment           string
}

// ConfigFn is implemented by a function that configures a Config, or
// returns a non-nil error if a problem with the configuration is
// detected.
type ConfigFn func(c *Config) error

// NewConfig builds a Config by applying each ConfigFn in order, then
// validates the result.
func NewConfig(fns ...ConfigFn) (*Config, error) {
	c := &Config{
		SampleRateHz:   parse.NativeADCRateHz,
		UpdateRateHz:   1,
		AnalogEnabled:  make(map[channel.Channel]bool),
		ForceHighRange: make(map[channel.Port]bool),
	}
	for _, fn := range fns {
		if err := fn(c); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithMode sets the sampling mode and, for ModeFinite, the sample limit.
func WithMode(mode Mode, sampleLimit uint64) ConfigFn {
	return func(c *Config) error {
		c.Mode = mode
		c.SampleLimit = sampleLimit
		return nil
	}
}

// WithSampleRate sets the native ADC sample rate in Hz. It must be a
// member of parse.AllowedSampleRates.
func WithSampleRate(hz uint32) ConfigFn {
	return func(c *Config) error {
		c.SampleRateHz = hz
		return nil
	}
}

// WithUpdateRate sets the file/ring-buffer block emission rate in Hz. It
// must be a member of parse.AllowedUpdateRates.
func WithUpdateRate(hz uint32) ConfigFn {
	return func(c *Config) error {
		c.UpdateRateHz = hz
		return nil
	}
}

// WithChannels enables exactly the given analog channels; any channel not
// listed is disabled.
func WithChannels(channels ...channel.Channel) ConfigFn {
	return func(c *Config) error {
		for _, ch := range channels {
			if !ch.IsAnalog() {
				return fmt.Errorf("measurement: WithChannels: %s is not an analog channel", ch)
			}
			c.AnalogEnabled[ch] = true
		}
		return nil
	}
}

// WithDigitalEnabled enables or disables the 6 digital input channels.
func WithDigitalEnabled(en bool) ConfigFn {
	return func(c *Config) error {
		c.DigitalEnabled = en
		return nil
	}
}

// WithForceHighRange forces the given current port to its high range for
// the duration of the measurement.
func WithForceHighRange(port channel.Port, force bool) ConfigFn {
	return func(c *Config) error {
		c.ForceHighRange[port] = force
		return nil
	}
}

// WithAggregation sets the sub-native rate aggregation policy.
func WithAggregation(mode pipeline.AggregationMode) ConfigFn {
	return func(c *Config) error {
		c.Aggregation = mode
		return nil
	}
}

// WithWebEnable enables or disables the live-view shared-memory publish
// path.
func WithWebEnable(en bool) ConfigFn {
	return func(c *Config) error {
		c.WebEnable = en
		return nil
	}
}

// WithAmbientEnable enables or disables the ambient-sensor sidecar.
func WithAmbientEnable(en bool) ConfigFn {
	return func(c *Config) error {
		c.AmbientEnable = en
		return nil
	}
}

// WithCalibrationIgnore forces identity calibration unconditionally, even
// if a calibration file is present.
func WithCalibrationIgnore(ignore bool) ConfigFn {
	return func(c *Config) error {
		c.CalibrationIgnore = ignore
		return nil
	}
}

// WithFile enables file output at path in the given format, with an
// optional size limit in bytes (0 = unbounded).
func WithFile(path string, format FileFormat, sizeLimitBytes uint64) ConfigFn {
	return func(c *Config) error {
		c.FileEnable = true
		c.FilePath = path
		c.FileFormat = format
		c.FileSizeLimitBytes = sizeLimitBytes
		return nil
	}
}

// WithComment sets the file header comment string.
func WithComment(comment string) ConfigFn {
	return func(c *Config) error {
		c.Comment = comment
		return nil
	}
}

// Validate checks the configuration invariants: update_rate <= sample_rate,
// sample_rate in the allowed set, and force-range flags only set for
// enabled current ports.
func (c *Config) Validate() error {
	rateOK := false
	for _, r := range parse.AllowedSampleRates {
		if c.SampleRateHz == r {
			rateOK = true
			break
		}
	}
	if !rateOK {
		return fmt.Errorf("measurement: sample rate %d Hz is not in the allowed set %v", c.SampleRateHz, parse.AllowedSampleRates)
	}
	updateOK := false
	for _, r := range parse.AllowedUpdateRates {
		if c.UpdateRateHz == r {
			updateOK = true
			break
		}
	}
	if !updateOK {
		return fmt.Errorf("measurement: update rate %d Hz is not in the allowed set %v", c.UpdateRateHz, parse.AllowedUpdateRates)
	}
	if c.UpdateRateHz > c.SampleRateHz {
		return errors.New("measurement: update rate must not exceed sample rate")
	}
	for port, forced := range c.ForceHighRange {
		if !forced {
			continue
		}
		if !c.AnalogEnabled[port.Low()] && !c.AnalogEnabled[port.High()] {
			return fmt.Errorf("measurement: force-high-range set for port %v but neither of its channels is enabled", port)
		}
	}
	if c.Mode == ModeMeter && c.FileEnable {
		return errors.New("measurement: meter mode does not write a file")
	}
	return nil
}
