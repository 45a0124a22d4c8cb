// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package calibration implements the versioned binary calibration store
// (§4.4): per-channel offset/scale pairs applied as
// calibrated = (raw + offset) * scale, loaded from a fixed file with an
// identity fallback when the file is missing or its version does not
// match.
package calibration

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethz-csg/rocketlogger-go/channel"
)

// FileMagic is the calibration file's magic constant, ASCII "%RLC" read as
// a little-endian uint32 (matching RL_CALIBRATION_FILE_MAGIC).
const FileMagic uint32 = 0x434c5225

// FileVersion is the calibration file format version this implementation
// reads and writes.
const FileVersion uint16 = 0x02

// headerLength is the fixed size in bytes of the file header (magic,
// version, header length, calibration time), matching
// RL_CALIBRATION_FILE_HEADER_LENGTH.
const headerLength = 16

// ErrVersionMismatch is returned by Load when the file's magic or version
// does not match what this implementation expects.
var ErrVersionMismatch = errors.New("calibration: file magic or version mismatch")

// Calibration holds one offset and scale pair per analog channel, indexed
// by channel.Channel.
type Calibration struct {
	Offsets [8]int32
	Scales  [8]float64

	// GenerationTime is the Unix timestamp (seconds) recorded when this
	// calibration was generated; zero for the identity fallback.
	GenerationTime uint64
}

// Identity returns a Calibration with zero offsets and unity scales, the
// fallback used whenever no calibration file is available.
func Identity() *Calibration {
	c := &Calibration{}
	for i := range c.Scales {
		c.Scales[i] = 1.0
	}
	return c
}

// index maps an analog channel to its position in the 8-element
// offset/scale arrays, following channel.AnalogChannels order.
func index(c channel.Channel) (int, bool) {
	for i, ac := range channel.AnalogChannels {
		if ac == c {
			return i, true
		}
	}
	return 0, false
}

// Apply calibrates a raw ADC sample for the given channel: (raw+offset)*scale,
// cast back to int32. It returns raw unchanged if c is not an analog
// channel.
func (c *Calibration) Apply(ch channel.Channel, raw int32) int32 {
	i, ok := index(ch)
	if !ok {
		return raw
	}
	return int32(float64(raw+c.Offsets[i]) * c.Scales[i])
}

// Load reads a calibration file at path. If the file does not exist, it
// returns Identity() and a nil error, matching the "missing file -> warn,
// identity" rule of §4.4 (callers should still log a warning using the
// returned ok flag).
func Load(path string) (cal *Calibration, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Identity(), false, nil
		}
		return Identity(), false, fmt.Errorf("calibration.Load: %w", err)
	}
	defer f.Close()

	var hdr struct {
		Magic          uint32
		Version        uint16
		HeaderLength   uint16
		GenerationTime uint64
	}
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return Identity(), false, fmt.Errorf("calibration.Load: reading header: %w", err)
	}
	if hdr.Magic != FileMagic || hdr.Version != FileVersion {
		return Identity(), false, ErrVersionMismatch
	}

	cal = &Calibration{GenerationTime: hdr.GenerationTime}
	if err := binary.Read(f, binary.LittleEndian, &cal.Offsets); err != nil {
		return Identity(), false, fmt.Errorf("calibration.Load: reading offsets: %w", err)
	}
	if err := binary.Read(f, binary.LittleEndian, &cal.Scales); err != nil {
		return Identity(), false, fmt.Errorf("calibration.Load: reading scales: %w", err)
	}
	return cal, true, nil
}

// Save atomically writes cal to path: it writes to a temp file in the same
// directory, then renames it into place, so a concurrent Load never
// observes a partially written file.
func Save(path string, cal *Calibration) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".calibration-*.tmp")
	if err != nil {
		return fmt.Errorf("calibration.Save: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var buf bytes.Buffer
	hdr := struct {
		Magic          uint32
		Version        uint16
		HeaderLength   uint16
		GenerationTime uint64
	}{
		Magic:          FileMagic,
		Version:        FileVersion,
		HeaderLength:   headerLength,
		GenerationTime: cal.GenerationTime,
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		tmp.Close()
		return fmt.Errorf("calibration.Save: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, cal.Offsets); err != nil {
		tmp.Close()
		return fmt.Errorf("calibration.Save: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, cal.Scales); err != nil {
		tmp.Close()
		return fmt.Errorf("calibration.Save: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("calibration.Save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("calibration.Save: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("calibration.Save: %w", err)
	}
	return nil
}
