// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package ambient

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethz-csg/rocketlogger-go/rld"
)

// FilePath derives the ambient sidecar's file path from the main
// measurement file's path, e.g. "data.rld" becomes "data_ambient.csv". If
// mainPath already carries a rollover suffix (e.g. "data_p1.rld"), the
// result carries it too ("data_p1_ambient.csv"), keeping the ambient
// file's rollover generation in step with the main file's.
// The ambient file is always CSV, regardless of the main file's format.
func FilePath(mainPath string) string {
	ext := filepath.Ext(mainPath)
	base := strings.TrimSuffix(mainPath, ext)
	return base + "_ambient.csv"
}

// FileWriter renders a sequence of Readings to a parallel, human-readable
// CSV file alongside the main measurement file: one fixed column per
// Registry entry, in registry order, so the column set stays stable even
// as sensors come and go across rescans. mu serializes WriteReadings
// (called from the background poll goroutine) against Rollover and Close
// (called from the sample handler when the main file rolls over).
type FileWriter struct {
	mu  sync.Mutex
	csv *rld.CSVWriter
}

// NewFileWriter creates (or truncates) path and writes the CSV header,
// naming every Registry entry as a column.
func NewFileWriter(path string, sampleRate uint16, mac [6]byte, start rld.Timestamp, comment string) (*FileWriter, error) {
	w, err := rld.CreateCSV(path, sampleRate, mac, start, comment, ambientDescriptors(), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("ambient: %w", err)
	}
	return &FileWriter{csv: w}, nil
}

// ambientDescriptors builds the fixed column table shared by every
// ambient CSV file (and rebuilt identically on Rollover).
func ambientDescriptors() []rld.ChannelDescriptor {
	descs := make([]rld.ChannelDescriptor, len(Registry))
	for i, s := range Registry {
		descs[i] = rld.NewChannelDescriptor(s.Unit(), s.Scale(), 4, 0, s.Name())
	}
	return descs
}

// WriteReadings writes one row at elapsed time t, filling each Registry
// column from readings by name and leaving absent sensors (not found
// present at the last Scan) at zero.
func (fw *FileWriter) WriteReadings(t float64, readings []Reading) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	byName := make(map[string]int32, len(readings))
	for _, r := range readings {
		byName[r.Name] = r.Value
	}
	values := make([]int64, len(Registry))
	for i, s := range Registry {
		values[i] = int64(byName[s.Name()])
	}
	return fw.csv.WriteRow(t, values)
}

// Rollover closes the current ambient file and opens a fresh one named
// after the main file's new (already-rolled-over) path, so the two files'
// "_pN" generations stay paired: a reader correlating ambient readings
// with main-file rows never crosses a rollover boundary between them.
func (fw *FileWriter) Rollover(newMainPath string, sampleRate uint16, mac [6]byte, start rld.Timestamp, comment string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.csv.Close(); err != nil {
		return err
	}
	w, err := rld.CreateCSV(FilePath(newMainPath), sampleRate, mac, start, comment, ambientDescriptors(), 0, 0)
	if err != nil {
		return fmt.Errorf("ambient: rollover: %w", err)
	}
	fw.csv = w
	return nil
}

// Close flushes and closes the underlying file.
func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.csv.Close()
}
