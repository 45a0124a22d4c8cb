// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rld

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVWriter renders the same logical data stream as Writer but as a human
// readable, non-authoritative CSV file (§4.3: "CSV format is a parallel
// but distinct rendering of the same logical stream"). It is not expected
// to round-trip numerically (§9's open-question resolution); binary is
// authoritative.
type CSVWriter struct {
	w      *bufio.Writer
	closer io.Closer

	sampleRate uint16
	mac        [6]byte
	start      Timestamp
	comment    string
	descs      []ChannelDescriptor
	binCnt     uint16

	// path/basePath/rolloverIndex/sizeLimit/written only take on meaning
	// for a CSVWriter opened via CreateCSV: Rollover needs the underlying
	// path to close and reopen under a "_pN" suffix, which a CSVWriter
	// wrapping a caller-supplied io.WriteCloser via NewCSVWriter does not
	// have. (The ambient sidecar uses CreateCSV with a size limit of 0 and
	// rolls over in lockstep with the main file instead of on its own size.)
	path, basePath string
	sizeLimit      uint64
	rolloverIndex  int
	written        int64
}

// NewCSVWriter writes the human header block, channel name/unit row, and
// returns a CSVWriter ready for per-row writes via WriteRow. The returned
// writer has no size-based rollover of its own; use CreateCSV for that.
func NewCSVWriter(out io.WriteCloser, sampleRate uint16, mac [6]byte, start Timestamp, comment string, descs []ChannelDescriptor, binCount uint16) (*CSVWriter, error) {
	c := &CSVWriter{
		sampleRate: sampleRate,
		mac:        mac,
		start:      start,
		comment:    comment,
		descs:      descs,
		binCnt:     binCount,
	}
	if err := c.attach(out); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateCSV opens path and behaves like NewCSVWriter, but additionally
// supports ShouldRollover/Rollover the same way the binary Writer does
// (§4.3's rollover rule applies to both file formats; the original daemon
// splits CSV output the same way it splits .rld output). sizeLimitBytes
// of 0 disables rollover.
func CreateCSV(path string, sampleRate uint16, mac [6]byte, start Timestamp, comment string, descs []ChannelDescriptor, binCount uint16, sizeLimitBytes uint64) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("rld.CreateCSV: %w", err)
	}
	c, err := NewCSVWriter(f, sampleRate, mac, start, comment, descs, binCount)
	if err != nil {
		return nil, err
	}
	c.path = path
	c.basePath = path
	c.sizeLimit = sizeLimitBytes
	return c, nil
}

// attach writes the header block and name row to out and makes it the
// writer's current destination.
func (c *CSVWriter) attach(out io.WriteCloser) error {
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "# rocketlogger csv v%d\n", FileVersion)
	fmt.Fprintf(w, "# sample_rate=%d\n", c.sampleRate)
	fmt.Fprintf(w, "# mac=%02x:%02x:%02x:%02x:%02x:%02x\n", c.mac[0], c.mac[1], c.mac[2], c.mac[3], c.mac[4], c.mac[5])
	fmt.Fprintf(w, "# start_time=%d.%09d\n", c.start.Sec, c.start.Nsec)
	fmt.Fprintf(w, "# comment=%s\n", c.comment)

	names := make([]string, 0, len(c.descs)+1)
	names = append(names, "time")
	for _, d := range c.descs {
		names = append(names, d.NameString())
	}
	fmt.Fprintln(w, strings.Join(names, ","))

	if err := w.Flush(); err != nil {
		return fmt.Errorf("rld.NewCSVWriter: %w", err)
	}
	c.w = w
	c.closer = out
	return nil
}

// WriteRow writes one sample row: a fractional-second timestamp prefix
// followed by one decimal value per channel descriptor, in the same order
// as the descriptor table (digital/range-valid words are rendered as
// plain decimal integers, analog values as their calibrated integer
// reading).
func (c *CSVWriter) WriteRow(t float64, values []int64) error {
	fields := make([]string, 0, len(values)+1)
	fields = append(fields, fmt.Sprintf("%.6f", t))
	for _, v := range values {
		fields = append(fields, fmt.Sprintf("%d", v))
	}
	line := strings.Join(fields, ",") + "\n"
	if _, err := c.w.WriteString(line); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	c.written += int64(len(line))
	return nil
}

// ShouldRollover reports whether the file written so far has reached the
// configured size limit. It always returns false for a writer created via
// NewCSVWriter (no basePath, rollover disabled) or with sizeLimitBytes 0.
func (c *CSVWriter) ShouldRollover() bool {
	if c.basePath == "" || c.sizeLimit == 0 {
		return false
	}
	return c.written >= int64(c.sizeLimit)
}

// Rollover closes the current file and opens a new one named by inserting
// "_pN" before the extension (N starting at 1 and incrementing across
// calls), writing a fresh header with zeroed running state but the same
// start time, sample rate, MAC, comment, and channel table.
func (c *CSVWriter) Rollover() error {
	if c.basePath == "" {
		return fmt.Errorf("rld: CSVWriter not opened via CreateCSV, cannot roll over")
	}
	if err := c.Close(); err != nil {
		return err
	}
	c.rolloverIndex++
	newPath := partFileName(c.basePath, c.rolloverIndex)

	f, err := os.Create(newPath)
	if err != nil {
		return fmt.Errorf("rld.CSVWriter.Rollover: %w", err)
	}
	c.path = newPath
	c.written = 0
	return c.attach(f)
}

// Path returns the path of the file currently being written (reflects any
// rollover). Empty for a writer created via NewCSVWriter.
func (c *CSVWriter) Path() string {
	return c.path
}

// Close flushes and closes the underlying writer.
func (c *CSVWriter) Close() error {
	if err := c.w.Flush(); err != nil {
		c.closer.Close()
		return err
	}
	return c.closer.Close()
}
