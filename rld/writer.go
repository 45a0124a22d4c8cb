// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rld

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrWriteFailed wraps any write error encountered while emitting a data
// block or rewriting the lead-in; per §7, write errors are terminal for
// the measurement.
var ErrWriteFailed = errors.New("rld: write failed")

// Writer owns a single open .rld file: it writes the lead-in and channel
// table once, appends data blocks, and rewrites the lead-in in place after
// each block using an explicit seek+write+seek-to-end sequence (§9's
// "dedicated writer" redesign of the file-offset-based in-place update,
// generalizing helpers/wav.Header.Update's seek-rewrite pattern from a
// fixed RIFF header to the versioned RLD lead-in).
type Writer struct {
	f        *os.File
	w        *bufio.Writer
	path     string
	basePath string // original path, before any _pN rollover suffix

	leadIn  LeadIn
	comment string
	descs   []ChannelDescriptor

	// rowBytes is the number of bytes one output row occupies in a data
	// block, used by the ShouldRollover threshold check.
	rowBytes int

	// sizeLimit is the configured maximum file size in bytes (0 =
	// unbounded); rolloverIndex is incremented on each rollover.
	sizeLimit     uint64
	rolloverIndex int

	written int64 // bytes written since the file was (re)opened
}

// Create opens path for writing, writes the initial lead-in and channel
// table (with zeroed counters), and returns a ready-to-use Writer. comment
// is stored verbatim (NUL-padded to a 4-byte boundary); descs is the
// channel descriptor table built by BuildDescriptors; sizeLimitBytes is
// the configured rollover threshold (0 disables rollover).
func Create(path string, sampleRate uint16, mac [6]byte, start Timestamp, comment string, descs []ChannelDescriptor, binCount uint16, sizeLimitBytes uint64) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("rld.Create: %w", err)
	}

	rowBytes := 0
	if binCount > 0 {
		rowBytes += 4
	}
	for _, d := range descs[binCount:] {
		rowBytes += int(d.DataSize)
	}

	w := &Writer{
		f:        f,
		w:        bufio.NewWriter(f),
		path:     path,
		basePath: path,
		comment:  comment,
		descs:    descs,
		rowBytes: rowBytes,
		sizeLimit: sizeLimitBytes,
	}
	w.leadIn = LeadIn{
		Magic:           FileMagic,
		FileVersion:     FileVersion,
		HeaderLength:    HeaderLength(comment, len(descs)),
		DataBlockSize:   0,
		DataBlockCount:  0,
		SampleCount:     0,
		SampleRate:      sampleRate,
		MACAddress:      mac,
		StartTime:       start,
		CommentLength:   paddedCommentLength(comment),
		ChannelBinCount: binCount,
		ChannelCount:    uint16(len(descs)) - binCount,
	}

	if err := w.storeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// storeHeader writes the lead-in, padded comment, and descriptor table
// from the current file position (expected to be 0), matching §4.3's
// store_header_bin.
func (w *Writer) storeHeader() error {
	if err := binary.Write(w.w, binary.LittleEndian, w.leadIn); err != nil {
		return fmt.Errorf("%w: lead-in: %v", ErrWriteFailed, err)
	}
	padded := make([]byte, w.leadIn.CommentLength)
	copy(padded, w.comment)
	if _, err := w.w.Write(padded); err != nil {
		return fmt.Errorf("%w: comment: %v", ErrWriteFailed, err)
	}
	for _, d := range w.descs {
		if err := binary.Write(w.w, binary.LittleEndian, d); err != nil {
			return fmt.Errorf("%w: descriptor: %v", ErrWriteFailed, err)
		}
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	w.written = int64(w.leadIn.HeaderLength)
	return nil
}

// WriteBlock appends one data block (the two timestamps, then the rows,
// each already encoded by the caller into the file's row layout) and advances the
// lead-in's counters, then rewrites the lead-in in place (§4.3's
// add_data_block + update_header_bin, fused so callers cannot forget the
// update step).
func (w *Writer) WriteBlock(realtime, monotonic Timestamp, rows [][]byte) error {
	if err := binary.Write(w.w, binary.LittleEndian, realtime); err != nil {
		return fmt.Errorf("%w: realtime timestamp: %v", ErrWriteFailed, err)
	}
	if err := binary.Write(w.w, binary.LittleEndian, monotonic); err != nil {
		return fmt.Errorf("%w: monotonic timestamp: %v", ErrWriteFailed, err)
	}
	n := 32
	for _, row := range rows {
		if _, err := w.w.Write(row); err != nil {
			return fmt.Errorf("%w: row: %v", ErrWriteFailed, err)
		}
		n += len(row)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	w.written += int64(n)

	w.leadIn.DataBlockCount++
	w.leadIn.SampleCount += uint64(len(rows))
	if w.leadIn.DataBlockSize == 0 {
		w.leadIn.DataBlockSize = uint32(len(rows))
	}
	return w.rewriteLeadIn()
}

// rewriteLeadIn implements update_header_bin: seek to 0, rewrite the
// lead-in, flush, seek back to the end so the next WriteBlock appends
// correctly.
func (w *Writer) rewriteLeadIn() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek start: %v", ErrWriteFailed, err)
	}
	if err := binary.Write(w.f, binary.LittleEndian, w.leadIn); err != nil {
		return fmt.Errorf("%w: rewrite lead-in: %v", ErrWriteFailed, err)
	}
	if _, err := w.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("%w: seek end: %v", ErrWriteFailed, err)
	}
	return nil
}

// ShouldRollover reports whether writing one more second's worth of data
// (estimated from the current sample rate and row size) would exceed the
// configured size limit, per §4.3's rollover rule. It always returns false
// when the limit is 0 (rollover disabled).
func (w *Writer) ShouldRollover() bool {
	if w.sizeLimit == 0 {
		return false
	}
	oneSecondBytes := int64(w.leadIn.SampleRate) * int64(w.rowBytes)
	return w.written+oneSecondBytes > int64(w.sizeLimit)
}

// Rollover closes the current file, derives a new name by inserting
// "_pN" before the extension (N starting at 1 and incrementing across
// calls), opens it, and writes a fresh header with zeroed counters but
// the same start time, sample rate, MAC, comment, and channel table
// (§4.3's rollover operation; invariant 7 requires the concatenation of
// data-block streams, not headers, to reproduce the unsplit sequence).
func (w *Writer) Rollover() error {
	if err := w.Close(); err != nil {
		return err
	}
	w.rolloverIndex++
	newPath := partFileName(w.basePath, w.rolloverIndex)

	f, err := os.Create(newPath)
	if err != nil {
		return fmt.Errorf("rld.Rollover: %w", err)
	}
	w.f = f
	w.w = bufio.NewWriter(f)
	w.path = newPath
	w.leadIn.DataBlockCount = 0
	w.leadIn.SampleCount = 0
	return w.storeHeader()
}

// partFileName inserts "_pN" before the file extension, e.g.
// "data.rld" with n=1 becomes "data_p1.rld".
func partFileName(path string, n int) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_p%d%s", base, n, ext)
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return w.f.Close()
}

// Path returns the path of the file currently being written (reflects any
// rollover).
func (w *Writer) Path() string {
	return w.path
}
