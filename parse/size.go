// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package parse implements the command-line value parsing and validation
// shared by the rocketlogger CLI tools: SI-suffixed sizes and rates,
// allowed-value range checks, and channel list parsing.
package parse

import (
	"strconv"
	"strings"
)

// SizeInBytes parses a file size given as a command-line argument. The
// argument may have a suffix of k, m, g, or t (case-insensitive) to
// indicate the value is in KiB, MiB, GiB, or TiB respectively (e.g. 10M).
// Any text before such a suffix must represent a valid unsigned integer
// value as parsed by strconv.ParseUint(). The return value is the parsed
// size in bytes. A size of 0 means "unbounded" per the configuration
// record's file_size field.
func SizeInBytes(arg string) (uint64, error) {
	var mult uint64 = 1
	arg = strings.ToLower(arg)
	switch {
	case arg == "":
		// do nothing
	case strings.HasSuffix(arg, "k"):
		mult = 1024
		arg = strings.TrimSuffix(arg, "k")
	case strings.HasSuffix(arg, "m"):
		mult = 1024 * 1024
		arg = strings.TrimSuffix(arg, "m")
	case strings.HasSuffix(arg, "g"):
		mult = 1024 * 1024 * 1024
		arg = strings.TrimSuffix(arg, "g")
	case strings.HasSuffix(arg, "t"):
		mult = 1024 * 1024 * 1024 * 1024
		arg = strings.TrimSuffix(arg, "t")
	}
	size, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, err
	}
	return size * mult, nil
}
