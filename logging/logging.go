// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logging provides the structured, leveled logging facility shared
// by every rocketlogger binary: a charmbracelet/log logger fanned out to
// stderr and a 1 MB-capped rotating log file.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLogFile is the default log file path, matching the original
// daemon's RL_LOG_DEFAULT_FILE.
const DefaultLogFile = "/var/log/rocketlogger.log"

// MaxLogSizeMB is the log file rotation threshold in megabytes (1 MB,
// matching RL_LOG_FILE_SIZE_MAX).
const MaxLogSizeMB = 1

// Logger is the narrow logging interface used throughout the module. It is
// compatible with the standard library's log.Logger through Printf and
// extends it with leveled methods, matching the error taxonomy of §7 of
// the specification this module implements (configuration, resource,
// hardware, and data-loss-warning errors are logged at different
// severities).
type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// charmLogger adapts *log.Logger to the Logger interface.
type charmLogger struct {
	l *log.Logger
}

func (c *charmLogger) Printf(format string, v ...interface{}) {
	c.l.Infof(format, v...)
}

func (c *charmLogger) Debugf(format string, v ...interface{}) { c.l.Debugf(format, v...) }
func (c *charmLogger) Infof(format string, v ...interface{})  { c.l.Infof(format, v...) }
func (c *charmLogger) Warnf(format string, v ...interface{})  { c.l.Warnf(format, v...) }
func (c *charmLogger) Errorf(format string, v ...interface{}) { c.l.Errorf(format, v...) }

// New creates a Logger that writes to stderr and, if logFile is non-empty,
// to a lumberjack-rotated file capped at MaxLogSizeMB with a handful of
// backups retained (matching "capped ... with automatic reset": once the
// active file hits the cap, lumberjack renames it aside and starts fresh).
func New(logFile string) (Logger, error) {
	var out io.Writer = os.Stderr
	if logFile != "" {
		rotator := &lumberjack.Logger{
			Filename: logFile,
			MaxSize:  MaxLogSizeMB,
			MaxBackups: 3,
			Compress:   false,
		}
		out = io.MultiWriter(os.Stderr, rotator)
	}
	l := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})
	return &charmLogger{l: l}, nil
}

// Discard is a Logger that drops all messages, used as a default in tests
// and in contexts that have not configured a log destination.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Printf(format string, v ...interface{}) {}
func (discardLogger) Debugf(format string, v ...interface{}) {}
func (discardLogger) Infof(format string, v ...interface{})  {}
func (discardLogger) Warnf(format string, v ...interface{})  {}
func (discardLogger) Errorf(format string, v ...interface{}) {}

var _ fmt.Stringer = Level(0)

// Level mirrors the original daemon's rl_log_level_t, used only for CLI
// verbosity flags; the underlying logger always uses charmbracelet/log's
// own level type internally.
type Level int

const (
	LevelIgnore Level = iota
	LevelError
	LevelWarning
	LevelInfo
	LevelVerbose
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	case LevelVerbose:
		return "verbose"
	default:
		return "ignore"
	}
}
