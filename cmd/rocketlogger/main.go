// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command rocketlogger is the measurement control CLI: start, stop,
// status, and config subcommands over the shared status segment and the
// measurement package's config/run entry points.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethz-csg/rocketlogger-go/channel"
	"github.com/ethz-csg/rocketlogger-go/logging"
	"github.com/ethz-csg/rocketlogger-go/measurement"
	"github.com/ethz-csg/rocketlogger-go/parse"
	"github.com/ethz-csg/rocketlogger-go/pipeline"
	"github.com/ethz-csg/rocketlogger-go/shm"
	"github.com/spf13/pflag"
)

// startFlags holds every start/config flag value, parsed as strings where
// an SI suffix or allowed-set validation applies (sample/update rate,
// file size) and handed to the parse package rather than to pflag's own
// numeric types, matching rspwav's "parse the raw flag string with the
// domain package" idiom.
type startFlags struct {
	sampleRate  string
	updateRate  string
	channels    string
	digital     bool
	forceHigh1  bool
	forceHigh2  bool
	aggregation string
	web         bool
	ambient     bool
	calIgnore   bool
	file        string
	format      string
	size        string
	comment     string
	meter       bool
	limit       uint64
	background  bool
	json        bool
}

func registerStartFlags(flags *pflag.FlagSet) *startFlags {
	f := &startFlags{}
	flags.StringVar(&f.sampleRate, "rate", "1000", "Sample rate in Hz, with optional k suffix (e.g. 8k). Must be one of the allowed rates.")
	flags.StringVar(&f.updateRate, "update-rate", "1", "File/live-view update rate in Hz (1, 2, 5, or 10).")
	flags.StringVar(&f.channels, "channels", "all", "Comma-separated analog channel list, or \"all\".")
	flags.BoolVar(&f.digital, "digital", true, "Enable the 6 digital input channels.")
	flags.BoolVar(&f.forceHigh1, "force-high-1", false, "Force current port 1 to its high range for the whole measurement.")
	flags.BoolVar(&f.forceHigh2, "force-high-2", false, "Force current port 2 to its high range for the whole measurement.")
	flags.StringVar(&f.aggregation, "aggregation", "average", "Sub-native rate aggregation mode: average or downsample.")
	flags.BoolVar(&f.web, "web", false, "Publish to the live-view shared-memory segment.")
	flags.BoolVar(&f.ambient, "ambient", false, "Enable the ambient-sensor sidecar.")
	flags.BoolVar(&f.calIgnore, "calibration-ignore", false, "Ignore the calibration file and use identity calibration.")
	flags.StringVar(&f.file, "file", "", "Output file path. Empty disables file output.")
	flags.StringVar(&f.format, "format", "rld", "Output file format: rld or csv.")
	flags.StringVar(&f.size, "size", "0", "Maximum output file size, with optional k/m/g/t suffix. 0 means unbounded.")
	flags.StringVar(&f.comment, "comment", "", "File header comment string.")
	flags.BoolVar(&f.meter, "meter", false, "Meter mode: continuous, console-only, no file output.")
	flags.Uint64Var(&f.limit, "limit", 0, "Stop after this many samples (finite mode). 0 means continuous.")
	flags.BoolVar(&f.background, "background", false, "Detach and run the measurement in the background.")
	flags.BoolVar(&f.json, "json", false, "Print output as JSON instead of a human-readable line.")
	return f
}

func buildConfig(f *startFlags) (*measurement.Config, error) {
	rate, err := parse.SampleRate(f.sampleRate)
	if err != nil {
		return nil, err
	}
	updateRate, err := parse.UpdateRate(f.updateRate)
	if err != nil {
		return nil, err
	}
	channels, err := parse.ChannelList(f.channels)
	if err != nil {
		return nil, err
	}
	size, err := parse.SizeInBytes(f.size)
	if err != nil {
		return nil, err
	}

	var aggMode pipeline.AggregationMode
	switch strings.ToLower(f.aggregation) {
	case "average", "":
		aggMode = pipeline.Average
	case "downsample":
		aggMode = pipeline.Downsample
	default:
		return nil, fmt.Errorf("rocketlogger: unknown aggregation mode %q", f.aggregation)
	}

	var format measurement.FileFormat
	switch strings.ToLower(f.format) {
	case "rld", "":
		format = measurement.FileFormatBinary
	case "csv":
		format = measurement.FileFormatCSV
	default:
		return nil, fmt.Errorf("rocketlogger: unknown file format %q", f.format)
	}

	fns := []measurement.ConfigFn{
		measurement.WithSampleRate(rate),
		measurement.WithUpdateRate(updateRate),
		measurement.WithChannels(channelSlice(channels)...),
		measurement.WithDigitalEnabled(f.digital),
		measurement.WithForceHighRange(channel.Port1, f.forceHigh1),
		measurement.WithForceHighRange(channel.Port2, f.forceHigh2),
		measurement.WithAggregation(aggMode),
		measurement.WithWebEnable(f.web),
		measurement.WithAmbientEnable(f.ambient),
		measurement.WithCalibrationIgnore(f.calIgnore),
		measurement.WithComment(f.comment),
	}
	switch {
	case f.meter:
		fns = append(fns, measurement.WithMode(measurement.ModeMeter, 0))
	case f.limit > 0:
		fns = append(fns, measurement.WithMode(measurement.ModeFinite, f.limit))
	default:
		fns = append(fns, measurement.WithMode(measurement.ModeContinuous, 0))
	}
	if f.file != "" && !f.meter {
		fns = append(fns, measurement.WithFile(f.file, format, size))
	}
	return measurement.NewConfig(fns...)
}

func channelSlice(enabled map[channel.Channel]bool) []channel.Channel {
	out := make([]channel.Channel, 0, len(enabled))
	for _, c := range channel.AnalogChannels {
		if enabled[c] {
			out = append(out, c)
		}
	}
	return out
}

func runStart(args []string) error {
	flags := pflag.NewFlagSet("start", pflag.ContinueOnError)
	f := registerStartFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}
	cfg, err := buildConfig(f)
	if err != nil {
		return err
	}

	if f.background {
		return startBackground()
	}

	logger, err := logging.New(logging.DefaultLogFile)
	if err != nil {
		return fmt.Errorf("rocketlogger: %w", err)
	}
	return measurement.Run(context.Background(), cfg, measurement.Deps{Logger: logger})
}

// startBackground re-execs the current binary with "start" and the
// original flags minus -background, detached into its own session, and
// returns once the child is launched. Go has no fork(2); this is the
// idiomatic stand-in used for daemonizing a CLI-driven process.
func startBackground() error {
	args := make([]string, 0, len(os.Args)-1)
	for _, a := range os.Args[2:] {
		if a == "--background" || a == "-background" ||
			strings.HasPrefix(a, "--background=") || strings.HasPrefix(a, "-background=") {
			continue
		}
		args = append(args, a)
	}
	args = append([]string{"start"}, args...)

	cmd := exec.Command(os.Args[0], args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("rocketlogger: %w", err)
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("rocketlogger: background start: %w", err)
	}
	fmt.Printf("started measurement, pid %d\n", cmd.Process.Pid)
	return nil
}

func runStop([]string) error {
	data, err := os.ReadFile(measurement.PIDFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.New("rocketlogger: no measurement is running")
		}
		return fmt.Errorf("rocketlogger: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("rocketlogger: malformed pid file: %w", err)
	}
	if err := syscall.Kill(pid, syscall.SIGINT); err != nil {
		return fmt.Errorf("rocketlogger: stop: %w", err)
	}
	return nil
}

func runStatus(args []string) error {
	asJSON := false
	flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
	flags.BoolVar(&asJSON, "json", false, "Print status as JSON.")
	if err := flags.Parse(args); err != nil {
		return err
	}

	status, err := shm.OpenStatus()
	if err != nil {
		return errors.New("rocketlogger: no measurement is running")
	}
	defer status.Close()

	s := status.Read()
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(s)
	}
	fmt.Printf("sampling=%v web_enable=%v error=%v samples=%d blocks=%d\n",
		s.Sampling, s.WebEnable, s.Error, s.SampleCount, s.BlockCount)
	return nil
}

func runConfig(args []string) error {
	flags := pflag.NewFlagSet("config", pflag.ContinueOnError)
	f := registerStartFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}
	cfg, err := buildConfig(f)
	if err != nil {
		return err
	}
	if f.json {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(cfg)
	}
	fmt.Printf("%+v\n", cfg)
	return nil
}

func rocketloggerMain() error {
	if len(os.Args) < 2 {
		return errors.New("usage: rocketlogger <start|stop|status|config> [flags]")
	}
	switch os.Args[1] {
	case "start":
		return runStart(os.Args[2:])
	case "stop":
		return runStop(os.Args[2:])
	case "status":
		return runStatus(os.Args[2:])
	case "config":
		return runConfig(os.Args[2:])
	default:
		return fmt.Errorf("rocketlogger: unknown subcommand %q", os.Args[1])
	}
}

func main() {
	if err := rocketloggerMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var errno syscall.Errno
		if errors.As(err, &errno) {
			os.Exit(int(errno))
		}
		os.Exit(1)
	}
}
