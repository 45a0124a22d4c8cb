// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package measurement

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethz-csg/rocketlogger-go/ambient"
	"github.com/ethz-csg/rocketlogger-go/calibration"
	"github.com/ethz-csg/rocketlogger-go/channel"
	"github.com/ethz-csg/rocketlogger-go/gpio"
	"github.com/ethz-csg/rocketlogger-go/logging"
	"github.com/ethz-csg/rocketlogger-go/parse"
	"github.com/ethz-csg/rocketlogger-go/pipeline"
	"github.com/ethz-csg/rocketlogger-go/pru"
	"github.com/ethz-csg/rocketlogger-go/rld"
	"github.com/ethz-csg/rocketlogger-go/shm"
)

// PIDFile is the default PID file path, matching the original daemon's
// PID_FILE.
const PIDFile = "/var/run/rocketlogger.pid"

// CalibrationFile is the default calibration file path.
const CalibrationFile = "/etc/rocketlogger/calibration.dat"

// Deps carries the hardware and IPC collaborators a Run invocation needs.
// Every field has a production default when left nil/zero; tests supply
// fakes (pru.SimDriver, gpio.SimLines) through this struct the same way
// session_device_test.go injects a scripted api.API.
type Deps struct {
	PRU     pru.Driver
	GPIO    gpio.Lines
	Logger  logging.Logger
	RunDir  string // overrides PIDFile's directory, for tests
	SkipPID bool
}

// Run executes one measurement end to end: acquire the PID file and
// status segment, configure hardware, run the sample loop as the
// pru.BlockHandler equivalent of session.ControlFn, and perform deferred
// teardown. It blocks until ctx is cancelled, the configured sample limit
// is reached, or a fatal error occurs.
func Run(ctx context.Context, cfg *Config, deps Deps) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard
	}

	if !deps.SkipPID {
		release, err := acquirePIDFile(deps.RunDir)
		if err != nil {
			return fmt.Errorf("measurement: %w", err)
		}
		defer release()
	}

	status, err := shm.CreateStatus()
	if err != nil {
		return fmt.Errorf("measurement: create status segment: %w", err)
	}
	defer status.Close()

	cal, calOK, err := loadCalibration(cfg)
	switch {
	case err != nil:
		logger.Warnf("calibration: %v, falling back to identity", err)
	case !calOK && !cfg.CalibrationIgnore:
		logger.Warnf("no calibration available, using identity calibration")
	}

	driver := deps.PRU
	if driver == nil {
		driver = pru.NewUIODriver("")
	}
	if err := driver.Init(); err != nil {
		return fmt.Errorf("measurement: pru init: %w", err)
	}
	defer driver.Deinit()

	var lines gpio.Lines = deps.GPIO
	if lines == nil {
		real, err := gpio.NewCdevLines()
		if err != nil {
			return fmt.Errorf("measurement: gpio init: %w", err)
		}
		lines = real
	}
	defer lines.Close()

	if err := setForceHighRange(lines, cfg); err != nil {
		return fmt.Errorf("measurement: %w", err)
	}
	if err := lines.SetStatusLED(true); err != nil {
		logger.Warnf("status LED: %v", err)
	}
	defer lines.SetStatusLED(false)

	var data *shm.DataHandle
	var sems *shm.SemaphoreSet
	if cfg.WebEnable {
		webChannels := pipeline.WebChannels(cfg.AnalogEnabled, cfg.DigitalEnabled)
		data, err = shm.CreateData(len(webChannels))
		if err != nil {
			return fmt.Errorf("measurement: create data segment: %w", err)
		}
		defer data.Close()

		sems, err = shm.CreateSemaphoreSet()
		if err != nil {
			return fmt.Errorf("measurement: create semaphore set: %w", err)
		}
		defer sems.Destroy()
	}

	var live *pipeline.LiveAggregator
	if cfg.WebEnable {
		live = pipeline.NewLiveAggregator(cfg.AnalogEnabled, cfg.DigitalEnabled, cfg.SampleRateHz)
	}

	var ambientSensorCount atomic.Uint32
	var scanner *ambient.Scanner
	if cfg.AmbientEnable {
		scanner, err = ambient.NewScanner(ambient.BusDevice)
		if err != nil {
			return fmt.Errorf("measurement: open ambient bus: %w", err)
		}
		if n, err := scanner.Scan(ctx); err != nil {
			logger.Warnf("ambient: scan failed: %v", err)
		} else {
			logger.Infof("ambient: found %d sensor(s)", n)
			// Set immediately, rather than waiting for the background poll
			// goroutine's first tick (up to one pollInterval away), so a
			// status reader querying right after startup already sees the
			// sensors this scan just found.
			ambientSensorCount.Store(uint32(n))
		}
		defer scanner.Close()
	}

	fileMAC, fileStart := fileMeta()

	descs, binCount := rld.BuildDescriptors(cfg.DigitalEnabled, cfg.AnalogEnabled)
	chans := resolveChannels(descs, binCount)

	writer, csvWriter, err := openFileOutputs(cfg, descs, binCount, fileMAC, fileStart)
	if err != nil {
		return fmt.Errorf("measurement: %w", err)
	}
	if writer != nil {
		defer writer.Close()
	}
	if csvWriter != nil {
		defer csvWriter.Close()
	}

	sampling := &atomic.Bool{}
	sampling.Store(true)
	var sampleCount, blockCount uint64
	var mu sync.Mutex

	// setStatus runs on the realtime sample-block handler's hot path, so
	// it must never block on I/O: the ambient sensor count is sampled
	// from ambientSensorCount (kept current by the background ambient
	// goroutine's own I2C polling cadence) rather than by calling
	// scanner.Readings here, which would perform a rate-limited I2C
	// transaction per block.
	setStatus := func(errored bool) {
		mu.Lock()
		defer mu.Unlock()
		s := shm.Status{
			Sampling:        sampling.Load(),
			WebEnable:       live != nil,
			Error:           errored,
			SampleCount:     sampleCount,
			BlockCount:      uint32(blockCount),
			CalibrationTime: cal.GenerationTime,
		}
		if scanner != nil {
			s.SensorCount = uint16(ambientSensorCount.Load())
		}
		status.Set(s)
	}
	setStatus(false)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		sampling.Store(false)
	}()

	var ambientFile *ambient.FileWriter
	var ambientWG sync.WaitGroup
	if scanner != nil {
		ambientFile, err = openAmbientOutput(cfg, fileMAC, fileStart)
		if err != nil {
			logger.Warnf("ambient: %v, sensor readings will not be written to a file", err)
		}
		// The polling goroutine always runs while ambient sensors are
		// enabled, even with no file configured (meter mode, or no --file),
		// so setStatus keeps a current SensorCount off ambientSensorCount
		// without itself performing I2C I/O on the sample-handling hot path.
		// ambientCtx is tied to Run's own lifetime, not sigCtx: a
		// finite-mode measurement returns from SampleLoop without any
		// signal ever arriving, and sigCtx would then never cancel,
		// leaving this goroutine (and ambientWG.Wait below) stuck forever.
		// cancelAmbient must run before Wait, so it is deferred last
		// (defers run LIFO).
		ambientCtx, cancelAmbient := context.WithCancel(ctx)
		if ambientFile != nil {
			defer ambientFile.Close()
		}
		defer ambientWG.Wait()
		defer cancelAmbient()
		start := time.Now()
		ambientWG.Add(1)
		go func() {
			defer ambientWG.Done()
			onReadings := func(readings []ambient.Reading) {
				ambientSensorCount.Store(uint32(len(readings)))
				if ambientFile == nil {
					return
				}
				if err := ambientFile.WriteReadings(time.Since(start).Seconds(), readings); err != nil {
					logger.Warnf("ambient: write failed: %v", err)
				}
			}
			if err := scanner.Run(ambientCtx, cfg.UpdateRateHz, onReadings); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warnf("ambient: scan loop stopped: %v", err)
			}
		}()
	}

	stage := pipeline.NewStage(pipeline.Config{
		SampleRateHz:   cfg.SampleRateHz,
		Mode:           cfg.Aggregation,
		AnalogEnabled:  cfg.AnalogEnabled,
		DigitalEnabled: cfg.DigitalEnabled,
		Calibration:    cal,
	})

	// The co-processor samples at max(configured rate, native ADC rate);
	// sub-native configured rates are instead realized by Stage
	// aggregating native-rate samples, so the block length and native
	// sample limit are both expressed in the actual ADC rate here.
	nativeRateHz := cfg.SampleRateHz
	if nativeRateHz < parse.NativeADCRateHz {
		nativeRateHz = parse.NativeADCRateHz
	}
	aggregates := uint64(parse.AggregatesFor(cfg.SampleRateHz))
	sampleCfg := pru.SampleConfig{
		SampleRateHz: nativeRateHz,
		SampleLimit:  cfg.SampleLimit * aggregates,
		BufferLength: nativeRateHz / cfg.UpdateRateHz,
	}

	handler := func(block pru.Block, ts pru.Timestamps, buffersLost uint32) error {
		if buffersLost > 0 {
			logger.Warnf("lost %d buffer(s), resynced", buffersLost)
		}
		if !sampling.Load() {
			return errStopRequested
		}

		var rows [][]byte
		realtime := rld.Timestamp{Sec: ts.RealtimeSec, Nsec: ts.RealtimeNsec}
		monotonic := rld.Timestamp{Sec: ts.MonotonicSec, Nsec: ts.MonotonicNsec}
		realtimeSecFloat := float64(ts.RealtimeSec) + float64(ts.RealtimeNsec)/1e9

		for _, sample := range block.Samples {
			row, closed := stage.ProcessSample(sample.Digital, sample.Analog)
			if !closed {
				continue
			}
			sampleCount++

			if writer != nil {
				rows = append(rows, encodeRow(row, chans, binCount))
			}
			if csvWriter != nil {
				if err := csvWriter.WriteRow(realtimeSecFloat, csvValues(row, chans)); err != nil {
					return err
				}
			}
			if live != nil {
				one, ten, hundred, ok := live.AddRow(row)
				if (ok[0] || ok[1] || ok[2]) && !publishLiveRow(data, sems, one, ten, hundred, ok, ts, logger) {
					live = nil
				}
			}
		}
		blockCount++

		rolledOver := false
		newPath := ""
		if writer != nil && len(rows) > 0 {
			if err := writer.WriteBlock(realtime, monotonic, rows); err != nil {
				return err
			}
			if writer.ShouldRollover() {
				if err := writer.Rollover(); err != nil {
					return err
				}
				rolledOver, newPath = true, writer.Path()
			}
		}
		if csvWriter != nil && csvWriter.ShouldRollover() {
			if err := csvWriter.Rollover(); err != nil {
				return err
			}
			rolledOver, newPath = true, csvWriter.Path()
		}
		if rolledOver && ambientFile != nil {
			if err := ambientFile.Rollover(newPath, uint16(cfg.SampleRateHz), fileMAC, fileStart, cfg.Comment); err != nil {
				logger.Warnf("ambient: rollover failed: %v", err)
			}
		}

		setStatus(false)
		return nil
	}

	err = driver.SampleLoop(ctx, sampleCfg, handler)
	sampling.Store(false)
	// Always tell the co-processor to stop, even when SampleLoop returned
	// because the sample limit was reached or ctx was cancelled: leaving it
	// at StateSampleContinuous/StateSampleFinite would keep it sampling into
	// the now-unmapped buffer region and firing interrupts after this
	// process exits.
	if stopErr := driver.Stop(); stopErr != nil {
		logger.Warnf("pru: stop failed: %v", stopErr)
	}
	if err != nil && !errors.Is(err, errStopRequested) {
		setStatus(true)
		return fmt.Errorf("measurement: sample loop: %w", err)
	}
	setStatus(false)
	return nil
}

var errStopRequested = errors.New("measurement: stop requested")

// publishLiveRow pushes the windows that closed on this sample into the
// data segment's ring buffers under the data semaphore, then notifies any
// blocked readers. It reports false on a lock timeout, telling the caller
// to disable web publishing for the remainder of the measurement instead
// of failing the sample loop; sampling itself is never interrupted by a
// stuck reader.
func publishLiveRow(data *shm.DataHandle, sems *shm.SemaphoreSet, one, ten, hundred *pipeline.LiveRow, ok [3]bool, ts pru.Timestamps, logger logging.Logger) bool {
	if err := sems.Lock(shm.DataSemWriteTimeout); err != nil {
		if errors.Is(err, shm.ErrSemTimeout) {
			logger.Warnf("live view: data semaphore acquire timed out, disabling web publishing for remainder of measurement")
			return false
		}
		logger.Warnf("live view: data semaphore acquire failed: %v, disabling web publishing for remainder of measurement", err)
		return false
	}
	defer sems.Unlock()

	realtimeMs := ts.RealtimeSec*1000 + ts.RealtimeNsec/1_000_000
	data.SetTimestampMs(realtimeMs)
	if ok[0] {
		data.Buffer(shm.Scale1s).Add(one.Values)
	}
	if ok[1] {
		data.Buffer(shm.Scale10s).Add(ten.Values)
	}
	if ok[2] {
		data.Buffer(shm.Scale100s).Add(hundred.Values)
	}

	if err := sems.Notify(); err != nil {
		logger.Warnf("live view: wait semaphore notify failed: %v", err)
	}
	return true
}

func setForceHighRange(lines gpio.Lines, cfg *Config) error {
	if forced, ok := cfg.ForceHighRange[channel.Port1]; ok {
		if err := lines.SetForceHighRange(1, forced); err != nil {
			return err
		}
	}
	if forced, ok := cfg.ForceHighRange[channel.Port2]; ok {
		if err := lines.SetForceHighRange(2, forced); err != nil {
			return err
		}
	}
	return nil
}

func loadCalibration(cfg *Config) (*calibration.Calibration, bool, error) {
	if cfg.CalibrationIgnore {
		return calibration.Identity(), false, nil
	}
	cal, ok, err := calibration.Load(CalibrationFile)
	if err != nil {
		return calibration.Identity(), false, err
	}
	return cal, ok, nil
}

// fileMeta computes the MAC address and start timestamp embedded in a
// measurement file's header, computed once so the main output and its
// ambient sidecar (and any rollover of either) agree on both.
func fileMeta() ([6]byte, rld.Timestamp) {
	start := rld.Timestamp{Sec: time.Now().Unix()}
	var mac [6]byte
	if hw := firstHardwareAddr(); hw != nil {
		copy(mac[:], hw)
	}
	return mac, start
}

func openFileOutputs(cfg *Config, descs []rld.ChannelDescriptor, binCount uint16, mac [6]byte, start rld.Timestamp) (*rld.Writer, *rld.CSVWriter, error) {
	if !cfg.FileEnable || cfg.Mode == ModeMeter {
		return nil, nil, nil
	}

	switch cfg.FileFormat {
	case FileFormatCSV:
		w, err := rld.CreateCSV(cfg.FilePath, uint16(cfg.SampleRateHz), mac, start, cfg.Comment, descs, binCount, cfg.FileSizeLimitBytes)
		if err != nil {
			return nil, nil, err
		}
		return nil, w, nil
	default:
		w, err := rld.Create(cfg.FilePath, uint16(cfg.SampleRateHz), mac, start, cfg.Comment, descs, binCount, cfg.FileSizeLimitBytes)
		if err != nil {
			return nil, nil, err
		}
		return w, nil, nil
	}
}

// openAmbientOutput opens the ambient sidecar CSV file alongside the main
// measurement file, named by ambient.FilePath. It returns a nil writer
// (not an error) when no main file is configured, since the sidecar has
// nowhere to derive its name from; the scanner still keeps Status.SensorCount
// current in that case.
func openAmbientOutput(cfg *Config, mac [6]byte, start rld.Timestamp) (*ambient.FileWriter, error) {
	if !cfg.FileEnable || cfg.Mode == ModeMeter {
		return nil, nil
	}
	return ambient.NewFileWriter(ambient.FilePath(cfg.FilePath), uint16(cfg.SampleRateHz), mac, start, cfg.Comment)
}

func acquirePIDFile(runDir string) (release func(), err error) {
	path := PIDFile
	if runDir != "" {
		path = runDir + "/rocketlogger.pid"
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("pid file %s: %w (measurement already running?)", path, err)
	}
	fmt.Fprintf(f, "%d", os.Getpid())
	f.Close()
	return func() { os.Remove(path) }, nil
}

// firstHardwareAddr returns the MAC address of the first non-loopback
// interface with one, or nil on a host with none (e.g. under test),
// which the file format tolerates since the field is metadata only and
// never validated on read.
func firstHardwareAddr() []byte {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 6 {
			return iface.HardwareAddr
		}
	}
	return nil
}

