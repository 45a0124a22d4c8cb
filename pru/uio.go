// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package pru

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// firmwarePath is the co-processor firmware image loaded through the
// remoteproc sysfs interface, matching PRU_BINARY_FILE.
const firmwarePath = "/lib/firmware/rocketlogger.bin"

// UIODriver is the real co-processor driver, mapping the control block and
// double-buffer region through a UIO device (/dev/uioN) and driving the
// firmware through the remoteproc sysfs interface. It implements Driver.
type UIODriver struct {
	uioPath string

	f       *os.File
	mapping []byte
	control *ControlBlock

	state atomic.Uint32

	// irqs and stopIrqs back a single long-lived reader goroutine started
	// by Init, rather than one spawned per waitInterrupt call: a context
	// cancellation or Timeout firing while a read is still pending would
	// otherwise leak a goroutine blocked on the device file forever.
	irqs     chan error
	stopIrqs chan struct{}

	// waitGen is bumped by waitInterrupt whenever it gives up on a read
	// still in flight (ctx cancellation or Timeout), so readInterrupts can
	// tell that read's eventual result belongs to an abandoned wait and
	// must not be handed to whichever call happens to be waiting next.
	waitGen atomic.Uint64
}

// NewUIODriver creates a driver bound to the given UIO device path (e.g.
// "/dev/uio0"); an empty path uses the default.
func NewUIODriver(uioPath string) *UIODriver {
	if uioPath == "" {
		uioPath = "/dev/uio0"
	}
	return &UIODriver{uioPath: uioPath}
}

// Init opens the UIO device and memory-maps the PRU shared region. It
// returns ErrBusy if the device is already open by another process.
func (d *UIODriver) Init() error {
	f, err := os.OpenFile(d.uioPath, os.O_RDWR, 0)
	if err != nil {
		if os.IsPermission(err) || os.IsNotExist(err) {
			return fmt.Errorf("pru.Init: %w", err)
		}
		return fmt.Errorf("pru.Init: %w: %v", ErrBusy, err)
	}
	d.f = f

	mapping, err := unix.Mmap(int(f.Fd()), 0, int(unsafe.Sizeof(ControlBlock{}))+2*maxMappedBufferBytes,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("pru.Init: mmap: %w", err)
	}
	d.mapping = mapping
	d.control = (*ControlBlock)(unsafe.Pointer(&mapping[0]))

	d.irqs = make(chan error)
	d.stopIrqs = make(chan struct{})
	go d.readInterrupts()
	return nil
}

// readInterrupts is the driver's single blocking reader of the UIO device
// file, run for the driver's lifetime. It exits either when Deinit closes
// stopIrqs (no waitInterrupt call pending) or when Deinit closing the
// device file unblocks its in-flight Read with an error.
func (d *UIODriver) readInterrupts() {
	buf := make([]byte, 4)
	for {
		gen := d.waitGen.Load()
		_, err := d.f.Read(buf)
		if err != nil {
			select {
			case d.irqs <- err:
			case <-d.stopIrqs:
			}
			return
		}
		if d.waitGen.Load() != gen {
			// Whoever was waiting on this read gave up (timeout or ctx
			// cancellation) while it was still in flight; don't hand a
			// stale notification to whatever call is waiting now.
			continue
		}
		select {
		case d.irqs <- err:
		case <-d.stopIrqs:
			return
		}
	}
}

// maxMappedBufferBytes bounds the double-buffer mapping size; real
// deployments size this from the configured sample rate and block size.
const maxMappedBufferBytes = 8 * 1024 * 1024

func (d *UIODriver) Deinit() error {
	if d.stopIrqs != nil {
		close(d.stopIrqs)
		d.stopIrqs = nil
	}
	if d.mapping != nil {
		if err := unix.Munmap(d.mapping); err != nil {
			return fmt.Errorf("pru.Deinit: munmap: %w", err)
		}
		d.mapping = nil
	}
	if d.f != nil {
		err := d.f.Close()
		d.f = nil
		if err != nil {
			return fmt.Errorf("pru.Deinit: %w", err)
		}
	}
	return nil
}

// writeControlBlock publishes cfg to the mapped control block with a
// write barrier before the state transition, per §5's ordering guarantee
// ("host writes to the PRU control block are followed by a write barrier
// before the state transition").
func (d *UIODriver) writeControlBlock(cfg SampleConfig, state State) {
	d.control.BufferLength = cfg.BufferLength
	d.control.SampleLimit = uint32(cfg.SampleLimit)
	d.control.ADCSampleRate = cfg.SampleRateHz
	d.control.ADCCommandCount = uint32(len(cfg.ADCCommands))
	for i, c := range cfg.ADCCommands {
		if i >= len(d.control.ADCCommand) {
			break
		}
		d.control.ADCCommand[i] = c
	}
	atomic.StoreUint32((*uint32)(&d.control.State), uint32(state))
}

// waitInterrupt blocks for the next UIO interrupt notification, honoring
// Timeout, by reading the 4-byte interrupt count from the UIO device file
// descriptor.
func (d *UIODriver) waitInterrupt(ctx context.Context) error {
	select {
	case <-ctx.Done():
		d.waitGen.Add(1)
		return ctx.Err()
	case err := <-d.irqs:
		return err
	case <-time.After(Timeout):
		d.waitGen.Add(1)
		return ErrTimeout
	}
}

// SampleLoop implements §4.1's sample_loop: program the control block,
// wait for the first interrupt, then loop reading alternating buffers,
// resyncing on any detected buffer-index gap.
func (d *UIODriver) SampleLoop(ctx context.Context, cfg SampleConfig, handler BlockHandler) error {
	d.writeControlBlock(cfg, startState(cfg))

	if err := d.waitInterrupt(ctx); err != nil {
		return fmt.Errorf("pru.SampleLoop: initial interrupt: %w", err)
	}

	var i uint32
	var produced uint64
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !cfg.Continuous() && produced >= cfg.SampleLimit {
			return nil
		}

		n := cfg.BufferLength
		if !cfg.Continuous() {
			remaining := cfg.SampleLimit - produced
			if uint64(n) > remaining {
				n = uint32(remaining)
			}
		}

		if err := d.waitInterrupt(ctx); err != nil {
			return fmt.Errorf("pru.SampleLoop: %w", err)
		}

		ts, err := blockTimestamps(n, cfg.SampleRateHz)
		if err != nil {
			return fmt.Errorf("pru.SampleLoop: %w", err)
		}
		buf := d.bufferFor(i % 2)
		// read-fence: the index word is written last by the co-processor,
		// so an atomic load here guarantees all samples preceding it in
		// program order on the producer side are visible to us.
		fence := atomic.LoadUint32(buf.indexPtr())

		var lost uint32
		if fence > i {
			lost = fence - i
			i = fence
		}

		block := buf.decode(n)
		block.Index = fence

		if err := handler(block, ts, lost); err != nil {
			return err
		}
		i++
		produced += uint64(n)
	}
}

// blockTimestamps reads the realtime and monotonic clocks at the moment a
// block's completion interrupt is observed, then back-adjusts both by the
// block's sampling duration so the returned timestamps mark the block's
// first sample rather than its last, per the driver's Timestamps contract.
func blockTimestamps(sampleCount uint32, sampleRateHz uint32) (Timestamps, error) {
	var real, mono unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &real); err != nil {
		return Timestamps{}, fmt.Errorf("clock_gettime(REALTIME): %w", err)
	}
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &mono); err != nil {
		return Timestamps{}, fmt.Errorf("clock_gettime(MONOTONIC): %w", err)
	}

	var backNsec int64
	if sampleRateHz > 0 {
		backNsec = int64(sampleCount) * int64(time.Second) / int64(sampleRateHz)
	}

	realSec, realNsec := subtractNanos(int64(real.Sec), int64(real.Nsec), backNsec)
	monoSec, monoNsec := subtractNanos(int64(mono.Sec), int64(mono.Nsec), backNsec)
	return Timestamps{
		RealtimeSec:   realSec,
		RealtimeNsec:  realNsec,
		MonotonicSec:  monoSec,
		MonotonicNsec: monoNsec,
	}, nil
}

// subtractNanos subtracts backNsec nanoseconds from a (sec, nsec) pair,
// normalizing nsec back into [0, 1e9). Go's % keeps the sign of the
// dividend, so a negative total (e.g. backing up past a monotonic clock
// reading taken shortly after boot) needs an explicit correction rather
// than a bare divmod.
func subtractNanos(sec, nsec int64, backNsec int64) (int64, int64) {
	total := sec*int64(time.Second) + nsec - backNsec
	secOut := total / int64(time.Second)
	nsecOut := total % int64(time.Second)
	if nsecOut < 0 {
		nsecOut += int64(time.Second)
		secOut--
	}
	return secOut, nsecOut
}

func startState(cfg SampleConfig) State {
	if cfg.Continuous() {
		return StateSampleContinuous
	}
	return StateSampleFinite
}

// Stop writes State=off with a barrier and waits for the final interrupt
// to drain, per §4.1.
func (d *UIODriver) Stop() error {
	atomic.StoreUint32((*uint32)(&d.control.State), uint32(StateOff))
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	return d.waitInterrupt(ctx)
}

// pruBuffer is a view into one of the two mapped sample buffers.
type pruBuffer struct {
	base []byte
}

func (d *UIODriver) bufferFor(which uint32) pruBuffer {
	ctrlSize := int(unsafe.Sizeof(ControlBlock{}))
	offset := ctrlSize
	if which == 1 {
		offset += maxMappedBufferBytes
	}
	return pruBuffer{base: d.mapping[offset:]}
}

func (b pruBuffer) indexPtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&b.base[0]))
}

func (b pruBuffer) decode(n uint32) Block {
	samples := make([]Sample, n)
	off := 4 // skip leading index word
	for i := uint32(0); i < n; i++ {
		s := (*Sample)(unsafe.Pointer(&b.base[off]))
		samples[i] = *s
		off += SampleSize
	}
	return Block{Samples: samples}
}
