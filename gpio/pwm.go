// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// PWM channel sysfs paths and the fixed clock period shared by the
// range-force waveform and the ADC sample clock it derives from.
const (
	pwmChip0Path = "/sys/class/pwm/pwmchip0"
	pwmChip1Path = "/sys/class/pwm/pwmchip1"

	PWMChannelADCClock    = 0 // EPWM0A: co-processor ADC sample clock
	PWMChannelRangeResetA = 0 // EPWM1A
	PWMChannelRangeResetB = 1 // EPWM1B

	// PWMPeriodDefaultNS is the default PWM period in nanoseconds applied
	// at export time; pwm_setup_adc_clock/pwm_setup_range_reset reprogram
	// the live period and duty cycle once sampling parameters are known.
	PWMPeriodDefaultNS = 490
)

// PWM exports and enables the two PWM peripherals the cape uses to derive
// the co-processor's ADC sample clock and the channel range-reset strobe.
// It only performs the sysfs export/period/enable handshake; the
// cycle-accurate waveform timing is programmed by the co-processor
// firmware through the pru package's control block, not by this driver.
type PWM struct {
	chip0 string
	chip1 string
}

// NewPWM opens the two PWM chips at their fixed sysfs paths.
func NewPWM() *PWM {
	return &PWM{chip0: pwmChip0Path, chip1: pwmChip1Path}
}

// Init exports both PWM channels on chip1 and the one on chip0, sets their
// period to PWMPeriodDefaultNS, and enables them.
func (p *PWM) Init() error {
	channels := []struct {
		chip string
		ch   int
	}{
		{p.chip0, PWMChannelADCClock},
		{p.chip1, PWMChannelRangeResetA},
		{p.chip1, PWMChannelRangeResetB},
	}
	for _, c := range channels {
		if err := exportChannel(c.chip, c.ch); err != nil {
			return err
		}
		if err := writeChannelInt(c.chip, c.ch, "period", PWMPeriodDefaultNS); err != nil {
			return err
		}
		if err := writeChannelInt(c.chip, c.ch, "enable", 1); err != nil {
			return err
		}
	}
	return nil
}

// Deinit disables and unexports every channel Init exported. The first
// error is returned; deinit always attempts every channel rather than stopping
// at the first failure, since partial teardown should not strand the rest
// of the peripherals exported.
func (p *PWM) Deinit() error {
	channels := []struct {
		chip string
		ch   int
	}{
		{p.chip0, PWMChannelADCClock},
		{p.chip1, PWMChannelRangeResetA},
		{p.chip1, PWMChannelRangeResetB},
	}
	var firstErr error
	for _, c := range channels {
		if err := writeChannelInt(c.chip, c.ch, "enable", 0); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := unexportChannel(c.chip, c.ch); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func exportChannel(chip string, ch int) error {
	if _, err := os.Stat(channelPath(chip, ch)); err == nil {
		return nil // already exported
	}
	return os.WriteFile(filepath.Join(chip, "export"), []byte(strconv.Itoa(ch)), 0644)
}

func unexportChannel(chip string, ch int) error {
	if _, err := os.Stat(channelPath(chip, ch)); os.IsNotExist(err) {
		return nil
	}
	return os.WriteFile(filepath.Join(chip, "unexport"), []byte(strconv.Itoa(ch)), 0644)
}

func writeChannelInt(chip string, ch int, attr string, v int) error {
	path := filepath.Join(channelPath(chip, ch), attr)
	if err := os.WriteFile(path, []byte(strconv.Itoa(v)), 0644); err != nil {
		return fmt.Errorf("gpio: write %s: %w", path, err)
	}
	return nil
}

func channelPath(chip string, ch int) string {
	return filepath.Join(chip, fmt.Sprintf("pwm%d", ch))
}
