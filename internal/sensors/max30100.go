// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// MAX30100 register map.
const (
	max30100Addr uint16 = 0x57

	regIntStatus  = 0x00
	regIntEnable  = 0x01
	regFIFOWrPtr  = 0x02
	regOvfCounter = 0x03
	regFIFORdPtr  = 0x04
	regFIFOData   = 0x05
	regModeConfig = 0x06
	regSpO2Config = 0x07
	regLEDConfig  = 0x09
	regTempInt    = 0x16
	regTempFrac   = 0x17
	regRevID      = 0xFE
	regPartID     = 0xFF

	max30100PartID = 0x11

	modeTempEnable = 0x08
	modeReset      = 0x40
	modeShutdown   = 0x80

	spo2HiResEnable = 0x40
	spo2SampleRate  = 0x01 << 2 // 100 Hz
	spo2PulseWidth  = 0x03      // 1600 us, 16-bit resolution

	fifoDepth       = 16
	bytesPerSample  = 4
	tempFracStepDeg = 0.0625
)

// OpticalSample is one FIFO entry from the MAX30100.
type OpticalSample struct {
	IR  uint16
	Red uint16
}

// MAX30100 is the register-level driver for the shared pulse-oximeter
// front-end. It satisfies RawSensor and is also the transport underneath
// the PulseOx wrapper.
type MAX30100 struct {
	dev i2c.Dev

	mode    OpticalMode
	pending []OpticalSample
	lastIR  uint16
	lastRed uint16
}

// NewMAX30100 binds the driver to the shared bus. No I/O happens until
// Begin.
func NewMAX30100(bus i2c.Bus) *MAX30100 {
	return &MAX30100{
		dev:  i2c.Dev{Bus: bus, Addr: max30100Addr},
		mode: OpticalModeSpO2HR,
	}
}

// Begin probes the part ID and applies the acquisition configuration.
// It doubles as the post-prime readiness check.
func (d *MAX30100) Begin() error {
	id, err := d.readReg(regPartID)
	if err != nil {
		return fmt.Errorf("max30100: part ID read: %w", err)
	}
	if id != max30100PartID {
		return fmt.Errorf("max30100: unexpected part ID 0x%02X", id)
	}

	if err := d.writeReg(regModeConfig, byte(d.mode)); err != nil {
		return fmt.Errorf("max30100: set mode: %w", err)
	}
	if err := d.writeReg(regSpO2Config, spo2SampleRate|spo2PulseWidth); err != nil {
		return fmt.Errorf("max30100: SpO2 config: %w", err)
	}
	return d.ResetFIFO()
}

// Shutdown puts the sensor into power-save. Errors are ignored: shutdown
// is called on paths where the bus may already be gone.
func (d *MAX30100) Shutdown() {
	cfg, err := d.readReg(regModeConfig)
	if err != nil {
		return
	}
	_ = d.writeReg(regModeConfig, cfg|modeShutdown)
}

func (d *MAX30100) SetMode(m OpticalMode) error {
	d.mode = m
	if err := d.writeReg(regModeConfig, byte(m)); err != nil {
		return fmt.Errorf("max30100: set mode: %w", err)
	}
	return nil
}

func (d *MAX30100) SetLedsCurrent(ir, red LEDCurrent) error {
	if err := d.writeReg(regLEDConfig, byte(red)<<4|byte(ir)); err != nil {
		return fmt.Errorf("max30100: LED config: %w", err)
	}
	return nil
}

func (d *MAX30100) SetHighResEnabled(enabled bool) error {
	cfg, err := d.readReg(regSpO2Config)
	if err != nil {
		return fmt.Errorf("max30100: SpO2 config read: %w", err)
	}
	if enabled {
		cfg |= spo2HiResEnable
	} else {
		cfg &^= spo2HiResEnable
	}
	if err := d.writeReg(regSpO2Config, cfg); err != nil {
		return fmt.Errorf("max30100: SpO2 config write: %w", err)
	}
	return nil
}

// Update drains the FIFO into the pending sample buffer.
func (d *MAX30100) Update() error {
	wr, err := d.readReg(regFIFOWrPtr)
	if err != nil {
		return fmt.Errorf("max30100: FIFO write pointer: %w", err)
	}
	rd, err := d.readReg(regFIFORdPtr)
	if err != nil {
		return fmt.Errorf("max30100: FIFO read pointer: %w", err)
	}

	available := int(wr-rd) & (fifoDepth - 1)
	if available == 0 {
		return nil
	}

	buf := make([]byte, available*bytesPerSample)
	if err := d.dev.Tx([]byte{regFIFOData}, buf); err != nil {
		return fmt.Errorf("max30100: FIFO burst read: %w", err)
	}

	for i := 0; i < available; i++ {
		s := OpticalSample{
			IR:  uint16(buf[i*4])<<8 | uint16(buf[i*4+1]),
			Red: uint16(buf[i*4+2])<<8 | uint16(buf[i*4+3]),
		}
		d.pending = append(d.pending, s)
		d.lastIR = s.IR
		d.lastRed = s.Red
	}
	return nil
}

// RawValues returns the most recent IR/Red counts.
func (d *MAX30100) RawValues() (ir, red uint16) {
	return d.lastIR, d.lastRed
}

// TakeSamples hands the buffered FIFO samples to the caller and clears
// the buffer. Used by the pulse-oximeter wrapper.
func (d *MAX30100) TakeSamples() []OpticalSample {
	s := d.pending
	d.pending = nil
	return s
}

// ResetFIFO clears the FIFO pointers and the pending buffer.
func (d *MAX30100) ResetFIFO() error {
	for _, reg := range []byte{regFIFOWrPtr, regOvfCounter, regFIFORdPtr} {
		if err := d.writeReg(reg, 0); err != nil {
			return fmt.Errorf("max30100: FIFO reset: %w", err)
		}
	}
	d.pending = nil
	return nil
}

// StartTemperatureSampling kicks off one die-temperature conversion.
func (d *MAX30100) StartTemperatureSampling() error {
	cfg, err := d.readReg(regModeConfig)
	if err != nil {
		return fmt.Errorf("max30100: temp start: %w", err)
	}
	if err := d.writeReg(regModeConfig, cfg|modeTempEnable); err != nil {
		return fmt.Errorf("max30100: temp start: %w", err)
	}
	return nil
}

// TemperatureReady reports whether the in-flight conversion finished.
// The TEMP_EN bit self-clears on completion.
func (d *MAX30100) TemperatureReady() (bool, error) {
	cfg, err := d.readReg(regModeConfig)
	if err != nil {
		return false, fmt.Errorf("max30100: temp poll: %w", err)
	}
	return cfg&modeTempEnable == 0, nil
}

// RetrieveTemperature latches the converted die temperature in Celsius.
func (d *MAX30100) RetrieveTemperature() (float64, error) {
	ti, err := d.readReg(regTempInt)
	if err != nil {
		return 0, fmt.Errorf("max30100: temp integer: %w", err)
	}
	tf, err := d.readReg(regTempFrac)
	if err != nil {
		return 0, fmt.Errorf("max30100: temp fraction: %w", err)
	}
	return float64(int8(ti)) + float64(tf&0x0F)*tempFracStepDeg, nil
}

func (d *MAX30100) readReg(reg byte) (byte, error) {
	var b [1]byte
	if err := d.dev.Tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *MAX30100) writeReg(reg, value byte) error {
	return d.dev.Tx([]byte{reg, value}, nil)
}
