// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors owns the biosensor rig: the two mutually exclusive
// optical driver paths, the accelerometer, the force sensor, and the
// lifecycle manager that arbitrates the shared I2C bus between them.
package sensors

// LEDCurrent selects the LED drive current of the optical sensor.
type LEDCurrent byte

// LED current codes of the MAX30100 (register steps of ~3.1 mA).
const (
	LEDCurrent0MA  LEDCurrent = 0x00
	LEDCurrent24MA LEDCurrent = 0x07
	LEDCurrent50MA LEDCurrent = 0x0F
)

// OpticalMode selects the acquisition mode of the raw optical sensor.
type OpticalMode byte

const (
	OpticalModeHR     OpticalMode = 0x02
	OpticalModeSpO2HR OpticalMode = 0x03
)

// PulseOximeter is the processed driver path: validated heart rate and
// SpO2 on top of the shared optical front-end.
type PulseOximeter interface {
	Begin() error
	Shutdown()
	SetIRLedCurrent(c LEDCurrent) error
	Update() error
	HeartRate() float64
	SpO2() float64
}

// RawSensor is the register-level driver path: raw IR/Red counts, FIFO
// control, and die-temperature sampling.
type RawSensor interface {
	Begin() error
	Shutdown()
	SetMode(m OpticalMode) error
	SetLedsCurrent(ir, red LEDCurrent) error
	SetHighResEnabled(enabled bool) error
	Update() error
	RawValues() (ir, red uint16)
	ResetFIFO() error
	StartTemperatureSampling() error
	TemperatureReady() (bool, error)
	RetrieveTemperature() (float64, error)
}

// Accelerometer reads the 3-axis acceleration in g.
type Accelerometer interface {
	Begin() error
	Acceleration() (ax, ay, az float64, err error)
}

// ForceSensor reads the force-sensitive resistor in raw ADC counts.
type ForceSensor interface {
	Read() (uint16, error)
}

// BusController reinitializes the shared sensor bus. Only the lifecycle
// manager calls it.
type BusController interface {
	// Reinit quiesces and reopens the bus.
	Reinit() error
	// SoftResetOptical issues the vendor soft-reset sequence to the
	// optical sensor's mode-control register.
	SoftResetOptical() error
}
