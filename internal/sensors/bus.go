// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// I2CBus wraps the shared bus so drivers keep a stable handle across
// bus reinitialization. It satisfies i2c.Bus by delegation and
// BusController for the lifecycle manager.
type I2CBus struct {
	name string
	bus  i2c.BusCloser
}

// OpenBus initializes the periph host and opens the named I2C bus. An
// empty name selects the first available bus.
func OpenBus(name string) (*I2CBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("bus: periph host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("bus: open %q: %w", name, err)
	}
	// 100 kHz for stability with the analog front-ends on the same rail.
	if err := bus.SetSpeed(100 * physic.KiloHertz); err != nil {
		return nil, fmt.Errorf("bus: set speed: %w", err)
	}
	return &I2CBus{name: name, bus: bus}, nil
}

func (b *I2CBus) String() string { return b.bus.String() }

func (b *I2CBus) Tx(addr uint16, w, r []byte) error { return b.bus.Tx(addr, w, r) }

func (b *I2CBus) SetSpeed(f physic.Frequency) error { return b.bus.SetSpeed(f) }

// Reinit closes and reopens the bus, releasing any wedged transaction
// state on the wire.
func (b *I2CBus) Reinit() error {
	if err := b.bus.Close(); err != nil {
		return fmt.Errorf("bus: close: %w", err)
	}
	bus, err := i2creg.Open(b.name)
	if err != nil {
		return fmt.Errorf("bus: reopen %q: %w", b.name, err)
	}
	if err := bus.SetSpeed(100 * physic.KiloHertz); err != nil {
		return fmt.Errorf("bus: set speed: %w", err)
	}
	b.bus = bus
	return nil
}

// SoftResetOptical writes the vendor reset bit to the optical sensor's
// mode-control register, returning its register file to defaults.
func (b *I2CBus) SoftResetOptical() error {
	if err := b.Tx(max30100Addr, []byte{regModeConfig, modeReset}, nil); err != nil {
		return fmt.Errorf("bus: optical soft reset: %w", err)
	}
	return nil
}

func (b *I2CBus) Close() error { return b.bus.Close() }
