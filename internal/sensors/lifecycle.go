// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ErrLowMemory marks an initialization that was refused before any bus
// traffic because free memory sat below the configured floor.
var ErrLowMemory = errors.New("free memory below floor")

const (
	// Bring-up attempts per driver path. The pulse-ox path retries; the
	// raw path gets a single attempt.
	poxInitAttempts = 3
	rawInitAttempts = 1

	primeDiscardReads = 10
	primeReadSpacing  = 20 * time.Millisecond
	primeTimeout      = 500 * time.Millisecond

	shutdownSettle = 50 * time.Millisecond
	busSettle      = 100 * time.Millisecond
	resetSettle    = 200 * time.Millisecond
	retryBackoff   = 100 * time.Millisecond
)

// Manager owns the sensor drivers and the exclusive claim on the shared
// bus. At most one of the two optical driver paths is initialized at any
// time; the accelerometer is independent.
type Manager struct {
	log   *zap.SugaredLogger
	bus   BusController
	pox   PulseOximeter
	raw   RawSensor
	accel Accelerometer

	poxReady   bool
	rawReady   bool
	accelReady bool

	memFloor uint64

	// Injection points for tests.
	freeMem func() uint64
	sleep   func(time.Duration)
	nowFn   func() time.Time
}

// NewManager wires the lifecycle manager. memFloor of 0 disables the
// memory guard.
func NewManager(log *zap.SugaredLogger, bus BusController, pox PulseOximeter, raw RawSensor, accel Accelerometer, memFloor uint64) *Manager {
	return &Manager{
		log:      log,
		bus:      bus,
		pox:      pox,
		raw:      raw,
		accel:    accel,
		memFloor: memFloor,
		freeMem:  freeMemory,
		sleep:    time.Sleep,
		nowFn:    time.Now,
	}
}

// PulseOxReady reports whether the pulse-ox path is live.
func (m *Manager) PulseOxReady() bool { return m.poxReady }

// RawReady reports whether the raw optical path is live.
func (m *Manager) RawReady() bool { return m.rawReady }

// AccelReady reports whether the accelerometer has been brought up.
func (m *Manager) AccelReady() bool { return m.accelReady }

// PulseOx exposes the pulse-ox driver for the sampling loop.
func (m *Manager) PulseOx() PulseOximeter { return m.pox }

// Raw exposes the raw optical driver for the sampling loop.
func (m *Manager) Raw() RawSensor { return m.raw }

// Accel exposes the accelerometer for the sampling loop.
func (m *Manager) Accel() Accelerometer { return m.accel }

// FreeMemory returns the current free-memory reading used by the guard
// and the status channel.
func (m *Manager) FreeMemory() uint64 { return m.freeMem() }

// Reset shuts down whichever optical driver is active, reinitializes the
// bus, and soft-resets the optical front-end. Safe to call at any time;
// calling it twice in a row is harmless.
func (m *Manager) Reset() error {
	m.log.Info("lifecycle: resetting sensors")

	if m.poxReady {
		m.pox.Shutdown()
		m.sleep(shutdownSettle)
		m.poxReady = false
	}
	if m.rawReady {
		m.raw.Shutdown()
		m.sleep(shutdownSettle)
		m.rawReady = false
	}

	if err := m.bus.Reinit(); err != nil {
		return fmt.Errorf("lifecycle: bus reinit: %w", err)
	}
	m.sleep(shutdownSettle)

	if err := m.bus.SoftResetOptical(); err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}
	m.sleep(busSettle)
	return nil
}

// InitPulseOx brings up the pulse-ox path, forcing the raw path down
// first. Up to poxInitAttempts full reset+prime cycles.
func (m *Manager) InitPulseOx() error {
	if err := m.checkMemory("pulse oximeter init"); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= poxInitAttempts; attempt++ {
		if err := m.Reset(); err != nil {
			lastErr = err
			continue
		}
		m.sleep(resetSettle)

		if err := m.primePulseOx(); err != nil {
			m.log.Warnf("lifecycle: pulse oximeter prime attempt %d/%d failed: %v", attempt, poxInitAttempts, err)
			lastErr = err
			m.sleep(retryBackoff)
			continue
		}

		m.poxReady = true
		m.log.Info("lifecycle: pulse oximeter initialized")
		return nil
	}

	m.poxReady = false
	return fmt.Errorf("lifecycle: pulse oximeter bring-up failed after %d attempts: %w", poxInitAttempts, lastErr)
}

// InitRaw brings up the raw optical path, forcing the pulse-ox path down
// first. Single attempt.
func (m *Manager) InitRaw() error {
	if err := m.checkMemory("raw sensor init"); err != nil {
		return err
	}

	if err := m.Reset(); err != nil {
		return err
	}

	if err := m.primeRaw(); err != nil {
		m.rawReady = false
		return fmt.Errorf("lifecycle: raw sensor bring-up failed: %w", err)
	}

	m.rawReady = true
	m.log.Info("lifecycle: raw sensor initialized")
	return nil
}

// InitAccel brings up the accelerometer. Independent of the optical
// paths and of the memory guard.
func (m *Manager) InitAccel() error {
	if err := m.accel.Begin(); err != nil {
		return fmt.Errorf("lifecycle: accelerometer init: %w", err)
	}
	m.accelReady = true
	return nil
}

// primePulseOx restarts the driver, applies the LED current, and runs
// the discard reads that let the analog front-end settle.
func (m *Manager) primePulseOx() error {
	deadline := m.nowFn().Add(primeTimeout)

	m.pox.Shutdown()
	if err := m.pox.Begin(); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := m.pox.SetIRLedCurrent(LEDCurrent24MA); err != nil {
		return fmt.Errorf("LED current: %w", err)
	}

	for i := 0; i < primeDiscardReads; i++ {
		if err := m.pox.Update(); err != nil {
			return fmt.Errorf("discard read %d: %w", i+1, err)
		}
		m.sleep(primeReadSpacing)
		if m.nowFn().After(deadline) {
			return errors.New("priming timed out")
		}
	}

	// Readiness re-check after settling.
	if err := m.pox.Begin(); err != nil {
		return fmt.Errorf("post-prime readiness: %w", err)
	}
	return nil
}

func (m *Manager) primeRaw() error {
	deadline := m.nowFn().Add(primeTimeout)

	if err := m.raw.ResetFIFO(); err != nil {
		return fmt.Errorf("FIFO reset: %w", err)
	}
	m.raw.Shutdown()
	if err := m.raw.Begin(); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := m.raw.SetMode(OpticalModeSpO2HR); err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	if err := m.raw.SetLedsCurrent(LEDCurrent24MA, LEDCurrent24MA); err != nil {
		return fmt.Errorf("LED current: %w", err)
	}
	if err := m.raw.SetHighResEnabled(true); err != nil {
		return fmt.Errorf("high-res mode: %w", err)
	}

	for i := 0; i < primeDiscardReads; i++ {
		if err := m.raw.Update(); err != nil {
			return fmt.Errorf("discard read %d: %w", i+1, err)
		}
		m.raw.RawValues()
		m.sleep(primeReadSpacing)
		if m.nowFn().After(deadline) {
			return errors.New("priming timed out")
		}
	}

	if err := m.raw.Begin(); err != nil {
		return fmt.Errorf("post-prime readiness: %w", err)
	}
	return nil
}

func (m *Manager) checkMemory(operation string) error {
	free := m.freeMem()
	m.log.Debugf("lifecycle: %s, free memory %d bytes", operation, free)
	if m.memFloor > 0 && free > 0 && free < m.memFloor {
		m.log.Warnf("lifecycle: %s refused, free memory %d below floor %d", operation, free, m.memFloor)
		return fmt.Errorf("lifecycle: %s: %w", operation, ErrLowMemory)
	}
	return nil
}

// freeMemory reads free RAM from the kernel. A probe failure reports 0,
// which the guard treats as unknown rather than exhausted.
func freeMemory() uint64 {
	var info syscall.Sysinfo_t
	if err := syscall.Sysinfo(&info); err != nil {
		return 0
	}
	return uint64(info.Freeram) * uint64(info.Unit)
}
