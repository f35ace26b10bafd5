package sensors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBus struct {
	reinits    int
	softResets int
	reinitErr  error
}

func (b *fakeBus) Reinit() error {
	b.reinits++
	return b.reinitErr
}

func (b *fakeBus) SoftResetOptical() error {
	b.softResets++
	return nil
}

type fakePulseOx struct {
	begins    int
	shutdowns int
	updates   int
	beginErr  error
	updateErr error
}

func (p *fakePulseOx) Begin() error { p.begins++; return p.beginErr }
func (p *fakePulseOx) Shutdown() { p.shutdowns++ }
func (p *fakePulseOx) SetIRLedCurrent(LEDCurrent) error { return nil }
func (p *fakePulseOx) Update() error { p.updates++; return p.updateErr }
func (p *fakePulseOx) HeartRate() float64 { return 72 }
func (p *fakePulseOx) SpO2() float64 { return 97 }

type fakeRaw struct {
	begins    int
	shutdowns int
	updates   int
	beginErr  error
}

func (r *fakeRaw) Begin() error { r.begins++; return r.beginErr }
func (r *fakeRaw) Shutdown() { r.shutdowns++ }
func (r *fakeRaw) SetMode(OpticalMode) error { return nil }
func (r *fakeRaw) SetLedsCurrent(_, _ LEDCurrent) error { return nil }
func (r *fakeRaw) SetHighResEnabled(bool) error { return nil }
func (r *fakeRaw) Update() error { r.updates++; return nil }
func (r *fakeRaw) RawValues() (uint16, uint16) { return 12000, 11000 }
func (r *fakeRaw) ResetFIFO() error { return nil }
func (r *fakeRaw) StartTemperatureSampling() error { return nil }
func (r *fakeRaw) TemperatureReady() (bool, error) { return true, nil }
func (r *fakeRaw) RetrieveTemperature() (float64, error) { return 36.5, nil }

type fakeAccel struct {
	beginErr error
}

func (a *fakeAccel) Begin() error { return a.beginErr }
func (a *fakeAccel) Acceleration() (float64, float64, float64, error) {
	return 0, 0, 1, nil
}

// testManager builds a manager over fakes with a fake clock: sleeps
// advance the clock instead of blocking.
func testManager(bus *fakeBus, pox *fakePulseOx, raw *fakeRaw, memFloor uint64) *Manager {
	m := NewManager(zap.NewNop().Sugar(), bus, pox, raw, &fakeAccel{}, memFloor)
	now := time.Unix(0, 0)
	m.nowFn = func() time.Time { return now }
	m.sleep = func(d time.Duration) { now = now.Add(d) }
	m.freeMem = func() uint64 { return 64 << 20 }
	return m
}

func TestInitPulseOx(t *testing.T) {
	bus := &fakeBus{}
	pox := &fakePulseOx{}
	m := testManager(bus, pox, &fakeRaw{}, 0)

	require.NoError(t, m.InitPulseOx())
	assert.True(t, m.PulseOxReady())
	assert.False(t, m.RawReady())
	assert.Equal(t, 1, bus.reinits)
	assert.Equal(t, 1, bus.softResets)
	// Ten discard reads during priming.
	assert.Equal(t, primeDiscardReads, pox.updates)
	// Begin before the discard reads and again as the readiness re-check.
	assert.Equal(t, 2, pox.begins)
}

func TestInitPulseOxRetries(t *testing.T) {
	bus := &fakeBus{}
	pox := &fakePulseOx{beginErr: errors.New("nack")}
	m := testManager(bus, pox, &fakeRaw{}, 0)

	err := m.InitPulseOx()
	require.Error(t, err)
	assert.False(t, m.PulseOxReady())
	// Full reset plus prime on every one of the three attempts.
	assert.Equal(t, poxInitAttempts, bus.reinits)
	assert.Equal(t, poxInitAttempts, pox.begins)
}

func TestInitRawSingleAttempt(t *testing.T) {
	bus := &fakeBus{}
	raw := &fakeRaw{beginErr: errors.New("nack")}
	m := testManager(bus, &fakePulseOx{}, raw, 0)

	err := m.InitRaw()
	require.Error(t, err)
	assert.False(t, m.RawReady())
	// The raw path does not retry.
	assert.Equal(t, 1, bus.reinits)
	assert.Equal(t, 1, raw.begins)
}

func TestMutualExclusion(t *testing.T) {
	bus := &fakeBus{}
	pox := &fakePulseOx{}
	raw := &fakeRaw{}
	m := testManager(bus, pox, raw, 0)

	require.NoError(t, m.InitPulseOx())
	require.True(t, m.PulseOxReady())

	// Bringing up the raw path forces the pulse-ox path down first.
	require.NoError(t, m.InitRaw())
	assert.True(t, m.RawReady())
	assert.False(t, m.PulseOxReady())
	assert.Equal(t, 2, pox.shutdowns) // one from priming, one from the reset

	// And back again.
	require.NoError(t, m.InitPulseOx())
	assert.True(t, m.PulseOxReady())
	assert.False(t, m.RawReady())
}

func TestMemoryFloorRefusesInit(t *testing.T) {
	bus := &fakeBus{}
	m := testManager(bus, &fakePulseOx{}, &fakeRaw{}, 32<<20)
	m.freeMem = func() uint64 { return 8 << 20 }

	err := m.InitPulseOx()
	require.ErrorIs(t, err, ErrLowMemory)
	assert.False(t, m.PulseOxReady())
	// Refused before any bus traffic.
	assert.Equal(t, 0, bus.reinits)

	err = m.InitRaw()
	require.ErrorIs(t, err, ErrLowMemory)
	assert.Equal(t, 0, bus.reinits)
}

func TestMemoryFloorUnknownReadingPasses(t *testing.T) {
	// A failed probe reports 0 free bytes, which means unknown, not
	// exhausted. Init must proceed.
	m := testManager(&fakeBus{}, &fakePulseOx{}, &fakeRaw{}, 32<<20)
	m.freeMem = func() uint64 { return 0 }

	require.NoError(t, m.InitPulseOx())
	assert.True(t, m.PulseOxReady())
}

func TestPrimingTimeout(t *testing.T) {
	bus := &fakeBus{}
	pox := &fakePulseOx{}
	m := testManager(bus, pox, &fakeRaw{}, 0)
	// Make every discard-read spacing burn most of the priming budget.
	base := m.sleep
	m.sleep = func(d time.Duration) {
		if d == primeReadSpacing {
			d = primeTimeout
		}
		base(d)
	}

	err := m.InitPulseOx()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.False(t, m.PulseOxReady())
}

func TestResetIdempotent(t *testing.T) {
	bus := &fakeBus{}
	pox := &fakePulseOx{}
	m := testManager(bus, pox, &fakeRaw{}, 0)

	require.NoError(t, m.InitPulseOx())
	require.NoError(t, m.Reset())
	assert.False(t, m.PulseOxReady())

	shutdowns := pox.shutdowns
	// A second reset with nothing active touches no driver.
	require.NoError(t, m.Reset())
	assert.Equal(t, shutdowns, pox.shutdowns)
	assert.Equal(t, 3, bus.reinits)
}

func TestResetBusFailure(t *testing.T) {
	bus := &fakeBus{reinitErr: errors.New("EIO")}
	m := testManager(bus, &fakePulseOx{}, &fakeRaw{}, 0)

	err := m.Reset()
	require.Error(t, err)
	assert.Equal(t, 0, bus.softResets)
}

func TestInitAccel(t *testing.T) {
	m := testManager(&fakeBus{}, &fakePulseOx{}, &fakeRaw{}, 0)
	require.NoError(t, m.InitAccel())
	assert.True(t, m.AccelReady())

	failing := NewManager(zap.NewNop().Sugar(), &fakeBus{}, &fakePulseOx{}, &fakeRaw{},
		&fakeAccel{beginErr: errors.New("no adc")}, 0)
	require.Error(t, failing.InitAccel())
	assert.False(t, failing.AccelReady())
}
