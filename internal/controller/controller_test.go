package controller

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/wearable_biosensor/internal/quality"
	"github.com/relabs-tech/wearable_biosensor/internal/sensors"
	"github.com/relabs-tech/wearable_biosensor/internal/telemetry"
)

type stubPox struct {
	hr, spo2 float64
}

func (p *stubPox) Begin() error { return nil }
func (p *stubPox) Shutdown()                            {}
func (p *stubPox) SetIRLedCurrent(sensors.LEDCurrent) error { return nil }
func (p *stubPox) Update() error { return nil }
func (p *stubPox) HeartRate() float64 { return p.hr }
func (p *stubPox) SpO2() float64 { return p.spo2 }

type stubRaw struct {
	ir, red uint16
	temp    float64
}

func (r *stubRaw) Begin() error { return nil }
func (r *stubRaw) Shutdown()                                  {}
func (r *stubRaw) SetMode(sensors.OpticalMode) error { return nil }
func (r *stubRaw) SetLedsCurrent(_, _ sensors.LEDCurrent) error { return nil }
func (r *stubRaw) SetHighResEnabled(bool) error { return nil }
func (r *stubRaw) Update() error { return nil }
func (r *stubRaw) RawValues() (uint16, uint16) { return r.ir, r.red }
func (r *stubRaw) ResetFIFO() error { return nil }
func (r *stubRaw) StartTemperatureSampling() error { return nil }
func (r *stubRaw) TemperatureReady() (bool, error) { return true, nil }
func (r *stubRaw) RetrieveTemperature() (float64, error) { return r.temp, nil }

type stubAccel struct {
	ax, ay, az float64
}

func (a *stubAccel) Begin() error { return nil }
func (a *stubAccel) Acceleration() (float64, float64, float64, error) {
	return a.ax, a.ay, a.az, nil
}

type stubForce struct {
	v uint16
}

func (f *stubForce) Read() (uint16, error) { return f.v, nil }

// fakeRig mimics the lifecycle manager's arbitration: initializing one
// optical path tears the other down.
type fakeRig struct {
	pox   *stubPox
	raw   *stubRaw
	accel *stubAccel

	poxReady, rawReady, accelReady bool

	resets, poxInits, rawInits int
	poxInitErr, rawInitErr     error
}

func (r *fakeRig) Reset() error {
	r.resets++
	r.poxReady = false
	r.rawReady = false
	return nil
}

func (r *fakeRig) InitPulseOx() error {
	r.poxInits++
	r.rawReady = false
	if r.poxInitErr != nil {
		r.poxReady = false
		return r.poxInitErr
	}
	r.poxReady = true
	return nil
}

func (r *fakeRig) InitRaw() error {
	r.rawInits++
	r.poxReady = false
	if r.rawInitErr != nil {
		r.rawReady = false
		return r.rawInitErr
	}
	r.rawReady = true
	return nil
}

func (r *fakeRig) InitAccel() error {
	r.accelReady = true
	return nil
}

func (r *fakeRig) PulseOxReady() bool { return r.poxReady }
func (r *fakeRig) RawReady() bool { return r.rawReady }
func (r *fakeRig) AccelReady() bool { return r.accelReady }
func (r *fakeRig) PulseOx() sensors.PulseOximeter { return r.pox }
func (r *fakeRig) Raw() sensors.RawSensor { return r.raw }
func (r *fakeRig) Accel() sensors.Accelerometer { return r.accel }
func (r *fakeRig) FreeMemory() uint64 { return 48 << 20 }

type fakeEmitter struct {
	data     []any
	statuses []telemetry.Status
}

func (e *fakeEmitter) EmitData(record any) { e.data = append(e.data, record) }
func (e *fakeEmitter) EmitStatus(s telemetry.Status) { e.statuses = append(e.statuses, s) }

type fixture struct {
	ctrl  *Controller
	rig   *fakeRig
	force *stubForce
	emit  *fakeEmitter
	now   time.Time
}

func newFixture(params Params) *fixture {
	fx := &fixture{
		rig: &fakeRig{
			pox:   &stubPox{hr: 72, spo2: 97},
			raw:   &stubRaw{ir: 12000, red: 11000, temp: 36.5},
			accel: &stubAccel{az: 1},
		},
		force: &stubForce{v: 310},
		emit:  &fakeEmitter{},
		now:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	fx.ctrl = New(zap.NewNop().Sugar(), fx.rig, fx.force, fx.emit, params)
	fx.ctrl.now = func() time.Time { return fx.now }
	return fx
}

func (fx *fixture) advance(d time.Duration) { fx.now = fx.now.Add(d) }

// tick advances one reporting period and runs a tick, so every call can
// emit a record.
func (fx *fixture) tick() {
	fx.advance(fx.ctrl.reportPeriod)
	fx.ctrl.Tick()
}

func TestStartsIdleAndSilent(t *testing.T) {
	fx := newFixture(DefaultParams())

	assert.Equal(t, ModeIdle, fx.ctrl.Mode())
	assert.False(t, fx.ctrl.Connected())

	// No client, no emission of any kind.
	fx.ctrl.Tick()
	fx.tick()
	assert.Empty(t, fx.emit.data)
	assert.Empty(t, fx.emit.statuses)
}

func TestConnectEmitsStatus(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()

	require.Len(t, fx.emit.statuses, 1)
	s := fx.emit.statuses[0]
	assert.Equal(t, "ready", s.Status)
	assert.Equal(t, "IDLE", s.Mode)
	assert.Equal(t, uint64(48<<20), s.FreeMem)
}

func TestIdleRecord(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()
	fx.advance(3 * time.Second)
	fx.ctrl.Tick()

	require.Len(t, fx.emit.data, 1)
	rec, ok := fx.emit.data[0].(telemetry.IdleRecord)
	require.True(t, ok)
	assert.Equal(t, "idle", rec.Status)
	assert.Equal(t, int64(3000), rec.Uptime)
	assert.Equal(t, fx.now.UnixMilli(), rec.Timestamp)
}

func TestModeSwitchInitializesSensors(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()

	fx.ctrl.HandleCommand("MODE:HR_SPO2")
	assert.Equal(t, ModeHeartRateSpO2, fx.ctrl.Mode())
	assert.Equal(t, 1, fx.rig.poxInits)
	assert.True(t, fx.rig.accelReady)

	fx.ctrl.HandleCommand("MODE:TEMPERATURE")
	assert.Equal(t, ModeTemperature, fx.ctrl.Mode())
	assert.Equal(t, 1, fx.rig.rawInits)
	// Arbitration: the raw path displaced the pulse-ox path.
	assert.False(t, fx.rig.poxReady)
}

func TestRedundantModeSwitchSkipsReinit(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()

	fx.ctrl.HandleCommand("MODE:HR_SPO2")
	fx.ctrl.HandleCommand("MODE:HR_SPO2")
	assert.Equal(t, 1, fx.rig.poxInits)
	assert.Equal(t, ModeHeartRateSpO2, fx.ctrl.Mode())
}

func TestUnknownModeKeepsState(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()
	fx.ctrl.HandleCommand("MODE:HR_SPO2")

	emitted := len(fx.emit.statuses)
	fx.ctrl.HandleCommand("MODE:SLEEP_TRACKING")
	assert.Equal(t, ModeHeartRateSpO2, fx.ctrl.Mode())
	assert.Equal(t, 1, fx.rig.poxInits)
	// Still exactly one trailing status for the handled command.
	assert.Len(t, fx.emit.statuses, emitted+1)
}

func TestLowMemoryAbortsTransition(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()
	fx.ctrl.HandleCommand("MODE:TEMPERATURE")
	require.Equal(t, ModeTemperature, fx.ctrl.Mode())

	fx.rig.poxInitErr = fmt.Errorf("pulse oximeter init: %w", sensors.ErrLowMemory)
	fx.ctrl.HandleCommand("MODE:HR_SPO2")

	// The transition is refused outright: the old mode persists.
	assert.Equal(t, ModeTemperature, fx.ctrl.Mode())
}

func TestBringUpFailureCompletesTransition(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()

	fx.rig.poxInitErr = errors.New("sensor not responding")
	fx.ctrl.HandleCommand("MODE:HR_SPO2")

	// Unlike low memory, a bring-up failure still lands in the new mode;
	// the unready sensor is simply never read.
	assert.Equal(t, ModeHeartRateSpO2, fx.ctrl.Mode())
	assert.False(t, fx.rig.poxReady)

	fx.ctrl.Tick()
	require.Len(t, fx.emit.data, 1)
	rec := fx.emit.data[0].(telemetry.HRSpO2Record)
	assert.Equal(t, 0.0, rec.HeartRate)
}

func TestReportingCadence(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()
	fx.ctrl.HandleCommand("MODE:HR_SPO2")

	// The first tick after a mode switch reports immediately.
	fx.ctrl.Tick()
	assert.Len(t, fx.emit.data, 1)

	// Under half a period later: sampling only, no report.
	fx.advance(200 * time.Millisecond)
	fx.ctrl.Tick()
	assert.Len(t, fx.emit.data, 1)

	// Period elapsed: report.
	fx.advance(300 * time.Millisecond)
	fx.ctrl.Tick()
	assert.Len(t, fx.emit.data, 2)
}

func TestHRSpO2Record(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()
	fx.ctrl.HandleCommand("MODE:HR_SPO2")
	fx.ctrl.Tick()

	require.Len(t, fx.emit.data, 1)
	rec, ok := fx.emit.data[0].(telemetry.HRSpO2Record)
	require.True(t, ok)
	assert.Equal(t, 72.0, rec.HeartRate)
	assert.Equal(t, 97.0, rec.SpO2)
	assert.Equal(t, 1.0, rec.Az)
	assert.Equal(t, fx.now.UnixMilli(), rec.Timestamp)
}

func TestTemperatureRecord(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()
	fx.ctrl.HandleCommand("MODE:TEMPERATURE")
	fx.ctrl.Tick()

	require.Len(t, fx.emit.data, 1)
	rec, ok := fx.emit.data[0].(telemetry.TemperatureRecord)
	require.True(t, ok)
	assert.Equal(t, 36.5, rec.Temperature)
}

func TestRawDataRecord(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()
	fx.ctrl.HandleCommand("MODE:RAW_DATA")
	fx.ctrl.Tick()

	require.Len(t, fx.emit.data, 1)
	rec, ok := fx.emit.data[0].(telemetry.RawDataRecord)
	require.True(t, ok)
	assert.Equal(t, uint16(12000), rec.IR)
	assert.Equal(t, uint16(11000), rec.Red)
}

func TestQualityFirstSampleBypass(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()
	fx.ctrl.HandleCommand("MODE:QUALITY")

	// First evaluation has no previous tick to difference against: good
	// by convention.
	fx.ctrl.Tick()
	require.Len(t, fx.emit.data, 1)
	rec := fx.emit.data[0].(telemetry.QualityRecord)
	assert.Equal(t, quality.Good, rec.Quality)
	assert.Equal(t, 100.0, rec.QualityPercent)

	// Contact loss with motion: vitals collapse, accelerometer jumps.
	fx.rig.pox.hr = 0
	fx.rig.pox.spo2 = 0
	fx.rig.accel.ax, fx.rig.accel.ay, fx.rig.accel.az = 1.2, 2.4, 1.8
	fx.tick()

	require.Len(t, fx.emit.data, 2)
	rec = fx.emit.data[1].(telemetry.QualityRecord)
	assert.Equal(t, quality.Poor, rec.Quality)
	assert.Equal(t, 50.0, rec.QualityPercent)
}

func TestQualityCountersResetOnReentry(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()
	fx.ctrl.HandleCommand("MODE:QUALITY")
	fx.ctrl.Tick()
	fx.tick()
	fx.tick()

	fx.ctrl.HandleCommand("MODE:IDLE")
	fx.ctrl.HandleCommand("MODE:QUALITY")
	fx.ctrl.Tick()

	rec := fx.emit.data[len(fx.emit.data)-1].(telemetry.QualityRecord)
	// Fresh session: first-sample bypass and a 1/1 counter again.
	assert.Equal(t, quality.Good, rec.Quality)
	assert.Equal(t, 100.0, rec.QualityPercent)
}

func TestDisconnectReturnsToIdle(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()
	fx.ctrl.HandleCommand("MODE:QUALITY")
	fx.ctrl.Tick()

	resets := fx.rig.resets
	fx.ctrl.HandleDisconnect()

	assert.Equal(t, ModeIdle, fx.ctrl.Mode())
	assert.False(t, fx.ctrl.Connected())
	assert.Equal(t, resets+1, fx.rig.resets)

	// Nothing is emitted into a dead session.
	emitted := len(fx.emit.data)
	fx.tick()
	assert.Len(t, fx.emit.data, emitted)
}

func TestDisconnectFromEveryMode(t *testing.T) {
	for _, name := range []string{"HR_SPO2", "TEMPERATURE", "FORCE_TEST", "DISTANCE_TEST", "QUALITY", "RAW_DATA"} {
		fx := newFixture(DefaultParams())
		fx.ctrl.HandleConnect()
		fx.ctrl.HandleCommand("MODE:" + name)
		fx.ctrl.HandleDisconnect()

		assert.Equal(t, ModeIdle, fx.ctrl.Mode(), "mode %s", name)
		assert.False(t, fx.rig.poxReady, "mode %s", name)
		assert.False(t, fx.rig.rawReady, "mode %s", name)
	}
}

func TestSwitchToIdleResetsSensors(t *testing.T) {
	fx := newFixture(DefaultParams())
	fx.ctrl.HandleConnect()
	fx.ctrl.HandleCommand("MODE:HR_SPO2")
	require.True(t, fx.rig.poxReady)

	fx.ctrl.HandleCommand("MODE:IDLE")
	assert.Equal(t, ModeIdle, fx.ctrl.Mode())
	assert.False(t, fx.rig.poxReady)
}
