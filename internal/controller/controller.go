// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package controller

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/wearable_biosensor/internal/quality"
	"github.com/relabs-tech/wearable_biosensor/internal/sensors"
	"github.com/relabs-tech/wearable_biosensor/internal/telemetry"
)

// SensorRig is the controller's view of the lifecycle manager.
// *sensors.Manager satisfies it; tests use fakes.
type SensorRig interface {
	Reset() error
	InitPulseOx() error
	InitRaw() error
	InitAccel() error
	PulseOxReady() bool
	RawReady() bool
	AccelReady() bool
	PulseOx() sensors.PulseOximeter
	Raw() sensors.RawSensor
	Accel() sensors.Accelerometer
	FreeMemory() uint64
}

// Emitter notifies records on the data and status channels. Both calls
// are best-effort: the controller never blocks on the transport.
type Emitter interface {
	EmitData(record any)
	EmitStatus(status telemetry.Status)
}

// Params carries the tunable cadences of the controller.
type Params struct {
	ReportPeriod              time.Duration
	ForceCollectionDuration   time.Duration
	TemperatureSamplingPeriod time.Duration
	DistanceBatchSize         uint32
}

// DefaultParams matches the shipped device configuration.
func DefaultParams() Params {
	return Params{
		ReportPeriod:              defaultReportPeriod,
		ForceCollectionDuration:   10 * time.Second,
		TemperatureSamplingPeriod: time.Second,
		DistanceBatchSize:         10,
	}
}

// Controller is the single owner of all mode state. Every method must be
// called from one goroutine: the device loop applies commands, connect
// and disconnect events, and ticks strictly in sequence.
type Controller struct {
	log     *zap.SugaredLogger
	rig     SensorRig
	force   sensors.ForceSensor
	emitter Emitter
	params  Params

	mode         Mode
	reportPeriod time.Duration
	lastReport   time.Time
	connected    bool
	startedAt    time.Time

	sample telemetry.Sample

	forceCtx forceTestContext
	distCtx  distanceTestContext
	tempCtx  temperatureContext
	qualCtx  qualityContext

	now func() time.Time
}

// New builds a controller in Idle mode. The force sensor may be nil on
// rigs without the FSR channel.
func New(log *zap.SugaredLogger, rig SensorRig, force sensors.ForceSensor, emitter Emitter, params Params) *Controller {
	c := &Controller{
		log:          log,
		rig:          rig,
		force:        force,
		emitter:      emitter,
		params:       params,
		mode:         ModeIdle,
		reportPeriod: params.ReportPeriod,
		now:          time.Now,
	}
	c.startedAt = c.now()
	c.forceCtx.duration = params.ForceCollectionDuration
	c.tempCtx.period = params.TemperatureSamplingPeriod
	c.distCtx.batchSize = params.DistanceBatchSize
	c.resetContexts()
	return c
}

// Mode returns the active operating mode.
func (c *Controller) Mode() Mode { return c.mode }

// Connected reports whether a client session is live.
func (c *Controller) Connected() bool { return c.connected }

// HandleConnect marks the client session live and pushes an initial
// status record.
func (c *Controller) HandleConnect() {
	c.log.Info("client connected")
	c.connected = true
	c.emitStatus()
}

// HandleDisconnect tears the session down. Equivalent to an explicit
// MODE:IDLE plus a full sensor reset: no sensor configuration survives a
// lost session.
func (c *Controller) HandleDisconnect() {
	c.log.Info("client disconnected, returning to idle")
	c.connected = false

	if err := c.rig.Reset(); err != nil {
		c.log.Warnf("disconnect reset: %v", err)
	}

	c.mode = ModeIdle
	c.reportPeriod = c.params.ReportPeriod
	c.lastReport = time.Time{}
	c.resetContexts()
}

// Tick runs one pass of the sampling loop: read the active sensors, and
// if the reporting period elapsed, build and emit one record.
func (c *Controller) Tick() {
	now := c.now()
	c.readSensors(now)

	if c.lastReport.IsZero() || now.Sub(c.lastReport) >= c.reportPeriod {
		c.report(now)
		c.lastReport = now
	}
}

// switchMode validates the requested transition, arbitrates the sensor
// set, and resets the entered mode's context. Unknown names and
// redundant requests are no-ops.
func (c *Controller) switchMode(name string) {
	newMode, ok := ParseMode(name)
	if !ok {
		c.log.Warnf("unknown mode %q requested, staying in %s", name, c.mode)
		return
	}
	if newMode == c.mode {
		c.log.Infof("already in %s mode", name)
		return
	}

	c.log.Infof("switching to %s mode", name)

	req := modeRequirements[newMode]
	if newMode == ModeIdle {
		if err := c.rig.Reset(); err != nil {
			c.log.Warnf("idle reset: %v", err)
		}
	} else {
		var initErr error
		if req.pulseOx {
			initErr = c.rig.InitPulseOx()
		} else if req.rawSensor {
			initErr = c.rig.InitRaw()
		}
		if errors.Is(initErr, sensors.ErrLowMemory) {
			// Resource-exhaustion aborts the whole transition: the old
			// mode persists.
			c.log.Warnf("mode switch to %s aborted: %v", name, initErr)
			return
		}
		if initErr != nil {
			// Bring-up failure does not block the transition; the ready
			// flag stays false and reads are skipped.
			c.log.Warnf("sensor bring-up for %s: %v", name, initErr)
		}
		if req.accel {
			if err := c.rig.InitAccel(); err != nil {
				c.log.Warnf("accelerometer bring-up for %s: %v", name, err)
			}
		}
	}

	c.mode = newMode
	c.reportPeriod = c.params.ReportPeriod
	c.lastReport = time.Time{}
	c.resetContext(newMode)

	c.log.Infof("mode switch to %s complete", name)
}

func (c *Controller) resetContext(m Mode) {
	switch m {
	case ModeForceTest:
		c.forceCtx.reset()
	case ModeDistanceTest:
		c.distCtx.reset()
	case ModeTemperature:
		c.tempCtx.reset()
	case ModeQuality:
		c.qualCtx.reset()
	}
}

func (c *Controller) resetContexts() {
	c.forceCtx.reset()
	c.distCtx.reset()
	c.tempCtx.reset()
	c.qualCtx.reset()
}

// readSensors refreshes the shared sample from every initialized driver
// relevant to the current mode.
func (c *Controller) readSensors(now time.Time) {
	if c.rig.AccelReady() {
		ax, ay, az, err := c.rig.Accel().Acceleration()
		if err != nil {
			c.log.Warnf("accelerometer read: %v", err)
		} else {
			c.sample.Ax, c.sample.Ay, c.sample.Az = ax, ay, az
		}
	}

	if c.rig.PulseOxReady() && (c.mode == ModeHeartRateSpO2 || c.mode == ModeQuality) {
		pox := c.rig.PulseOx()
		if err := pox.Update(); err != nil {
			c.log.Warnf("pulse oximeter update: %v", err)
		} else {
			c.sample.HeartRate = pox.HeartRate()
			c.sample.SpO2 = pox.SpO2()
		}
	}

	if c.rig.RawReady() {
		raw := c.rig.Raw()
		if err := raw.Update(); err != nil {
			c.log.Warnf("raw sensor update: %v", err)
		} else {
			c.sample.IR, c.sample.Red = raw.RawValues()
		}

		if c.mode == ModeTemperature {
			c.stepTemperature(now, raw)
		}
	}

	if c.mode == ModeForceTest && c.force != nil {
		v, err := c.force.Read()
		if err != nil {
			c.log.Warnf("force read: %v", err)
		} else {
			c.sample.Force = v
		}
	}
}

// stepTemperature drives the duty-cycled conversion state machine. The
// conversion cadence is independent of the reporting cadence.
func (c *Controller) stepTemperature(now time.Time, raw sensors.RawSensor) {
	t := &c.tempCtx

	if !t.sampling && now.Sub(t.lastSample) > t.period {
		if err := raw.StartTemperatureSampling(); err != nil {
			c.log.Warnf("temperature sampling start: %v", err)
			return
		}
		t.sampling = true
		t.lastSample = now
	}

	if t.sampling {
		ready, err := raw.TemperatureReady()
		if err != nil {
			c.log.Warnf("temperature ready poll: %v", err)
			return
		}
		if !ready {
			return
		}
		v, err := raw.RetrieveTemperature()
		if err != nil {
			c.log.Warnf("temperature retrieve: %v", err)
			return
		}
		c.sample.Temperature = v
		t.sampling = false
	}
}

// report builds the mode's record and notifies it. Emission is skipped
// entirely while no client is connected.
func (c *Controller) report(now time.Time) {
	if !c.connected {
		return
	}
	record := c.buildRecord(now)
	if record == nil {
		return
	}
	c.emitter.EmitData(record)
}

func (c *Controller) buildRecord(now time.Time) any {
	ts := now.UnixMilli()

	switch c.mode {
	case ModeHeartRateSpO2:
		return telemetry.HRSpO2Record{
			HeartRate: c.sample.HeartRate,
			SpO2:      c.sample.SpO2,
			Ax:        c.sample.Ax,
			Ay:        c.sample.Ay,
			Az:        c.sample.Az,
			Timestamp: ts,
		}

	case ModeTemperature:
		return telemetry.TemperatureRecord{
			Temperature: c.sample.Temperature,
			Timestamp:   ts,
		}

	case ModeForceTest:
		f := &c.forceCtx
		if f.collecting && now.Sub(f.startedAt) >= f.duration {
			// Auto-expiry: suppress this tick's record so a stale
			// "still collecting" row never goes out.
			f.collecting = false
			f.label = waitingLabel
			c.log.Info("force collection finished")
			return nil
		}
		return telemetry.ForceRecord{
			IR:         c.sample.IR,
			Red:        c.sample.Red,
			Force:      c.sample.Force,
			Label:      f.label,
			Collecting: f.collecting,
			Timestamp:  ts,
		}

	case ModeDistanceTest:
		d := &c.distCtx
		if d.collecting {
			d.irSum += uint64(c.sample.IR)
			d.redSum += uint64(c.sample.Red)
			d.samples++

			// Sums and count run across the whole collection, so the
			// batch average is cumulative, not per batch.
			if d.batchSize > 0 && d.samples%d.batchSize == 0 {
				return telemetry.DistanceAverageRecord{
					Type:       "average",
					LED:        d.led,
					DistanceMM: d.distanceMM,
					AvgIR:      float64(d.irSum) / float64(d.samples),
					AvgRed:     float64(d.redSum) / float64(d.samples),
					Samples:    d.samples,
					Timestamp:  ts,
				}
			}
		}
		return telemetry.DistanceRecord{
			IR:         c.sample.IR,
			Red:        c.sample.Red,
			LED:        d.led,
			DistanceMM: d.distanceMM,
			Collecting: d.collecting,
			Timestamp:  ts,
		}

	case ModeQuality:
		q := &c.qualCtx
		mag := quality.AccelMagnitude(c.sample.Ax, c.sample.Ay, c.sample.Az)

		var label int
		if !q.hasPrevious {
			// First evaluation after mode entry: seed the previous
			// sample and declare good by convention.
			q.hasPrevious = true
			label = quality.Good
		} else {
			label = quality.Assess(
				c.sample.HeartRate, c.sample.SpO2,
				c.sample.Ax, c.sample.Ay, c.sample.Az,
				q.prevHeartRate, q.prevSpO2, q.prevAccelMag,
			)
		}
		q.prevHeartRate = c.sample.HeartRate
		q.prevSpO2 = c.sample.SpO2
		q.prevAccelMag = mag

		q.total++
		if label == quality.Good {
			q.good++
		}

		return telemetry.QualityRecord{
			HeartRate:      c.sample.HeartRate,
			SpO2:           c.sample.SpO2,
			Ax:             c.sample.Ax,
			Ay:             c.sample.Ay,
			Az:             c.sample.Az,
			Quality:        label,
			QualityPercent: float64(q.good) / float64(q.total) * 100,
			AccelMag:       mag,
			Timestamp:      ts,
		}

	case ModeRawData:
		return telemetry.RawDataRecord{
			HeartRate: c.sample.HeartRate,
			SpO2:      c.sample.SpO2,
			IR:        c.sample.IR,
			Red:       c.sample.Red,
			Ax:        c.sample.Ax,
			Ay:        c.sample.Ay,
			Az:        c.sample.Az,
			Timestamp: ts,
		}

	default:
		return telemetry.IdleRecord{
			Status:    "idle",
			Uptime:    now.Sub(c.startedAt).Milliseconds(),
			FreeMem:   c.rig.FreeMemory(),
			Timestamp: ts,
		}
	}
}

// emitStatus pushes one status record if a client is connected.
func (c *Controller) emitStatus() {
	if !c.connected {
		return
	}
	c.emitter.EmitStatus(telemetry.Status{
		Status:  "ready",
		Mode:    c.mode.String(),
		Uptime:  c.now().Sub(c.startedAt).Milliseconds(),
		FreeMem: c.rig.FreeMemory(),
	})
}
