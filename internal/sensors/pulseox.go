// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"
)

const (
	// Contact threshold on the raw IR count; below it the finger is off
	// the sensor and HR/SpO2 hold their last valid values.
	poxContactThreshold = 1000

	// Beat-to-beat spans outside [238 ms, 6 s] map to rates outside
	// 10-250 bpm and are discarded as noise.
	poxMinBeatSpan = 238 * time.Millisecond
	poxMaxBeatSpan = 6 * time.Second

	poxDCAlpha   = 0.95
	poxMeanAlpha = 0.8

	poxMinValidHR   = 30
	poxMaxValidHR   = 220
	poxMinValidSpO2 = 70
	poxMaxValidSpO2 = 100
)

// PulseOx estimates heart rate and SpO2 from the optical front-end. It
// is the processed counterpart of the raw MAX30100 path; the two are
// never active at the same time.
type PulseOx struct {
	raw *MAX30100
	now func() time.Time

	irDC, redDC   dcFilter
	irACDC, redAC acdcTracker

	beatHigh bool
	lastBeat time.Time
	hrMean   float64
	spo2Mean float64

	heartRate float64
	spo2      float64
}

// NewPulseOx wraps the shared optical driver with HR/SpO2 estimation.
func NewPulseOx(raw *MAX30100) *PulseOx {
	return &PulseOx{raw: raw, now: time.Now}
}

// Begin configures the front-end for SpO2+HR acquisition and clears the
// estimator state.
func (p *PulseOx) Begin() error {
	if err := p.raw.Begin(); err != nil {
		return err
	}
	if err := p.raw.SetMode(OpticalModeSpO2HR); err != nil {
		return err
	}
	if err := p.raw.SetHighResEnabled(true); err != nil {
		return err
	}
	p.irDC = dcFilter{}
	p.redDC = dcFilter{}
	p.irACDC = acdcTracker{}
	p.redAC = acdcTracker{}
	p.beatHigh = false
	p.lastBeat = time.Time{}
	return nil
}

func (p *PulseOx) Shutdown() { p.raw.Shutdown() }

func (p *PulseOx) SetIRLedCurrent(c LEDCurrent) error {
	return p.raw.SetLedsCurrent(c, c)
}

// Update drains new FIFO samples and advances the beat detector and the
// AC/DC trackers.
func (p *PulseOx) Update() error {
	if err := p.raw.Update(); err != nil {
		return err
	}
	for _, s := range p.raw.TakeSamples() {
		p.process(s)
	}
	return nil
}

// HeartRate returns the last validated heart rate in bpm, 0 before the
// first beat.
func (p *PulseOx) HeartRate() float64 { return p.heartRate }

// SpO2 returns the last validated SpO2 percentage, 0 before the first
// estimate.
func (p *PulseOx) SpO2() float64 { return p.spo2 }

func (p *PulseOx) process(s OpticalSample) {
	if s.IR < poxContactThreshold {
		return
	}

	irAC := p.irDC.step(float64(s.IR))
	p.redDC.step(float64(s.Red))

	p.irACDC.step(float64(s.IR), irAC)
	p.redAC.step(float64(s.Red), p.redDC.last)

	p.detectBeat(irAC)
	p.updateSpO2()
}

// detectBeat looks for a rising zero crossing of the AC component and
// derives bpm from the span between crossings.
func (p *PulseOx) detectBeat(irAC float64) {
	if irAC <= 0 {
		p.beatHigh = false
		return
	}
	if p.beatHigh {
		return
	}
	p.beatHigh = true

	now := p.now()
	if p.lastBeat.IsZero() {
		p.lastBeat = now
		return
	}
	span := now.Sub(p.lastBeat)
	if span < poxMinBeatSpan || span > poxMaxBeatSpan {
		if span > poxMaxBeatSpan {
			p.lastBeat = now
		}
		return
	}
	p.lastBeat = now

	bpm := 60000 / float64(span.Milliseconds())
	if p.hrMean == 0 {
		p.hrMean = bpm
	}
	p.hrMean = poxMeanAlpha*p.hrMean + (1-poxMeanAlpha)*bpm

	if p.hrMean >= poxMinValidHR && p.hrMean <= poxMaxValidHR {
		p.heartRate = p.hrMean
	}
}

func (p *PulseOx) updateSpO2() {
	irRatio := p.irACDC.ratio()
	if irRatio == 0 {
		return
	}
	r := p.redAC.ratio() / irRatio

	// Empirical linear calibration of the R curve.
	spo2 := 104 - 17*r
	if spo2 <= 0 {
		return
	}
	if p.spo2Mean == 0 {
		p.spo2Mean = spo2
	}
	p.spo2Mean = poxMeanAlpha*p.spo2Mean + (1-poxMeanAlpha)*spo2

	if p.spo2Mean >= poxMinValidSpO2 && p.spo2Mean <= poxMaxValidSpO2 {
		p.spo2 = p.spo2Mean
	}
}

// dcFilter is a one-pole high-pass: step returns the AC residue and
// tracks the DC estimate in last.
type dcFilter struct {
	w    float64
	last float64
}

func (f *dcFilter) step(x float64) float64 {
	prev := f.w
	f.w = x + poxDCAlpha*prev
	f.last = f.w - prev
	return f.last
}

// acdcTracker keeps EWMA estimates of the DC level and the rectified AC
// swing of one LED channel.
type acdcTracker struct {
	dc float64
	ac float64
}

func (t *acdcTracker) step(raw, ac float64) {
	if t.dc == 0 {
		t.dc = raw
	}
	t.dc = poxMeanAlpha*t.dc + (1-poxMeanAlpha)*raw
	t.ac = poxMeanAlpha*t.ac + (1-poxMeanAlpha)*math.Abs(ac)
}

func (t *acdcTracker) ratio() float64 {
	if t.dc == 0 {
		return 0
	}
	return t.ac / t.dc
}
