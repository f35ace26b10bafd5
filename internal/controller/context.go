package controller

import "time"

// Mode-scoped state. Each context is reset to defaults on every entry
// into its owning mode and is touched only while that mode is active.

const waitingLabel = "waiting"

type forceTestContext struct {
	label      string
	collecting bool
	startedAt  time.Time
	duration   time.Duration
}

func (c *forceTestContext) reset() {
	c.label = waitingLabel
	c.collecting = false
	c.startedAt = time.Time{}
}

type distanceTestContext struct {
	led        string
	distanceMM int
	collecting bool
	irSum      uint64
	redSum     uint64
	samples    uint32
	batchSize  uint32
}

func (c *distanceTestContext) reset() {
	c.led = "none"
	c.distanceMM = 0
	c.collecting = false
	c.irSum = 0
	c.redSum = 0
	c.samples = 0
}

type temperatureContext struct {
	sampling   bool
	lastSample time.Time
	period     time.Duration
}

func (c *temperatureContext) reset() {
	c.sampling = false
	c.lastSample = time.Time{}
}

type qualityContext struct {
	prevHeartRate float64
	prevSpO2      float64
	prevAccelMag  float64
	hasPrevious   bool
	total         uint32
	good          uint32
}

func (c *qualityContext) reset() {
	c.prevHeartRate = 0
	c.prevSpO2 = 0
	c.prevAccelMag = 0
	c.hasPrevious = false
	c.total = 0
	c.good = 0
}
