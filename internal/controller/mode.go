// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package controller implements the mode state machine of the wearable:
// command interpretation, sensor lifecycle orchestration, the per-tick
// sampling loop, and per-mode record building.
package controller

import "time"

// Mode is the operating configuration of the device. Exactly one is
// active at a time; transitions happen only through commands (or the
// disconnect recovery path).
type Mode int

const (
	ModeIdle Mode = iota
	ModeHeartRateSpO2
	ModeTemperature
	ModeForceTest
	ModeDistanceTest
	ModeQuality
	ModeRawData
)

var modeNames = map[Mode]string{
	ModeIdle:          "IDLE",
	ModeHeartRateSpO2: "HR_SPO2",
	ModeTemperature:   "TEMPERATURE",
	ModeForceTest:     "FORCE_TEST",
	ModeDistanceTest:  "DISTANCE_TEST",
	ModeQuality:       "QUALITY",
	ModeRawData:       "RAW_DATA",
}

func (m Mode) String() string { return modeNames[m] }

// ParseMode maps a protocol mode name to its Mode. Case-sensitive.
func ParseMode(name string) (Mode, bool) {
	for m, n := range modeNames {
		if n == name {
			return m, true
		}
	}
	return ModeIdle, false
}

// requirements lists which drivers a mode needs. The two optical paths
// are mutually exclusive by construction: no mode requires both.
type requirements struct {
	pulseOx   bool
	rawSensor bool
	accel     bool
}

var modeRequirements = map[Mode]requirements{
	ModeIdle:          {},
	ModeHeartRateSpO2: {pulseOx: true, accel: true},
	ModeTemperature:   {rawSensor: true},
	ModeForceTest:     {rawSensor: true},
	ModeDistanceTest:  {rawSensor: true},
	ModeQuality:       {pulseOx: true, accel: true},
	ModeRawData:       {rawSensor: true, accel: true},
}

// Every mode reports at 2 Hz.
const defaultReportPeriod = 500 * time.Millisecond
