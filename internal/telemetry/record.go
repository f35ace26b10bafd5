// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry defines the wire records notified on the data and
// status channels. One record shape per operating mode.
package telemetry

// Sample holds the latest reading from every sensor on the rig. It is
// overwritten on each poll tick; record builders read from it.
type Sample struct {
	HeartRate   float64
	SpO2        float64
	Ax, Ay, Az  float64
	IR, Red     uint16
	Temperature float64
	Force       uint16
}

// HRSpO2Record is emitted in HR_SPO2 mode.
type HRSpO2Record struct {
	HeartRate float64 `json:"hr"`
	SpO2      float64 `json:"spo2"`
	Ax        float64 `json:"ax"`
	Ay        float64 `json:"ay"`
	Az        float64 `json:"az"`
	Timestamp int64   `json:"timestamp"`
}

// TemperatureRecord is emitted in TEMPERATURE mode.
type TemperatureRecord struct {
	Temperature float64 `json:"temperature"`
	Timestamp   int64   `json:"timestamp"`
}

// ForceRecord is emitted in FORCE_TEST mode.
type ForceRecord struct {
	IR         uint16 `json:"ir"`
	Red        uint16 `json:"red"`
	Force      uint16 `json:"fsr"`
	Label      string `json:"label"`
	Collecting bool   `json:"collecting"`
	Timestamp  int64  `json:"timestamp"`
}

// DistanceRecord is emitted in DISTANCE_TEST mode on non-batch ticks.
type DistanceRecord struct {
	IR         uint16 `json:"ir"`
	Red        uint16 `json:"red"`
	LED        string `json:"led"`
	DistanceMM int    `json:"distance_mm"`
	Collecting bool   `json:"collecting"`
	Timestamp  int64  `json:"timestamp"`
}

// DistanceAverageRecord replaces the raw record every batch of samples
// while a distance collection runs. The averages are cumulative over the
// whole collection, not per batch.
type DistanceAverageRecord struct {
	Type       string  `json:"type"`
	LED        string  `json:"led"`
	DistanceMM int     `json:"distance_mm"`
	AvgIR      float64 `json:"avg_ir"`
	AvgRed     float64 `json:"avg_red"`
	Samples    uint32  `json:"samples"`
	Timestamp  int64   `json:"timestamp"`
}

// QualityRecord is emitted in QUALITY mode.
type QualityRecord struct {
	HeartRate      float64 `json:"hr"`
	SpO2           float64 `json:"spo2"`
	Ax             float64 `json:"ax"`
	Ay             float64 `json:"ay"`
	Az             float64 `json:"az"`
	Quality        int     `json:"quality"`
	QualityPercent float64 `json:"quality_percent"`
	AccelMag       float64 `json:"accel_mag"`
	Timestamp      int64   `json:"timestamp"`
}

// RawDataRecord is emitted in RAW_DATA mode.
type RawDataRecord struct {
	HeartRate float64 `json:"hr"`
	SpO2      float64 `json:"spo2"`
	IR        uint16  `json:"ir"`
	Red       uint16  `json:"red"`
	Ax        float64 `json:"ax"`
	Ay        float64 `json:"ay"`
	Az        float64 `json:"az"`
	Timestamp int64   `json:"timestamp"`
}

// IdleRecord carries only liveness metadata.
type IdleRecord struct {
	Status    string `json:"status"`
	Uptime    int64  `json:"uptime"`
	FreeMem   uint64 `json:"free_mem"`
	Timestamp int64  `json:"timestamp"`
}

// Status is notified on the status channel after every handled command
// and on demand.
type Status struct {
	Status  string `json:"status"`
	Mode    string `json:"mode"`
	Uptime  int64  `json:"uptime"`
	FreeMem uint64 `json:"free_mem"`
}
