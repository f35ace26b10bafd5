// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package quality scores a rolling two-sample window of vitals against a
// fixed quantized linear model and labels the data good or poor.
package quality

import "math"

// Classification labels.
const (
	Poor = 0
	Good = 1
)

// AccelMagnitude returns the magnitude of the acceleration vector.
func AccelMagnitude(ax, ay, az float64) float64 {
	return math.Sqrt(ax*ax + ay*ay + az*az)
}

// Predict scores the six derived features and returns Good when the
// score clears the decision threshold. Standardization and scoring run
// entirely in scaled-integer arithmetic.
func Predict(features [numFeatures]float64) int {
	score := int32(modelIntercept)
	for i, f := range features {
		standardized := (int32(f*scaleFactor) - int32(scalerMean[i])) * scaleFactor / int32(scalerScale[i])
		score += standardized * int32(modelCoefficients[i]) / scaleFactor
	}
	if score > 0 {
		return Good
	}
	return Poor
}

// Assess derives the feature vector from the current sample and the
// previous tick's values, then classifies it. The caller is responsible
// for the first-sample policy: with no previous tick there is nothing to
// difference against, so Assess must not be called.
func Assess(hr, spo2, ax, ay, az, prevHR, prevSpO2, prevAccelMag float64) int {
	mag := AccelMagnitude(ax, ay, az)

	var features [numFeatures]float64
	features[featHeartRate] = hr
	features[featSpO2] = spo2
	features[featAccelMag] = mag
	features[featHRChange] = math.Abs(hr - prevHR)
	features[featSpO2Change] = math.Abs(spo2 - prevSpO2)
	features[featAccelChange] = math.Abs(mag - prevAccelMag)

	return Predict(features)
}
