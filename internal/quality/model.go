package quality

// Quantized sensor-quality model, exported from the training pipeline.
// All constants are scaled by 1000 and evaluated in integer arithmetic so
// the label is bit-exact on every platform.

const (
	numFeatures = 6
	scaleFactor = 1000
)

const (
	featHeartRate = iota
	featSpO2
	featAccelMag
	featHRChange
	featSpO2Change
	featAccelChange
)

var modelCoefficients = [numFeatures]int16{
	2759,  // heart rate
	3931,  // SpO2
	169,   // accel magnitude
	-1874, // heart rate change
	-2038, // SpO2 change
	-4785, // accel magnitude change
}

const modelIntercept int16 = 2335

var scalerMean = [numFeatures]int16{
	-1251,
	27550,
	992,
	2451,
	863,
	51,
}

var scalerScale = [numFeatures]int16{
	11711,
	17091,
	111,
	5410,
	8871,
	127,
}
