package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
)

// The analog half of the rig (ADXL335 axes and the FSR divider) hangs
// off one ADS1115, four channels total.

const (
	// ADXL335 transfer characteristics at 3.3 V supply.
	adxlZeroG       = 1.65  // volts at 0 g
	adxlSensitivity = 0.330 // volts per g

	adcReadRate = 128 * physic.Hertz
)

// AnalogRig owns the ADC pins for the accelerometer and force sensor.
type AnalogRig struct {
	x, y, z ads1x15.PinADC
	force   ads1x15.PinADC
}

// NewAnalogRig probes the ADS1115 and claims one pin per channel.
// Channel assignment comes from the config: three axes plus force.
func NewAnalogRig(bus i2c.Bus, addr uint16, chX, chY, chZ, chForce int) (*AnalogRig, error) {
	opts := ads1x15.DefaultOpts
	opts.I2cAddress = addr

	adc, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		return nil, fmt.Errorf("analog: ADS1115 init: %w", err)
	}

	pin := func(ch int) (ads1x15.PinADC, error) {
		return adc.PinForChannel(ads1x15.Channel(ch), 3300*physic.MilliVolt, adcReadRate, ads1x15.SaveEnergy)
	}

	rig := &AnalogRig{}
	if rig.x, err = pin(chX); err != nil {
		return nil, fmt.Errorf("analog: X channel: %w", err)
	}
	if rig.y, err = pin(chY); err != nil {
		return nil, fmt.Errorf("analog: Y channel: %w", err)
	}
	if rig.z, err = pin(chZ); err != nil {
		return nil, fmt.Errorf("analog: Z channel: %w", err)
	}
	if rig.force, err = pin(chForce); err != nil {
		return nil, fmt.Errorf("analog: force channel: %w", err)
	}
	return rig, nil
}

// Accelerometer returns the ADXL335 view of the rig.
func (r *AnalogRig) Accelerometer() Accelerometer { return &adxl335{rig: r} }

// Force returns the FSR view of the rig.
func (r *AnalogRig) Force() ForceSensor { return &fsr{pin: r.force} }

type adxl335 struct {
	rig *AnalogRig
}

// Begin is a no-op: the ADXL335 is a bare analog part with no failure
// path once the ADC pins are claimed.
func (a *adxl335) Begin() error { return nil }

func (a *adxl335) Acceleration() (ax, ay, az float64, err error) {
	ax, err = readAxis(a.rig.x)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("analog: accel X: %w", err)
	}
	ay, err = readAxis(a.rig.y)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("analog: accel Y: %w", err)
	}
	az, err = readAxis(a.rig.z)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("analog: accel Z: %w", err)
	}
	return ax, ay, az, nil
}

func readAxis(pin ads1x15.PinADC) (float64, error) {
	sample, err := pin.Read()
	if err != nil {
		return 0, err
	}
	volts := float64(sample.V) / float64(physic.Volt)
	return (volts - adxlZeroG) / adxlSensitivity, nil
}

type fsr struct {
	pin ads1x15.PinADC
}

func (f *fsr) Read() (uint16, error) {
	sample, err := f.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("analog: force read: %w", err)
	}
	raw := sample.Raw
	if raw < 0 {
		raw = 0
	}
	// 12-bit counts to match the dashboards fed by the firmware's ADC.
	return uint16(raw >> 4), nil
}
