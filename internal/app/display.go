package app

import (
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/wearable_biosensor/internal/config"
	"github.com/relabs-tech/wearable_biosensor/internal/logger"
	"github.com/relabs-tech/wearable_biosensor/internal/telemetry"
)

// displayData holds the latest values shown on the OLED.
type displayData struct {
	mu sync.RWMutex

	status     telemetry.Status
	haveStatus bool

	heartRate      float64
	spo2           float64
	qualityPercent float64
	haveVitals     bool
}

// RunDisplay drives a 128x64 SSD1306 OLED showing the active mode, the
// latest vitals and the client connection state.
func RunDisplay() error {
	cfg := config.Get()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "biosensor-display")
	if err != nil {
		return err
	}
	defer log.Sync()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.I2C.Bus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Infof("display: initialized on bus %q", bus.String())

	if err := showSplash(dev); err != nil {
		log.Warnf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Infof("display: connected to MQTT broker at %s", cfg.MQTT.Broker)

	token := client.Subscribe(cfg.MQTT.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s telemetry.Status
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Warnf("display: status unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.status = s
		data.haveStatus = true
		data.mu.Unlock()
	})
	if token.Wait(); token.Error() != nil {
		return token.Error()
	}

	token = client.Subscribe(cfg.MQTT.TopicData, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var rec struct {
			HeartRate      *float64 `json:"hr"`
			SpO2           *float64 `json:"spo2"`
			QualityPercent *float64 `json:"quality_percent"`
		}
		if err := json.Unmarshal(msg.Payload(), &rec); err != nil {
			return
		}
		if rec.HeartRate == nil {
			return
		}
		data.mu.Lock()
		data.heartRate = *rec.HeartRate
		data.spo2 = *rec.SpO2
		if rec.QualityPercent != nil {
			data.qualityPercent = *rec.QualityPercent
		}
		data.haveVitals = true
		data.mu.Unlock()
	})
	if token.Wait(); token.Error() != nil {
		return token.Error()
	}
	log.Infof("display: subscribed to %s and %s", cfg.MQTT.TopicStatus, cfg.MQTT.TopicData)

	ticker := time.NewTicker(time.Duration(cfg.Display.UpdateIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	log.Info("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		snapshot := displayData{
			status:         data.status,
			haveStatus:     data.haveStatus,
			heartRate:      data.heartRate,
			spo2:           data.spo2,
			qualityPercent: data.qualityPercent,
			haveVitals:     data.haveVitals,
		}
		data.mu.RUnlock()

		if err := updateDisplay(dev, &snapshot); err != nil {
			log.Warnf("display: error updating display: %v", err)
		}
	}

	return nil
}

func newFrame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func updateDisplay(dev *ssd1306.Dev, data *displayData) error {
	img, drawer := newFrame()

	if !data.haveStatus {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Biosensor"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(data.status.Mode))

	if data.haveVitals {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte(fmt.Sprintf("HR:  %5.1f bpm", data.heartRate)))

		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte(fmt.Sprintf("SpO2:%5.1f %%", data.spo2)))

		drawer.Dot = fixed.P(0, 52)
		drawer.DrawBytes([]byte(fmt.Sprintf("Q: %5.1f %%", data.qualityPercent)))
	} else {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("No vitals yet"))

		drawer.Dot = fixed.P(0, 52)
		drawer.DrawBytes([]byte(fmt.Sprintf("mem %dK", data.status.FreeMem/1024)))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img, drawer := newFrame()

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Wearable"))

	drawer.Dot = fixed.P(10, 43)
	drawer.DrawBytes([]byte("Biosensor"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
