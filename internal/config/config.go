// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration values.
type Config struct {
	MQTT struct {
		Broker           string `yaml:"broker"`
		ClientIDDevice   string `yaml:"client_id_device"`
		ClientIDConsole  string `yaml:"client_id_console"`
		ClientIDWeb      string `yaml:"client_id_web"`
		ClientIDRecorder string `yaml:"client_id_recorder"`
		ClientIDDisplay  string `yaml:"client_id_display"`
		ClientIDSerial   string `yaml:"client_id_serial"`

		TopicControl string `yaml:"topic_control"`
		TopicData    string `yaml:"topic_data"`
		TopicStatus  string `yaml:"topic_status"`
		TopicClient  string `yaml:"topic_client"`
	} `yaml:"mqtt"`

	I2C struct {
		Bus string `yaml:"bus"`
	} `yaml:"i2c"`

	ADC struct {
		Address      uint16 `yaml:"address"`
		ChannelX     int    `yaml:"channel_x"`
		ChannelY     int    `yaml:"channel_y"`
		ChannelZ     int    `yaml:"channel_z"`
		ChannelForce int    `yaml:"channel_force"`
	} `yaml:"adc"`

	Controller struct {
		PollIntervalMS    int    `yaml:"poll_interval_ms"`
		ReportPeriodMS    int    `yaml:"report_period_ms"`
		MemoryFloorBytes  uint64 `yaml:"memory_floor_bytes"`
		ForceCollectionMS int    `yaml:"force_collection_ms"`
		TempSamplingMS    int    `yaml:"temp_sampling_ms"`
		DistanceBatchSize uint32 `yaml:"distance_batch_size"`
	} `yaml:"controller"`

	Web struct {
		Addr string `yaml:"addr"`
	} `yaml:"web"`

	Influx struct {
		URL    string `yaml:"url"`
		Token  string `yaml:"token"`
		Org    string `yaml:"org"`
		Bucket string `yaml:"bucket"`
	} `yaml:"influx"`

	Display struct {
		UpdateIntervalMS int `yaml:"update_interval_ms"`
	} `yaml:"display"`

	Serial struct {
		Port     string `yaml:"port"`
		BaudRate uint   `yaml:"baud_rate"`
	} `yaml:"serial"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Package-level unexported variables for the config singleton. External
// code must use InitGlobal() to set and Get() to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the YAML configuration file and returns a Config struct
// with defaults applied and the result validated.
func Load(configPath string) (*Config, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientIDDevice == "" {
		c.MQTT.ClientIDDevice = "biosensor-device"
	}
	if c.MQTT.ClientIDConsole == "" {
		c.MQTT.ClientIDConsole = "biosensor-console"
	}
	if c.MQTT.ClientIDWeb == "" {
		c.MQTT.ClientIDWeb = "biosensor-web"
	}
	if c.MQTT.ClientIDRecorder == "" {
		c.MQTT.ClientIDRecorder = "biosensor-recorder"
	}
	if c.MQTT.ClientIDDisplay == "" {
		c.MQTT.ClientIDDisplay = "biosensor-display"
	}
	if c.MQTT.ClientIDSerial == "" {
		c.MQTT.ClientIDSerial = "biosensor-serial"
	}
	if c.MQTT.TopicControl == "" {
		c.MQTT.TopicControl = "biosensor/control"
	}
	if c.MQTT.TopicData == "" {
		c.MQTT.TopicData = "biosensor/data"
	}
	if c.MQTT.TopicStatus == "" {
		c.MQTT.TopicStatus = "biosensor/status"
	}
	if c.MQTT.TopicClient == "" {
		c.MQTT.TopicClient = "biosensor/client"
	}

	if c.ADC.Address == 0 {
		c.ADC.Address = 0x48
	}
	if c.ADC.ChannelX == 0 && c.ADC.ChannelY == 0 && c.ADC.ChannelZ == 0 && c.ADC.ChannelForce == 0 {
		c.ADC.ChannelY = 1
		c.ADC.ChannelZ = 2
		c.ADC.ChannelForce = 3
	}

	if c.Controller.PollIntervalMS == 0 {
		c.Controller.PollIntervalMS = 20
	}
	if c.Controller.ReportPeriodMS == 0 {
		c.Controller.ReportPeriodMS = 500
	}
	if c.Controller.MemoryFloorBytes == 0 {
		c.Controller.MemoryFloorBytes = 16 << 20
	}
	if c.Controller.ForceCollectionMS == 0 {
		c.Controller.ForceCollectionMS = 10000
	}
	if c.Controller.TempSamplingMS == 0 {
		c.Controller.TempSamplingMS = 1000
	}
	if c.Controller.DistanceBatchSize == 0 {
		c.Controller.DistanceBatchSize = 10
	}

	if c.Web.Addr == "" {
		c.Web.Addr = ":8080"
	}
	if c.Display.UpdateIntervalMS == 0 {
		c.Display.UpdateIntervalMS = 500
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = 115200
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// validate checks that all required fields are consistent.
func (c *Config) validate() error {
	if c.Controller.PollIntervalMS <= 0 {
		return fmt.Errorf("controller.poll_interval_ms must be positive")
	}
	if c.Controller.ReportPeriodMS < c.Controller.PollIntervalMS {
		return fmt.Errorf("controller.report_period_ms must be >= poll_interval_ms")
	}

	claimed := map[int]string{}
	for name, ch := range map[string]int{
		"adc.channel_x":     c.ADC.ChannelX,
		"adc.channel_y":     c.ADC.ChannelY,
		"adc.channel_z":     c.ADC.ChannelZ,
		"adc.channel_force": c.ADC.ChannelForce,
	} {
		if ch < 0 || ch > 3 {
			return fmt.Errorf("%s must be 0-3, got %d", name, ch)
		}
		if other, dup := claimed[ch]; dup {
			return fmt.Errorf("%s and %s share ADC channel %d", name, other, ch)
		}
		claimed[ch] = name
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Uses
// sync.Once so loading only runs once even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be
// called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
