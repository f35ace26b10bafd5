package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "biosensor/control", cfg.MQTT.TopicControl)
	assert.Equal(t, "biosensor/client", cfg.MQTT.TopicClient)
	assert.Equal(t, uint16(0x48), cfg.ADC.Address)
	assert.Equal(t, 20, cfg.Controller.PollIntervalMS)
	assert.Equal(t, 500, cfg.Controller.ReportPeriodMS)
	assert.Equal(t, uint32(10), cfg.Controller.DistanceBatchSize)
	assert.Equal(t, uint(115200), cfg.Serial.BaudRate)
	// Default ADC channel layout is X=0 Y=1 Z=2 force=3.
	assert.Equal(t, 0, cfg.ADC.ChannelX)
	assert.Equal(t, 3, cfg.ADC.ChannelForce)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
mqtt:
  broker: tcp://10.0.0.7:1883
controller:
  poll_interval_ms: 10
  report_period_ms: 250
adc:
  channel_x: 3
  channel_y: 2
  channel_z: 1
  channel_force: 0
`))
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.7:1883", cfg.MQTT.Broker)
	assert.Equal(t, 10, cfg.Controller.PollIntervalMS)
	assert.Equal(t, 250, cfg.Controller.ReportPeriodMS)
	assert.Equal(t, 3, cfg.ADC.ChannelX)
	assert.Equal(t, 0, cfg.ADC.ChannelForce)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateReportShorterThanPoll(t *testing.T) {
	_, err := Load(writeConfig(t, `
controller:
  poll_interval_ms: 100
  report_period_ms: 50
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report_period_ms")
}

func TestValidateDuplicateADCChannels(t *testing.T) {
	_, err := Load(writeConfig(t, `
adc:
  channel_x: 1
  channel_y: 1
  channel_z: 2
  channel_force: 3
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share ADC channel")
}

func TestValidateChannelRange(t *testing.T) {
	_, err := Load(writeConfig(t, `
adc:
  channel_x: 4
  channel_y: 1
  channel_z: 2
  channel_force: 3
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 0-3")
}
