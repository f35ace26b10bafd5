// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/relabs-tech/wearable_biosensor/internal/config"
	"github.com/relabs-tech/wearable_biosensor/internal/logger"
	"github.com/relabs-tech/wearable_biosensor/internal/telemetry"
)

// RunRecorder mirrors the data and status topics into InfluxDB for
// offline analysis and model retraining.
func RunRecorder() error {
	cfg := config.Get()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "biosensor-recorder")
	if err != nil {
		return err
	}
	defer log.Sync()

	client := influxdb2.NewClient(cfg.Influx.URL, cfg.Influx.Token)
	defer client.Close()
	writeAPI := client.WriteAPIBlocking(cfg.Influx.Org, cfg.Influx.Bucket)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDRecorder)

	mq := mqtt.NewClient(opts)
	if token := mq.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Infof("recorder: connected to MQTT broker at %s", cfg.MQTT.Broker)

	token := mq.Subscribe(cfg.MQTT.TopicData, 0, func(_ mqtt.Client, msg mqtt.Message) {
		measurement, tags, fields, ts := flattenRecord(msg.Payload())
		if fields == nil {
			log.Warnf("recorder: unrecognized record: %s", msg.Payload())
			return
		}
		p := influxdb2.NewPoint(measurement, tags, fields, ts)
		if err := writeAPI.WritePoint(context.Background(), p); err != nil {
			log.Warnf("recorder: write point: %v", err)
		}
	})
	if token.Wait(); token.Error() != nil {
		return token.Error()
	}

	token = mq.Subscribe(cfg.MQTT.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s telemetry.Status
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Warnf("recorder: status unmarshal error: %v", err)
			return
		}
		p := influxdb2.NewPoint(
			"status",
			map[string]string{"mode": s.Mode},
			map[string]interface{}{
				"uptime":   s.Uptime,
				"free_mem": int64(s.FreeMem),
			},
			time.Now(),
		)
		if err := writeAPI.WritePoint(context.Background(), p); err != nil {
			log.Warnf("recorder: write status point: %v", err)
		}
	})
	if token.Wait(); token.Error() != nil {
		return token.Error()
	}
	log.Infof("recorder: subscribed to %s and %s", cfg.MQTT.TopicData, cfg.MQTT.TopicStatus)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("recorder: shutting down")
	mq.Disconnect(250)
	return nil
}

// flattenRecord turns one data record into an InfluxDB point. Tags carry
// the low-cardinality strings, fields everything numeric.
func flattenRecord(payload []byte) (string, map[string]string, map[string]interface{}, time.Time) {
	var rec map[string]any
	if err := json.Unmarshal(payload, &rec); err != nil {
		return "", nil, nil, time.Time{}
	}

	ts := time.Now()
	if ms, ok := rec["timestamp"].(float64); ok {
		ts = time.UnixMilli(int64(ms))
	}

	tags := map[string]string{}
	fields := map[string]interface{}{}
	for key, value := range rec {
		if key == "timestamp" || key == "type" {
			continue
		}
		switch v := value.(type) {
		case float64:
			fields[key] = v
		case bool:
			fields[key] = v
		case string:
			tags[key] = v
		}
	}
	if len(fields) == 0 {
		return "", nil, nil, time.Time{}
	}

	measurement := "sample"
	switch {
	case rec["quality"] != nil:
		measurement = "quality"
	case rec["temperature"] != nil:
		measurement = "temperature"
	case rec["fsr"] != nil:
		measurement = "force"
	case rec["type"] == "average":
		measurement = "distance_average"
	case rec["led"] != nil:
		measurement = "distance"
	case rec["status"] != nil:
		measurement = "idle"
	}
	return measurement, tags, fields, ts
}
