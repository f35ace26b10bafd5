// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport binds the controller's three channels (control,
// data, status) to MQTT topics and models client presence on a retained
// topic with a last-will, so the controller sees connect/disconnect
// events the way it would from a point-to-point link.
package transport

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/wearable_biosensor/internal/telemetry"
)

const clientOnline = "online"

// Handlers are invoked from the MQTT receive goroutine. The device loop
// is expected to funnel them into its own goroutine.
type Handlers struct {
	OnCommand    func(command string)
	OnConnect    func()
	OnDisconnect func()
}

// Topics names the four topics of the device protocol.
type Topics struct {
	Control string
	Data    string
	Status  string
	Client  string
}

// MQTT is the device-side transport.
type MQTT struct {
	log    *zap.SugaredLogger
	client mqtt.Client
	topics Topics
}

// NewMQTT connects to the broker. Subscriptions happen in Start.
func NewMQTT(log *zap.SugaredLogger, broker, clientID string, topics Topics) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, token.Error())
	}
	log.Infof("mqtt: connected to broker at %s", broker)

	return &MQTT{log: log, client: client, topics: topics}, nil
}

// Start subscribes the control and presence topics and routes them to
// the handlers.
func (t *MQTT) Start(h Handlers) error {
	token := t.client.Subscribe(t.topics.Control, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if h.OnCommand != nil {
			h.OnCommand(string(msg.Payload()))
		}
	})
	if token.Wait(); token.Error() != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", t.topics.Control, token.Error())
	}
	t.log.Infof("mqtt: subscribed to control topic %s", t.topics.Control)

	token = t.client.Subscribe(t.topics.Client, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if string(msg.Payload()) == clientOnline {
			if h.OnConnect != nil {
				h.OnConnect()
			}
		} else if h.OnDisconnect != nil {
			h.OnDisconnect()
		}
	})
	if token.Wait(); token.Error() != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", t.topics.Client, token.Error())
	}
	t.log.Infof("mqtt: subscribed to presence topic %s", t.topics.Client)
	return nil
}

// EmitData notifies one record on the data channel. Best-effort: the
// publish is not awaited and failures surface only through the logs.
func (t *MQTT) EmitData(record any) {
	t.publish(t.topics.Data, record)
}

// EmitStatus notifies one record on the status channel.
func (t *MQTT) EmitStatus(status telemetry.Status) {
	t.publish(t.topics.Status, status)
}

func (t *MQTT) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		t.log.Warnf("mqtt: marshal for %s: %v", topic, err)
		return
	}
	t.client.Publish(topic, 0, false, payload)
}

// Close disconnects from the broker.
func (t *MQTT) Close() {
	t.client.Disconnect(250)
}
