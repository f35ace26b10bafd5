// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/wearable_biosensor/internal/config"
	"github.com/relabs-tech/wearable_biosensor/internal/logger"
)

// RunSerialConsole bridges a serial line to the control topic. Each line
// typed on the port is forwarded as one command, which keeps the old
// UART workflow usable next to MQTT clients.
func RunSerialConsole() error {
	cfg := config.Get()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "biosensor-serial")
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDSerial)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Infof("serial console connected to MQTT broker at %s", cfg.MQTT.Broker)

	serialOpts := serial.OpenOptions{
		PortName:              cfg.Serial.Port,
		BaudRate:              cfg.Serial.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Infof("serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	reader := bufio.NewReader(port)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Warnf("serial read error: %v", err)
			return err
		}

		command := strings.TrimSpace(line)
		if command == "" {
			continue
		}

		token := client.Publish(cfg.MQTT.TopicControl, 0, false, command)
		token.Wait()
		if token.Error() != nil {
			log.Warnf("command publish error: %v", token.Error())
			continue
		}
		log.Infof("forwarded command: %s", command)
	}
}
