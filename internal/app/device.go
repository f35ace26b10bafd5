// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/wearable_biosensor/internal/config"
	"github.com/relabs-tech/wearable_biosensor/internal/controller"
	"github.com/relabs-tech/wearable_biosensor/internal/logger"
	"github.com/relabs-tech/wearable_biosensor/internal/sensors"
	"github.com/relabs-tech/wearable_biosensor/internal/transport"
)

type clientEvent int

const (
	eventConnect clientEvent = iota
	eventDisconnect
)

// RunDevice wires the sensor rig, controller and MQTT transport and
// drives the sampling loop until SIGINT/SIGTERM.
func RunDevice() error {
	cfg := config.Get()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "biosensor-device")
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	// --- open the shared I2C bus ---
	bus, err := sensors.OpenBus(cfg.I2C.Bus)
	if err != nil {
		return fmt.Errorf("open i2c bus: %w", err)
	}
	defer bus.Close()
	log.Infof("i2c bus %q open", bus.String())

	// --- build the drivers ---
	// The pulse oximeter and the raw optical sensor are the same MAX30100
	// part driven two ways; the lifecycle manager enforces that only one
	// of them is active at a time.
	optical := sensors.NewMAX30100(bus)
	pox := sensors.NewPulseOx(optical)

	analog, err := sensors.NewAnalogRig(bus, cfg.ADC.Address,
		cfg.ADC.ChannelX, cfg.ADC.ChannelY, cfg.ADC.ChannelZ, cfg.ADC.ChannelForce)
	if err != nil {
		return fmt.Errorf("analog rig: %w", err)
	}

	rig := sensors.NewManager(log, bus, pox, optical, analog.Accelerometer(), cfg.Controller.MemoryFloorBytes)

	// --- connect to MQTT ---
	mq, err := transport.NewMQTT(log, cfg.MQTT.Broker, cfg.MQTT.ClientIDDevice, transport.Topics{
		Control: cfg.MQTT.TopicControl,
		Data:    cfg.MQTT.TopicData,
		Status:  cfg.MQTT.TopicStatus,
		Client:  cfg.MQTT.TopicClient,
	})
	if err != nil {
		return err
	}
	defer mq.Close()

	ctrl := controller.New(log, rig, analog.Force(), mq, controller.Params{
		ReportPeriod:              time.Duration(cfg.Controller.ReportPeriodMS) * time.Millisecond,
		ForceCollectionDuration:   time.Duration(cfg.Controller.ForceCollectionMS) * time.Millisecond,
		TemperatureSamplingPeriod: time.Duration(cfg.Controller.TempSamplingMS) * time.Millisecond,
		DistanceBatchSize:         cfg.Controller.DistanceBatchSize,
	})

	// MQTT callbacks run on the client's receive goroutine; the channels
	// funnel everything into the single device loop below.
	cmdCh := make(chan string, 16)
	evCh := make(chan clientEvent, 4)

	err = mq.Start(transport.Handlers{
		OnCommand:    func(command string) { cmdCh <- command },
		OnConnect:    func() { evCh <- eventConnect },
		OnDisconnect: func() { evCh <- eventDisconnect },
	})
	if err != nil {
		return err
	}

	logBootBanner(log, rig)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	poll := time.NewTicker(time.Duration(cfg.Controller.PollIntervalMS) * time.Millisecond)
	defer poll.Stop()
	memTicker := time.NewTicker(10 * time.Second)
	defer memTicker.Stop()

	log.Info("device loop running")
	for {
		select {
		case command := <-cmdCh:
			ctrl.HandleCommand(command)

		case ev := <-evCh:
			if ev == eventConnect {
				log.Info("client connected")
				ctrl.HandleConnect()
			} else {
				log.Info("client disconnected")
				ctrl.HandleDisconnect()
			}

		case <-poll.C:
			ctrl.Tick()

		case <-memTicker.C:
			log.Infof("mode=%s connected=%v free_mem=%d", ctrl.Mode(), ctrl.Connected(), rig.FreeMemory())

		case <-sigCh:
			log.Info("shutting down")
			if err := rig.Reset(); err != nil {
				log.Warnf("shutdown reset: %v", err)
			}
			return nil
		}
	}
}

// logBootBanner mirrors the serial banner the device prints on power-up.
func logBootBanner(log *zap.SugaredLogger, rig *sensors.Manager) {
	log.Infof("wearable biosensor mode controller")
	log.Infof("available modes: IDLE HR_SPO2 TEMPERATURE FORCE_TEST DISTANCE_TEST QUALITY RAW_DATA")
	log.Infof("commands: MODE:<name> LABEL:<label> START:<led>[:<mm>] STOP RESET STATUS")
	log.Infof("free memory at boot: %d bytes", rig.FreeMemory())
}
