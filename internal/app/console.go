package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/wearable_biosensor/internal/config"
	"github.com/relabs-tech/wearable_biosensor/internal/logger"
	"github.com/relabs-tech/wearable_biosensor/internal/telemetry"
)

// RunConsole subscribes to the data and status topics and pretty-prints
// every record to stdout. Useful for watching the device from a shell.
func RunConsole() error {
	cfg := config.Get()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "biosensor-console")
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Infof("console: connected to MQTT broker at %s", cfg.MQTT.Broker)

	dataToken := client.Subscribe(cfg.MQTT.TopicData, 0, func(_ mqtt.Client, msg mqtt.Message) {
		printRecord(msg.Payload())
	})
	if dataToken.Wait(); dataToken.Error() != nil {
		return dataToken.Error()
	}
	log.Infof("console: subscribed to %s", cfg.MQTT.TopicData)

	statusToken := client.Subscribe(cfg.MQTT.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s telemetry.Status
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Warnf("console: status unmarshal error: %v", err)
			return
		}
		fmt.Printf("[STAT] status=%s mode=%s uptime=%dms free_mem=%d\n",
			s.Status, s.Mode, s.Uptime, s.FreeMem)
	})
	if statusToken.Wait(); statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Infof("console: subscribed to %s", cfg.MQTT.TopicStatus)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("console: shutting down")
	client.Disconnect(250)
	return nil
}

// printRecord formats one data record. The data topic carries a
// different record shape per mode, so it is decoded generically and
// discriminated by its keys.
func printRecord(payload []byte) {
	var rec map[string]any
	if err := json.Unmarshal(payload, &rec); err != nil {
		fmt.Printf("[????] %s\n", payload)
		return
	}

	switch {
	case rec["quality"] != nil:
		fmt.Printf("[QUAL] quality=%.0f good=%5.1f%% hr=%6.1f spo2=%5.1f |a|=%.2f\n",
			num(rec, "quality"), num(rec, "quality_percent"),
			num(rec, "hr"), num(rec, "spo2"), num(rec, "accel_mag"))

	case rec["temperature"] != nil:
		fmt.Printf("[TEMP] t=%5.2fC\n", num(rec, "temperature"))

	case rec["fsr"] != nil:
		fmt.Printf("[FORC] fsr=%4.0f ir=%6.0f red=%6.0f label=%v collecting=%v\n",
			num(rec, "fsr"), num(rec, "ir"), num(rec, "red"),
			rec["label"], rec["collecting"])

	case rec["type"] == "average":
		fmt.Printf("[DAVG] led=%v d=%4.0fmm avg_ir=%8.1f avg_red=%8.1f n=%.0f\n",
			rec["led"], num(rec, "distance_mm"),
			num(rec, "avg_ir"), num(rec, "avg_red"), num(rec, "samples"))

	case rec["led"] != nil:
		fmt.Printf("[DIST] led=%v d=%4.0fmm ir=%6.0f red=%6.0f\n",
			rec["led"], num(rec, "distance_mm"), num(rec, "ir"), num(rec, "red"))

	case rec["ir"] != nil:
		fmt.Printf("[RAW ] hr=%6.1f spo2=%5.1f ir=%6.0f red=%6.0f accel=(%.2f %.2f %.2f)\n",
			num(rec, "hr"), num(rec, "spo2"), num(rec, "ir"), num(rec, "red"),
			num(rec, "ax"), num(rec, "ay"), num(rec, "az"))

	case rec["hr"] != nil:
		fmt.Printf("[HRSP] hr=%6.1f spo2=%5.1f accel=(%.2f %.2f %.2f)\n",
			num(rec, "hr"), num(rec, "spo2"),
			num(rec, "ax"), num(rec, "ay"), num(rec, "az"))

	case rec["status"] != nil:
		fmt.Printf("[IDLE] status=%v uptime=%.0fms free_mem=%.0f\n",
			rec["status"], num(rec, "uptime"), num(rec, "free_mem"))

	default:
		fmt.Printf("[DATA] %s\n", payload)
	}
}

func num(rec map[string]any, key string) float64 {
	v, _ := rec[key].(float64)
	return v
}
