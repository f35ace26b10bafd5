package main

import (
	"log"

	"github.com/relabs-tech/wearable_biosensor/internal/app"
	"github.com/relabs-tech/wearable_biosensor/internal/config"
)

func main() {
	log.Println("starting wearable-biosensor recorder (MQTT to InfluxDB)")

	// Load configuration
	if err := config.InitGlobal("biosensor_config.yaml"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunRecorder(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
