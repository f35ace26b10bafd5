// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/relabs-tech/wearable_biosensor/internal/app"
	"github.com/relabs-tech/wearable_biosensor/internal/config"
)

func main() {
	log.Println("starting wearable-biosensor device (mode controller)")

	// Load configuration
	if err := config.InitGlobal("biosensor_config.yaml"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunDevice(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
