// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/motionsense/internal/app"
	"github.com/relabs-tech/motionsense/internal/config"
)

func main() {
	configPath := flag.String("config", "./motionsense_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting motionsense replay producer (file → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunReplayProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
