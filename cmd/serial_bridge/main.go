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

	log.Println("starting motionsense serial bridge (device → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunSerialBridge(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
