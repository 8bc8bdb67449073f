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

	log.Println("starting motionsense console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
