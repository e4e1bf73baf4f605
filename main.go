package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"leasecheck/cmd"
	"leasecheck/internal/config"
	"leasecheck/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Commands validate the configuration themselves. Here it only seeds the logger.
	cfg, err := config.Load()
	if err != nil {
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else {
		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	log := logger.WithComponent("main")
	log.Debug().Msg("Starting leasecheck")

	cmd.Execute()

	log.Debug().Msg("leasecheck shutdown")
	os.Exit(0)
}
