package main

import (
	"log"

	"github.com/joho/godotenv"

	"pdfregress/cmd"
	"pdfregress/internal/config"
	"pdfregress/internal/logger"
)

func main() {
	// A missing .env is normal; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid environment configuration: %v", err)
	}

	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cmd.Execute(cfg)
}
