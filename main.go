package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"invoicebot/cmd"
	"invoicebot/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Initialize logging from the environment; the serve command validates
	// the full configuration before starting the server.
	if err := logger.Setup(logger.ConfigFromEnv()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	log := logger.WithComponent("main")
	log.Info().Msg("Starting invoicebot")

	cmd.Execute()

	log.Info().Msg("invoicebot shutdown")
	os.Exit(0)
}
