package main

import (
	"os"

	"github.com/joho/godotenv"

	"bankdash/internal/commands"
	"bankdash/internal/log"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	log.Setup(os.Getenv("LOG_LEVEL"))

	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
