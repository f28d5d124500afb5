package main

import (
	"log"

	"github.com/aussiebroadwan/learnhub/internal/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	server, err := app.NewBackend(cfg, nil)
	if err != nil {
		log.Fatalf("failed to initialize devbackend: %v", err)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("devbackend error: %v", err)
	}
}
