// migrate applies the embedded SQL migrations; use with go run ./cmd/migrate.
package main

import (
	"errors"
	"flag"
	"log"

	"identity-session-plane/internal/config"
	"identity-session-plane/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()
	log.SetFlags(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; set it or add it to .env")
	}

	switch err := migrate.Run(cfg.DatabaseURL, *direction); {
	case err == nil:
		log.Printf("migrations applied (%s)", *direction)
	case errors.Is(err, migrate.ErrNoChange):
		log.Println("already up to date")
	default:
		log.Fatalf("migrate: %v", err)
	}
}
