// worker runs background maintenance: it periodically purges expired
// refresh tokens from the ledger so the table does not grow without bound.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"photo-platform/backend/internal/config"
	"photo-platform/backend/internal/db"
	"photo-platform/backend/internal/token"
	tokenrepo "photo-platform/backend/internal/token/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := token.NewSweeper(tokenrepo.NewPostgresLedger(database), cfg.SweepInterval())
	log.Printf("token sweeper running (interval %s)", cfg.SweepInterval())
	sweeper.Run(ctx)
	log.Println("token sweeper stopped")
}
