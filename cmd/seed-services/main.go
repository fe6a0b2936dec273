package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/13132klain/Cyber-Mtandao/internal/catalog"
	postgres "github.com/13132klain/Cyber-Mtandao/internal/storage/postgres"
)

// Seeds the services table with the standard catalog. Safe to re-run;
// existing rows are updated in place.
func main() {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getenv("ORDER_DB_PORT", "5432"))
	if err != nil {
		log.Fatalf("parse ORDER_DB_PORT: %v", err)
	}
	db, err := postgres.OpenDatabase(postgres.DatabaseConfig{
		Host:     getenv("ORDER_DB_HOST", "localhost"),
		Port:     port,
		Database: getenv("ORDER_DB_NAME", "cybermtandao"),
		User:     getenv("ORDER_DB_USER", "cybermtandaoadmin"),
		Password: os.Getenv("ORDER_DB_PASSWORD"),
	})
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer func() { _ = postgres.CloseDatabase() }()

	repo := postgres.NewRepository(db)
	ctx := context.Background()
	for _, svc := range catalog.Seed() {
		if err := repo.UpsertService(ctx, svc); err != nil {
			log.Fatalf("seed service %s: %v", svc.ID, err)
		}
		log.Printf("seeded service %s (%s)", svc.ID, svc.Title)
	}
	log.Printf("done: %d services", len(catalog.Seed()))
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
