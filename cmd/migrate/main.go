package main

import (
	"log"

	"checkout-service/config"
	"checkout-service/internal/migrate"
	"checkout-service/internal/store"
)

func main() {
	cfg := config.Load()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migrate.Apply(db.GetDB()); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	log.Println("Migrations applied")
}
