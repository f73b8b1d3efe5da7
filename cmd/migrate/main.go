package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ManuelReschke/BarberFox/internal/pkg/database"
	"github.com/ManuelReschke/BarberFox/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	log.Printf("Connecting to database: %s@%s:%s/%s",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	db, err := database.Connect()
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}

	switch command {
	case "up":
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Billing tables are up to date")

	case "status":
		missing := 0
		for _, model := range database.Models() {
			stmt := db.Model(model).Statement
			if err := stmt.Parse(model); err != nil {
				log.Fatalf("Could not parse model %T: %v", model, err)
			}
			present := db.Migrator().HasTable(model)
			if !present {
				missing++
			}
			log.Printf("%-28s %v", stmt.Schema.Table, present)
		}
		if missing > 0 {
			log.Printf("%d table(s) missing, run: migrate up", missing)
			os.Exit(1)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  up     - create or update the billing tables")
	fmt.Println("  status - show which billing tables exist")
}
