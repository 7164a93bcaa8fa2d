package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

var (
	dsn           = flag.String("dsn", os.Getenv("WILDSIDE_STORE_DSN"), "PostgreSQL connection string")
	migrationsDir = flag.String("dir", "migrations", "Directory of goose migration files")
	command       = flag.String("command", "up", "Goose command: up, down, status, redo, reset, version")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *dsn == "" {
		log.Fatal("no DSN provided: pass -dsn or set WILDSIDE_STORE_DSN")
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("failed to set goose dialect: %v", err)
	}

	args := flag.Args()
	if err := goose.Run(*command, db, *migrationsDir, args...); err != nil {
		log.Fatalf("migration %s failed: %v", *command, err)
	}

	fmt.Printf("migration %s completed against %s\n", *command, *migrationsDir)
}
