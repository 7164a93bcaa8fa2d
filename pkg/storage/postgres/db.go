// Package postgres implements every repository port this core defines
// against a relational store: idempotency claims, POIs and their
// provenance, and the five user-aggregate CAS repositories. It uses
// jackc/pgx's database/sql driver under jmoiron/sqlx, the same
// raw-SQL-plus-struct-scan convention the wider example pack uses for
// its own Postgres-backed repositories.
package postgres

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// driverName is the database/sql driver pgx/v5/stdlib registers itself
// under.
const driverName = "pgx"

// Config bounds one store connection pool.
type Config struct {
	DSN            string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnectTimeout time.Duration
}

// Open establishes a connection pool against cfg.DSN, verifying
// connectivity with a bounded ping before returning.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}
