// Package db opens the Postgres pool and embeds the schema migrations.
package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a Postgres connection pool using the given DSN and verifies it with a ping.
// Caller must call Close when done. The pool is shared by the ledger and user repositories.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db: empty DSN")
	}
	pool, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(10)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxIdleTime(15 * time.Minute)
	if err := pool.Ping(); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return pool, nil
}
