package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store interface for PostgreSQL
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// SetPool applies connection pool limits
func (s *PostgresStore) SetPool(maxOpen, maxIdle int, maxLifetime time.Duration) {
	s.db.SetMaxOpenConns(maxOpen)
	s.db.SetMaxIdleConns(maxIdle)
	s.db.SetConnMaxLifetime(maxLifetime)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *PostgresStore) BeginTx(ctx context.Context) (Store, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: s.db, tx: tx}, nil
}

// Commit commits the transaction
func (s *PostgresStore) Commit() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Commit()
}

// Rollback rolls back the transaction
func (s *PostgresStore) Rollback() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Rollback()
}

// getDB returns tx if in transaction, otherwise db
func (s *PostgresStore) getDB() interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
} {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Migrate creates the tables used by the daemon if they do not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.getDB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS packet_log (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		device TEXT NOT NULL,
		direction TEXT NOT NULL,
		source TEXT NOT NULL,
		destination TEXT NOT NULL,
		packet_id INTEGER NOT NULL,
		priority TEXT NOT NULL,
		require_ack BOOLEAN NOT NULL,
		retry_count INTEGER NOT NULL,
		timestamp BIGINT NOT NULL,
		payload BYTEA,
		tx_id INTEGER,
		error_code INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS packet_log_device_created_idx ON packet_log (device, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS event_logs (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		device TEXT NOT NULL,
		type TEXT NOT NULL,
		level TEXT NOT NULL,
		state TEXT NOT NULL,
		code INTEGER NOT NULL,
		tx_id INTEGER,
		network_id INTEGER,
		description TEXT NOT NULL,
		details JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS event_logs_device_created_idx ON event_logs (device, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS stats_snapshots (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		device TEXT NOT NULL,
		state TEXT NOT NULL,
		packets_sent BIGINT NOT NULL,
		packets_received BIGINT NOT NULL,
		packets_lost BIGINT NOT NULL,
		retries_attempted BIGINT NOT NULL,
		crc_errors BIGINT NOT NULL,
		timeouts BIGINT NOT NULL,
		last_rssi INTEGER NOT NULL,
		channel_utilization INTEGER NOT NULL,
		total_airtime_us BIGINT NOT NULL,
		power_consumption_uah BIGINT NOT NULL
	)`,
}

func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key")
}
