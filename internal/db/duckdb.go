package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration. An empty DataDir opens an in-memory database.
type Config struct {
	DataDir string
	DBName  string
}

// Get returns the process-wide DuckDB connection, migrated on first use.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		instance, initErr = Open(cfg)
		if initErr != nil {
			return
		}
		initErr = Migrate(context.Background(), instance)
	})
	return instance, initErr
}

// Open opens a DuckDB database under DataDir/duckdb/<DBName>.duckdb.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.DataDir == "" {
		return sql.Open("duckdb", "")
	}
	duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
	if err := os.MkdirAll(duckdbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
	}
	name := cfg.DBName
	if name == "" {
		name = "overlay"
	}
	return sql.Open("duckdb", filepath.Join(duckdbDir, name+".duckdb"))
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS region_scores (
		source_id   VARCHAR NOT NULL,
		region_id   VARCHAR NOT NULL,
		observed_at TIMESTAMP NOT NULL,
		value       DOUBLE
	)`,
	`CREATE TABLE IF NOT EXISTS reports (
		id             VARCHAR PRIMARY KEY,
		region_id      VARCHAR NOT NULL,
		data_source_id VARCHAR NOT NULL,
		severity       VARCHAR NOT NULL,
		details        VARCHAR NOT NULL,
		created_at     TIMESTAMP NOT NULL
	)`,
}

// Migrate creates the tables the overlay engine uses. Safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the process-wide connection. The next Get opens a new one.
func Close() error {
	if instance == nil {
		return nil
	}
	err := instance.Close()
	instance, initErr, once = nil, nil, sync.Once{}
	return err
}
