// Package postgres stores the gallery in a PostgreSQL kv_store table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/database"
)

// Pool is a PostgreSQL connection pool with the schema migrated.
type Pool struct {
	db *sql.DB
}

// Open connects to PostgreSQL and applies pending migrations.
func Open(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	db, err := database.OpenSQL("postgres", cfg.URL, database.SQLOptions{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, err
	}

	pool := &Pool{db: db}
	if _, err := pool.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating PostgreSQL schema: %w", err)
	}
	return pool, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("closing PostgreSQL pool: %w", err)
	}
	return nil
}
