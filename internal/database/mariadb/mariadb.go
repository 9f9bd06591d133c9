// Package mariadb stores the gallery in a MariaDB (or MySQL) kv_store table.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/face-recognizer/internal/database"
)

const createKVTable = `
	CREATE TABLE IF NOT EXISTS kv_store (
		kv_key     VARCHAR(255) NOT NULL PRIMARY KEY,
		kv_value   LONGBLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`

// Pool is a MariaDB connection pool with the kv_store table in place.
type Pool struct {
	db *sql.DB
}

// NewPool connects to dsn and creates the kv_store table if it is missing.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MARIADB_DSN is required")
	}

	db, err := database.OpenSQL("mysql", dsn, database.SQLOptions{
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createKVTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating kv_store table: %w", err)
	}
	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("closing MariaDB pool: %w", err)
	}
	return nil
}
