package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-recognizer/internal/database"
)

// KVRepository provides MariaDB-backed key-value storage
type KVRepository struct {
	pool *Pool
}

// NewKVRepository creates a new MariaDB key-value repository
func NewKVRepository(pool *Pool) *KVRepository {
	return &KVRepository{pool: pool}
}

// Get retrieves the value stored under key, or database.ErrNotFound
func (r *KVRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.pool.db.QueryRowContext(ctx, "SELECT kv_value FROM kv_store WHERE kv_key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the value stored under key
func (r *KVRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO kv_store (kv_key, kv_value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE kv_value = VALUES(kv_value)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying pool
func (r *KVRepository) Close() error {
	return r.pool.Close()
}
