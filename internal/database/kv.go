package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned by key-value stores when a key has never been set.
var ErrNotFound = errors.New("key not found")

// KeyValueStore is the durable key-value capability the face gallery is persisted to.
// Values are opaque bytes; the gallery owns the serialization format.
type KeyValueStore interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error
	// Close releases the underlying resources
	Close() error
}

// Backend names accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendMariaDB  = "mariadb"
)
