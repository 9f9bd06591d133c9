// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"bytes"
	"context"
	"sync"

	"github.com/kozaktomas/face-recognizer/internal/database"
)

// MockKeyValueStore is a mock implementation of database.KeyValueStore
type MockKeyValueStore struct {
	mu     sync.RWMutex
	values map[string][]byte

	// Error injection
	GetError   error
	SetError   error
	CloseError error

	// Call tracking
	SetCalls int
	Closed   bool
}

// NewMockKeyValueStore creates a new mock key-value store
func NewMockKeyValueStore() *MockKeyValueStore {
	return &MockKeyValueStore{
		values: make(map[string][]byte),
	}
}

// Put seeds a value without counting it as a Set call
func (m *MockKeyValueStore) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = bytes.Clone(value)
}

// Value returns the stored value and whether it exists
func (m *MockKeyValueStore) Value(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return bytes.Clone(v), ok
}

// SetCount returns how many times Set was called
func (m *MockKeyValueStore) SetCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.SetCalls
}

// Get retrieves a value
func (m *MockKeyValueStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, database.ErrNotFound
	}
	return bytes.Clone(v), nil
}

// Set stores a value
func (m *MockKeyValueStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCalls++
	if m.SetError != nil {
		return m.SetError
	}
	m.values[key] = bytes.Clone(value)
	return nil
}

// Close marks the store as closed
func (m *MockKeyValueStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseError
}
