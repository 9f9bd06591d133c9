package gallery

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-recognizer/internal/database"
)

// SignatureStore persists the gallery under a single key of a key-value store.
// It is the only place that knows the serialized gallery format is JSON.
type SignatureStore struct {
	kv  database.KeyValueStore
	key string
}

// NewSignatureStore creates a store that reads and writes the gallery under key.
func NewSignatureStore(kv database.KeyValueStore, key string) *SignatureStore {
	return &SignatureStore{kv: kv, key: key}
}

// Key returns the key the gallery is stored under.
func (s *SignatureStore) Key() string {
	return s.key
}

// Load reads and decodes the gallery. A missing key is an empty gallery.
func (s *SignatureStore) Load(ctx context.Context) ([]LabeledFace, error) {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading gallery: %w", err)
	}
	return Decode(data)
}

// Save encodes entries and writes them under the gallery key.
func (s *SignatureStore) Save(ctx context.Context, entries []LabeledFace) error {
	data, err := Encode(entries)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("writing gallery: %w", err)
	}
	return nil
}
