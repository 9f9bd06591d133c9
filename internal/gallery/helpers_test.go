package gallery

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-recognizer/internal/database/mock"
)

// sig builds a signature from literal values.
func sig(values ...float32) Signature {
	return Signature(values)
}

func newTestGallery(t *testing.T) (*Gallery, *mock.MockKeyValueStore) {
	t.Helper()
	kv := mock.NewMockKeyValueStore()
	g := New(NewSignatureStore(kv, "test-gallery"), Options{
		Threshold: 0.6,
		Logger:    zerolog.Nop(),
	})
	return g, kv
}
