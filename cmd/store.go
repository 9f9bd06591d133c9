package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/database"
	"github.com/kozaktomas/face-recognizer/internal/database/badgerkv"
	"github.com/kozaktomas/face-recognizer/internal/database/mariadb"
	"github.com/kozaktomas/face-recognizer/internal/database/postgres"
	"github.com/kozaktomas/face-recognizer/internal/gallery"
	"github.com/kozaktomas/face-recognizer/internal/logging"
	"github.com/kozaktomas/face-recognizer/internal/recognition"
)

// openStore opens the key-value store selected by STORE_BACKEND.
func openStore(cfg *config.Config) (database.KeyValueStore, error) {
	switch cfg.Store.Backend {
	case database.BackendMemory:
		return database.NewMemoryStore(), nil
	case database.BackendFile:
		store, err := database.NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case database.BackendBadger:
		store, err := badgerkv.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case database.BackendPostgres:
		pool, err := postgres.Open(&cfg.Database)
		if err != nil {
			return nil, err
		}
		return postgres.NewKVRepository(pool), nil
	case database.BackendMariaDB:
		pool, err := mariadb.NewPool(cfg.MariaDB.DSN)
		if err != nil {
			return nil, err
		}
		return mariadb.NewKVRepository(pool), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// openGallery opens the configured store and loads the gallery from it.
// The caller closes the returned store.
func openGallery(ctx context.Context, cfg *config.Config) (*gallery.Gallery, *gallery.SignatureStore, database.KeyValueStore, error) {
	kv, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}

	store := gallery.NewSignatureStore(kv, cfg.Gallery.Key)
	g := gallery.New(store, galleryOptions(cfg))
	if err := g.Load(ctx); err != nil {
		kv.Close()
		return nil, nil, nil, err
	}
	return g, store, kv, nil
}

func galleryOptions(cfg *config.Config) gallery.Options {
	return gallery.Options{
		Threshold:    cfg.Recognition.MatchThreshold,
		SignatureDim: cfg.Gallery.SignatureDim,
		Logger:       logging.Component("gallery"),
	}
}

// profiles builds the fast and accurate detection profiles from the configuration.
func profiles(cfg *config.Config) (fast, accurate recognition.Profile) {
	fast = recognition.Profile{
		Name:          recognition.ProfileFast,
		InputSize:     cfg.Recognition.Fast.InputSize,
		MinConfidence: cfg.Recognition.Fast.MinConfidence,
	}
	accurate = recognition.Profile{
		Name:          recognition.ProfileAccurate,
		InputSize:     cfg.Recognition.Accurate.InputSize,
		MinConfidence: cfg.Recognition.Accurate.MinConfidence,
	}
	return fast, accurate
}
