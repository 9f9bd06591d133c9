package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// Migrate applies the embedded migrations that are not recorded in
// schema_migrations yet, in file name order, and returns their file names.
func (p *Pool) Migrate(ctx context.Context) ([]string, error) {
	if _, err := p.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("creating schema_migrations: %w", err)
	}

	// fs.Glob returns names in lexical order
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	var applied []string
	for _, file := range files {
		ran, err := p.migrate(ctx, file)
		if err != nil {
			return applied, err
		}
		if ran {
			applied = append(applied, path.Base(file))
		}
	}
	return applied, nil
}

// migrate runs one migration file unless it is already recorded. The check,
// the migration and its record share a transaction.
func (p *Pool) migrate(ctx context.Context, file string) (bool, error) {
	version := path.Base(file)
	content, err := migrationsFS.ReadFile(file)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", version, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting %s: %w", version, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var done bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&done); err != nil {
		return false, fmt.Errorf("checking %s: %w", version, err)
	}
	if done {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return false, fmt.Errorf("applying %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return false, fmt.Errorf("recording %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing %s: %w", version, err)
	}
	return true, nil
}
