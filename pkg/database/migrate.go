package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migrator applies the embedded SQL files in lexical order, one transaction per file.
type Migrator struct {
	db     *sqlx.DB
	files  fs.FS
	logger *zap.Logger
}

// NewMigrator returns a migrator over the bundled migrations.
func NewMigrator(db *sqlx.DB, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	sub, _ := fs.Sub(migrationsFS, "migrations")
	return &Migrator{db: db, files: sub, logger: logger}
}

// Pending lists migrations not yet recorded in schema_migrations.
func (m *Migrator) Pending(ctx context.Context) ([]string, error) {
	if _, err := m.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []string
	if err := m.db.SelectContext(ctx, &applied, `SELECT name FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	done := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		done[name] = struct{}{}
	}

	names, err := m.names()
	if err != nil {
		return nil, err
	}
	pending := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := done[name]; !ok {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

// Up applies every pending migration and returns the names applied.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range pending {
		if err := m.apply(ctx, name); err != nil {
			return nil, err
		}
		m.logger.Info("migration applied", zap.String("name", name))
	}
	return pending, nil
}

func (m *Migrator) apply(ctx context.Context, name string) (err error) {
	body, err := fs.ReadFile(m.files, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("execute migration %s: %w", name, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

func (m *Migrator) names() ([]string, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
