// Package migrate applies versioned, forward-only SQL schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/softbio/fallcapture/internal/log"
	"go.uber.org/zap"
)

// ErrVersionGap is returned when the migration set skips a version
var ErrVersionGap = errors.New("migration versions are not contiguous")

// Migration is one schema step
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationProvider loads migrations and tracks which have been applied
type MigrationProvider interface {
	GetMigrations() ([]Migration, error)
	CreateMigrationTable(ctx context.Context, db *sql.DB) error
	CurrentVersion(ctx context.Context, db *sql.DB) (int, error)
	RecordVersion(ctx context.Context, tx *sql.Tx, version int) error
}

// Migrator applies pending migrations in version order
type Migrator struct {
	db       *sql.DB
	provider MigrationProvider
	logger   *zap.SugaredLogger
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *sql.DB, provider MigrationProvider, logger *zap.SugaredLogger) *Migrator {
	return &Migrator{
		db:       db,
		provider: provider,
		logger:   log.OrNop(logger),
	}
}

// Up applies every pending migration and returns how many ran. Each
// migration runs in its own transaction together with its version record.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	pending, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}

	for i, mig := range pending {
		if err := m.apply(ctx, mig); err != nil {
			return i, fmt.Errorf("failed to apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
	}
	return len(pending), nil
}

// Version returns the highest applied migration version, 0 on a fresh database
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if err := m.provider.CreateMigrationTable(ctx, m.db); err != nil {
		return 0, err
	}
	return m.provider.CurrentVersion(ctx, m.db)
}

// Pending returns the migrations newer than the applied version
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	migrations, err := m.provider.GetMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get migrations: %w", err)
	}
	if err := checkContiguous(migrations); err != nil {
		return nil, err
	}

	current, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	if current > len(migrations) {
		return nil, fmt.Errorf("database is at version %d but only %d migrations are known", current, len(migrations))
	}
	return migrations[current:], nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	if err := m.provider.RecordVersion(ctx, tx, mig.Version); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	m.logger.Infow("applied migration", "version", mig.Version, "name", mig.Name)
	return nil
}

// checkContiguous requires versions 1..n in order
func checkContiguous(migrations []Migration) error {
	for i, mig := range migrations {
		if mig.Version != i+1 {
			return fmt.Errorf("%w: expected version %d, found %d", ErrVersionGap, i+1, mig.Version)
		}
	}
	return nil
}
