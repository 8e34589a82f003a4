package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const defaultMigrationTable = "schema_migrations"

// Format: 001_migration_name.up.sql
var migrationFileRegex = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

// FSProvider loads migrations from an fs.FS, usually an embedded directory,
// and tracks applied versions in a SQLite table
type FSProvider struct {
	fsys           fs.FS
	dir            string
	migrationTable string
}

// NewFSProvider creates a migration provider reading dir within fsys. An
// empty table name selects schema_migrations.
func NewFSProvider(fsys fs.FS, dir, migrationTable string) *FSProvider {
	if migrationTable == "" {
		migrationTable = defaultMigrationTable
	}
	return &FSProvider{fsys: fsys, dir: dir, migrationTable: migrationTable}
}

// GetMigrations loads all migrations, sorted by version
func (p *FSProvider) GetMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(p.fsys, p.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory %s: %w", p.dir, err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		matches := migrationFileRegex.FindStringSubmatch(e.Name())
		if matches == nil {
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("invalid version number in file %s: %w", e.Name(), err)
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("migration version %d defined by both %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		content, err := fs.ReadFile(p.fsys, path.Join(p.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", e.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    strings.ReplaceAll(matches[2], "_", " "),
			SQL:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// CreateMigrationTable creates the migration tracking table
func (p *FSProvider) CreateMigrationTable(ctx context.Context, db *sql.DB) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`, p.migrationTable)

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

// CurrentVersion returns the highest applied migration version
func (p *FSProvider) CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", p.migrationTable)

	var version int
	if err := db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// RecordVersion marks version as applied within tx
func (p *FSProvider) RecordVersion(ctx context.Context, tx *sql.Tx, version int) error {
	query := fmt.Sprintf("INSERT INTO %s (version) VALUES (?)", p.migrationTable)
	if _, err := tx.ExecContext(ctx, query, version); err != nil {
		return fmt.Errorf("failed to record version %d: %w", version, err)
	}
	return nil
}
