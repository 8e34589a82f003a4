// Package sqlite persists sealed capture records to a local SQLite database
// so the archive survives restarts.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/storage"
	"github.com/softbio/fallcapture/internal/types"
	"github.com/softbio/fallcapture/pkg/config"
	"github.com/softbio/fallcapture/pkg/migrate"
	"github.com/softbio/fallcapture/pkg/recordformat"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const healthCheckInterval = time.Minute

// ErrNotFound is returned by Get for unknown ids
var ErrNotFound = errors.New("record not found in sqlite store")

const upsertSQL = `
INSERT INTO capture_records (id, created_at, frame_count, fall_type, direction, max_probability, simulated, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    created_at = excluded.created_at,
    frame_count = excluded.frame_count,
    fall_type = excluded.fall_type,
    direction = excluded.direction,
    max_probability = excluded.max_probability,
    simulated = excluded.simulated,
    payload = excluded.payload`

// Storage holds the SQLite connection
type Storage struct {
	db     *sql.DB
	health *storage.HealthManager
	logger *zap.SugaredLogger
}

// New opens (creating if needed) the database at c.Path and migrates the schema
func New(ctx context.Context, c *config.SQLiteData, hm *storage.HealthManager) (*Storage, error) {
	logger := log.Component("sqlite")

	db, err := sql.Open("sqlite", c.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", c.Path, err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite database %s: %w", c.Path, err)
	}

	provider := migrate.NewFSProvider(migrations, "migrations", "")
	if _, err := migrate.NewMigrator(db, provider, logger).Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite schema: %w", err)
	}

	s := &Storage{db: db, health: hm, logger: logger}
	if hm != nil {
		storage.StartHealthMonitor(ctx, hm, "sqlite", s, healthCheckInterval)
	}
	logger.Infof("sqlite storage ready at %s", c.Path)
	return s, nil
}

// StartStorageEngine creates a goroutine loop to receive sealed records and
// write them to SQLite
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- *types.CaptureRecord {
	s.logger.Info("starting SQLite storage engine...")
	recordChan := make(chan *types.CaptureRecord, 10)
	wg.Add(1)
	go storage.ProcessRecords(ctx, wg, recordChan, s.StoreRecord, "sqlite")
	return recordChan
}

// StoreRecord inserts rec, replacing any row with the same id
func (s *Storage) StoreRecord(ctx context.Context, rec *types.CaptureRecord) error {
	payload, err := recordformat.Encode(recordformat.MsgPack, rec)
	if err != nil {
		return err
	}

	sum := rec.Summarize()
	_, err = s.db.ExecContext(ctx, upsertSQL,
		sum.ID,
		sum.CreatedAt.UnixNano(),
		sum.FrameCount,
		string(sum.Type),
		string(sum.Direction),
		sum.MaxFallProbability,
		sum.Simulated,
		payload,
	)
	if err != nil {
		return fmt.Errorf("storing record %s: %w", rec.ID, err)
	}
	s.logger.Debugf("stored record %s (%d frames)", rec.ID, sum.FrameCount)
	return nil
}

// Get loads one record by id
func (s *Storage) Get(ctx context.Context, id string) (*types.CaptureRecord, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM capture_records WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading record %s: %w", id, err)
	}
	return recordformat.Decode(recordformat.MsgPack, payload)
}

// LoadAll returns every stored record, oldest first
func (s *Storage) LoadAll(ctx context.Context) ([]*types.CaptureRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, payload FROM capture_records ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []*types.CaptureRecord
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		rec, err := recordformat.Decode(recordformat.MsgPack, payload)
		if err != nil {
			s.logger.Warnf("skipping undecodable record %s: %v", id, err)
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CheckHealth pings the database
func (s *Storage) CheckHealth(ctx context.Context) *storage.HealthStatus {
	if err := s.db.PingContext(ctx); err != nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "sqlite ping failed", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM capture_records").Scan(&n); err != nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "sqlite query test failed", err)
	}
	return storage.CreateHealthData(storage.StatusHealthy, fmt.Sprintf("sqlite operational, %d records", n), nil)
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}
