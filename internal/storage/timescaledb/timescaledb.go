// Package timescaledb stores sealed fall events in a TimescaleDB hypertable.
package timescaledb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/softbio/fallcapture/internal/database"
	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/storage"
	"github.com/softbio/fallcapture/internal/types"
	"github.com/softbio/fallcapture/pkg/config"
	"github.com/softbio/fallcapture/pkg/recordformat"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	createExtensionSQL  = `CREATE EXTENSION IF NOT EXISTS timescaledb;`
	createHypertableSQL = `SELECT create_hypertable('fall_events', 'created_at', if_not_exists => true, migrate_data => true);`
	healthCheckInterval = 60 * time.Second
)

// Storage holds the configuration for a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
	logger          *zap.SugaredLogger
}

// New sets up a new TimescaleDB storage backend
func New(ctx context.Context, c *config.TimescaleDBData, hm *storage.HealthManager) (*Storage, error) {
	db, err := database.CreateConnection(c.ConnectionString)
	if err != nil {
		return nil, err
	}

	t, err := newWithDB(ctx, db)
	if err != nil {
		return nil, err
	}
	if hm != nil {
		storage.StartHealthMonitor(ctx, hm, "timescaledb", t, healthCheckInterval)
	}
	return t, nil
}

func newWithDB(ctx context.Context, db *gorm.DB) (*Storage, error) {
	t := &Storage{TimescaleDBConn: db, logger: log.Component("timescaledb")}

	t.logger.Info("migrating fall_events table...")
	if err := db.WithContext(ctx).AutoMigrate(&database.FallEvent{}); err != nil {
		return nil, fmt.Errorf("migrating fall_events: %w", err)
	}

	// A plain PostgreSQL server works without the extension; only the
	// hypertable conversion is lost.
	t.logger.Info("creating TimescaleDB extension...")
	if err := db.WithContext(ctx).Exec(createExtensionSQL).Error; err != nil {
		t.logger.Warnf("could not create TimescaleDB extension, continuing with a plain table: %v", err)
		return t, nil
	}

	t.logger.Info("creating hypertable...")
	if err := db.WithContext(ctx).Exec(createHypertableSQL).Error; err != nil {
		t.logger.Warnf("could not create hypertable: %v", err)
	}
	return t, nil
}

// StartStorageEngine creates a goroutine loop to receive sealed records and
// send them off to TimescaleDB
func (t *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- *types.CaptureRecord {
	t.logger.Info("starting TimescaleDB storage engine...")
	recordChan := make(chan *types.CaptureRecord, 10)
	wg.Add(1)
	go storage.ProcessRecords(ctx, wg, recordChan, t.StoreRecord, "timescaledb")
	return recordChan
}

// StoreRecord upserts one fall event
func (t *Storage) StoreRecord(ctx context.Context, rec *types.CaptureRecord) error {
	payload, err := recordformat.Encode(recordformat.MsgPack, rec)
	if err != nil {
		return err
	}

	ev := database.NewFallEvent(rec, payload)
	err = t.TimescaleDBConn.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&ev).Error
	if err != nil {
		return fmt.Errorf("could not store fall event %s: %w", rec.ID, err)
	}
	return nil
}

// CheckHealth pings the database and runs a trivial query
func (t *Storage) CheckHealth(ctx context.Context) *storage.HealthStatus {
	if t.TimescaleDBConn == nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "No database connection", fmt.Errorf("TimescaleDB connection is nil"))
	}

	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "Failed to get underlying database connection", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "Database ping failed", err)
	}

	var result int
	if err := t.TimescaleDBConn.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error; err != nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "Database query test failed", err)
	}
	return storage.CreateHealthData(storage.StatusHealthy, "TimescaleDB operational - ping: OK, query test: OK", nil)
}
