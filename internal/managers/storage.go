package managers

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/storage"
	"github.com/softbio/fallcapture/internal/storage/redisstream"
	"github.com/softbio/fallcapture/internal/storage/sqlite"
	"github.com/softbio/fallcapture/internal/storage/timescaledb"
	"github.com/softbio/fallcapture/internal/types"
	"github.com/softbio/fallcapture/pkg/config"
	"go.uber.org/zap"
)

// distributorBuffer is how many sealed records may wait for the storage
// backends before new ones are dropped
const distributorBuffer = 20

// StorageManager holds our active storage backends
type StorageManager struct {
	Engines           []StorageEngine
	RecordDistributor chan *types.CaptureRecord
	Health            *storage.HealthManager

	loader  storage.RecordLoader
	closers []io.Closer
	logger  *zap.SugaredLogger
}

// StorageEngine holds a backend storage engine's interface as well as
// a channel for passing sealed records to the engine
type StorageEngine struct {
	Name   string
	Engine storage.StorageEngineInterface
	C      chan<- *types.CaptureRecord
}

// NewStorageManager creates a StorageManager object, populated with all configured StorageEngines
func NewStorageManager(ctx context.Context, wg *sync.WaitGroup, sc config.StorageData, logger *zap.SugaredLogger) (*StorageManager, error) {
	s := &StorageManager{
		RecordDistributor: make(chan *types.CaptureRecord, distributorBuffer),
		Health:            storage.NewHealthManager(),
		logger:            log.OrNop(logger),
	}

	if sc.SQLite != nil && sc.SQLite.Path != "" {
		if err := s.AddEngine(ctx, wg, "sqlite", sc); err != nil {
			s.Close()
			return nil, fmt.Errorf("could not add SQLite storage backend: %v", err)
		}
	}

	if sc.TimescaleDB != nil && sc.TimescaleDB.ConnectionString != "" {
		if err := s.AddEngine(ctx, wg, "timescaledb", sc); err != nil {
			s.Close()
			return nil, fmt.Errorf("could not add TimescaleDB storage backend: %v", err)
		}
	}

	if sc.Redis != nil && sc.Redis.Addr != "" {
		if err := s.AddEngine(ctx, wg, "redis", sc); err != nil {
			s.Close()
			return nil, fmt.Errorf("could not add Redis storage backend: %v", err)
		}
	}

	if len(s.Engines) == 0 {
		s.logger.Warn("no storage backends configured; sealed records live in memory only")
	}

	// Start our record distributor to fan sealed records out to the backends
	wg.Add(1)
	go s.startRecordDistributor(ctx, wg)

	return s, nil
}

// AddEngine adds a new StorageEngine of name engineName to our StorageManager
func (s *StorageManager) AddEngine(ctx context.Context, wg *sync.WaitGroup, engineName string, sc config.StorageData) error {
	var se storage.StorageEngineInterface

	switch engineName {
	case "sqlite":
		st, err := sqlite.New(ctx, sc.SQLite, s.Health)
		if err != nil {
			return err
		}
		s.loader = st
		s.closers = append(s.closers, st)
		se = st
	case "timescaledb":
		st, err := timescaledb.New(ctx, sc.TimescaleDB, s.Health)
		if err != nil {
			return err
		}
		se = st
	case "redis":
		st, err := redisstream.New(ctx, sc.Redis, s.Health)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, st)
		se = st
	default:
		return fmt.Errorf("unknown storage engine: %s", engineName)
	}

	s.Engines = append(s.Engines, StorageEngine{
		Name:   engineName,
		Engine: se,
		C:      se.StartStorageEngine(ctx, wg),
	})
	s.logger.Infof("%s storage backend enabled", engineName)
	return nil
}

// Loader returns the backend used to restore the archive, or nil when no
// durable backend is configured
func (s *StorageManager) Loader() storage.RecordLoader {
	return s.loader
}

// Enqueue hands a sealed record to the distributor. It never blocks; when
// the distributor is backed up the record is dropped and logged.
func (s *StorageManager) Enqueue(rec *types.CaptureRecord) {
	select {
	case s.RecordDistributor <- rec:
	default:
		s.logger.Errorf("storage distributor full; record %s not persisted", rec.ID)
	}
}

// Close releases backend connections. Call it after the distributor and
// engines have stopped.
func (s *StorageManager) Close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warnf("error closing storage backend: %v", err)
		}
	}
	s.closers = nil
}

// startRecordDistributor receives sealed records from the engine and fans
// them out to the various storage backends
func (s *StorageManager) startRecordDistributor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case rec := <-s.RecordDistributor:
			for _, e := range s.Engines {
				select {
				case e.C <- rec:
				case <-ctx.Done():
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
