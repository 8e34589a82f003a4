// Package app assembles the capture engine, storage, ingest and controllers
// from configuration and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/softbio/fallcapture/internal/analysis"
	"github.com/softbio/fallcapture/internal/engine"
	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/managers"
	"github.com/softbio/fallcapture/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         log.OrNop(logger),
	}
}

// EngineConfig translates the loaded configuration into engine settings
func EngineConfig(cfg *config.ConfigData) engine.Config {
	ec := engine.Config{
		GridRows:            cfg.Engine.GridRows,
		GridCols:            cfg.Engine.GridCols,
		BufferCapacity:      cfg.Engine.BufferCapacity,
		PostCaptureDuration: cfg.Engine.PostCaptureDuration,
		BaseFrameRate:       cfg.Engine.BaseFrameRate,
		TriggerProbability:  cfg.Engine.TriggerProbability,
		SweepInterval:       cfg.Engine.SweepInterval,
		Analysis: analysis.Config{
			ImpactThreshold: cfg.Analysis.ImpactThreshold,
			PreWindow:       cfg.Analysis.PreWindow,
			PostWindow:      cfg.Analysis.PostWindow,
		},
	}

	switch cfg.Analysis.MetricsEstimator {
	case config.EstimatorSway:
		ec.Metrics = analysis.SwayEstimator{VelocityThreshold: cfg.Analysis.StabilityVelocityThreshold}
	default:
		ec.Metrics = analysis.PlaceholderEstimator{}
	}
	return ec
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %v", err)
	}

	eng := engine.New(EngineConfig(cfg), engine.WithLogger(log.Component("engine")))

	// Initialize the storage manager
	storageManager, err := managers.NewStorageManager(ctx, &wg, cfg.Storage, log.Component("storage"))
	if err != nil {
		return err
	}
	defer storageManager.Close()

	if cfg.Storage.RestoreOnStart {
		if err := a.restore(ctx, eng, storageManager); err != nil {
			return err
		}
	}
	eng.OnSealed(storageManager.Enqueue)

	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()

	// Initialize the frame sources
	im, err := managers.NewIngestManager(ctx, &wg, cfg.Ingest, eng, log.Component("ingest"))
	if err != nil {
		return err
	}
	im.StartSources()

	// Initialize the controller manager
	cm, err := managers.NewControllerManager(ctx, &wg, cfg.Controllers, eng, storageManager.Health, im, a.logger)
	if err != nil {
		return err
	}
	err = cm.StartControllers()
	if err != nil {
		return err
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}

// restore seeds the in-memory archive from the durable store
func (a *App) restore(ctx context.Context, eng *engine.Engine, sm *managers.StorageManager) error {
	loader := sm.Loader()
	if loader == nil {
		return fmt.Errorf("restore-on-start requires a sqlite storage backend")
	}

	records, err := loader.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("error restoring archive: %v", err)
	}
	eng.Restore(records)
	a.logger.Infof("restored %d capture records from storage", len(records))
	return nil
}
