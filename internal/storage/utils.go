package storage

import (
	"context"
	"sync"
	"time"

	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/types"
)

// Health status values
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker defines the interface for storage backends to implement health checks
type HealthChecker interface {
	CheckHealth(ctx context.Context) *HealthStatus
}

// StartHealthMonitor starts a generic health monitoring goroutine for any storage backend
func StartHealthMonitor(ctx context.Context, hm *HealthManager, storageType string, checker HealthChecker, interval time.Duration) {
	go func() {
		updateHealth := func() {
			health := checker.CheckHealth(ctx)
			hm.UpdateHealth(storageType, health)
			log.Debugf("updated %s health status: %s", storageType, health.Status)
		}

		updateHealth()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				updateHealth()
			case <-ctx.Done():
				log.Infof("stopping %s health monitor", storageType)
				return
			}
		}
	}()
}

// ProcessRecords provides a standard pattern for processing sealed records from a channel
func ProcessRecords(ctx context.Context, wg *sync.WaitGroup, recordChan <-chan *types.CaptureRecord, processor func(context.Context, *types.CaptureRecord) error, name string) {
	defer wg.Done()

	for {
		select {
		case r := <-recordChan:
			if err := processor(ctx, r); err != nil {
				log.Errorf("%s record processor error: %v", name, err)
			}
		case <-ctx.Done():
			log.Infof("cancellation request received. Cancelling %s record processor", name)
			return
		}
	}
}

// CreateHealthData creates a basic health data structure
func CreateHealthData(status, message string, err error) *HealthStatus {
	health := &HealthStatus{
		LastCheck: time.Now(),
		Status:    status,
		Message:   message,
	}

	if err != nil {
		health.Error = err.Error()
	}

	return health
}
