package storage

import (
	"sync"
	"time"
)

// HealthStatus is the last observed state of one storage backend
type HealthStatus struct {
	LastCheck time.Time `json:"lastCheck"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// HealthManager manages storage health status in memory
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]HealthStatus
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		health: make(map[string]HealthStatus),
	}
}

// UpdateHealth updates the health status for a storage backend
func (hm *HealthManager) UpdateHealth(storageType string, health *HealthStatus) {
	if health == nil {
		return
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.health[storageType] = *health
}

// GetHealth retrieves the health status for a specific storage backend
func (hm *HealthManager) GetHealth(storageType string) (HealthStatus, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	health, exists := hm.health[storageType]
	return health, exists
}

// GetAllHealth retrieves all storage health statuses
func (hm *HealthManager) GetAllHealth() map[string]HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	result := make(map[string]HealthStatus, len(hm.health))
	for k, v := range hm.health {
		result[k] = v
	}
	return result
}

// IsHealthy checks if a storage backend is healthy
func (hm *HealthManager) IsHealthy(storageType string, maxAge time.Duration) bool {
	health, exists := hm.GetHealth(storageType)
	if !exists {
		return false
	}

	// Check if health data is stale
	if time.Since(health.LastCheck) > maxAge {
		return false
	}

	return health.Status == StatusHealthy
}
