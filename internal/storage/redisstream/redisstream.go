// Package redisstream publishes sealed fall events to a Redis stream for
// downstream alerting consumers.
package redisstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/storage"
	"github.com/softbio/fallcapture/internal/types"
	"github.com/softbio/fallcapture/pkg/config"
	"github.com/softbio/fallcapture/pkg/recordformat"
	"go.uber.org/zap"
)

const healthCheckInterval = 30 * time.Second

// Stream entry field names
const (
	FieldID        = "id"
	FieldType      = "type"
	FieldDirection = "direction"
	FieldCreatedAt = "created_at"
	FieldSimulated = "simulated"
	FieldPayload   = "payload"
)

// Storage publishes records with XADD
type Storage struct {
	client *redis.Client
	stream string
	logger *zap.SugaredLogger
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, c *config.RedisData, hm *storage.HealthManager) (*Storage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", c.Addr, err)
	}

	s := NewWithClient(client, c.Stream)
	if hm != nil {
		storage.StartHealthMonitor(ctx, hm, "redis", s, healthCheckInterval)
	}
	return s, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, stream string) *Storage {
	return &Storage{client: client, stream: stream, logger: log.Component("redisstream")}
}

// StartStorageEngine creates a goroutine loop to receive sealed records and
// publish them to the stream
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- *types.CaptureRecord {
	s.logger.Infof("starting Redis stream storage engine on %s...", s.stream)
	recordChan := make(chan *types.CaptureRecord, 10)
	wg.Add(1)
	go storage.ProcessRecords(ctx, wg, recordChan, func(ctx context.Context, rec *types.CaptureRecord) error {
		_, err := s.Publish(ctx, rec)
		return err
	}, "redisstream")
	return recordChan
}

// Publish appends rec to the stream and returns the entry id
func (s *Storage) Publish(ctx context.Context, rec *types.CaptureRecord) (string, error) {
	payload, err := recordformat.Encode(recordformat.JSON, rec)
	if err != nil {
		return "", err
	}

	sum := rec.Summarize()
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			FieldID:        sum.ID,
			FieldType:      string(sum.Type),
			FieldDirection: string(sum.Direction),
			FieldCreatedAt: sum.CreatedAt.UnixMilli(),
			FieldSimulated: fmt.Sprintf("%t", sum.Simulated),
			FieldPayload:   string(payload),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publishing record %s to %s: %w", rec.ID, s.stream, err)
	}
	s.logger.Debugf("published record %s as stream entry %s", rec.ID, id)
	return id, nil
}

// CheckHealth pings Redis
func (s *Storage) CheckHealth(ctx context.Context) *storage.HealthStatus {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "redis ping failed", err)
	}
	return storage.CreateHealthData(storage.StatusHealthy, "redis operational", nil)
}

// Close closes the client
func (s *Storage) Close() error {
	return s.client.Close()
}
