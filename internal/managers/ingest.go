package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/softbio/fallcapture/internal/ingest/mqtt"
	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/types"
	"github.com/softbio/fallcapture/pkg/config"
	"go.uber.org/zap"
)

// FrameSource is a running producer of pressure frames
type FrameSource interface {
	Start(ctx context.Context, wg *sync.WaitGroup) error
	Stats() types.IngestStats
}

// IngestManager owns the configured frame sources and feeds them into the engine
type IngestManager struct {
	ctx     context.Context
	wg      *sync.WaitGroup
	sources map[string]FrameSource
	logger  *zap.SugaredLogger
}

// NewIngestManager creates a frame source for every configured transport
func NewIngestManager(ctx context.Context, wg *sync.WaitGroup, ic config.IngestData, sink mqtt.FrameSink, logger *zap.SugaredLogger) (*IngestManager, error) {
	if sink == nil {
		return nil, fmt.Errorf("ingest manager requires a frame sink")
	}

	im := &IngestManager{
		ctx:     ctx,
		wg:      wg,
		sources: make(map[string]FrameSource),
		logger:  log.OrNop(logger),
	}

	if ic.MQTT != nil && ic.MQTT.Broker != "" {
		im.sources["mqtt"] = mqtt.NewConsumer(ic.MQTT, sink, im.logger.Named("mqtt"))
	}

	return im, nil
}

// StartSources connects every frame source. A source that fails to connect
// is logged and skipped so the REST surface stays available.
func (im *IngestManager) StartSources() {
	if len(im.sources) == 0 {
		im.logger.Warn("no frame sources configured; only simulated events will be archived")
		return
	}

	for name, src := range im.sources {
		if err := src.Start(im.ctx, im.wg); err != nil {
			im.logger.Errorf("error starting %s frame source: %v", name, err)
			continue
		}
		im.logger.Infof("%s frame source started", name)
	}
}

// IngestStats returns the frame counters of every configured source
func (im *IngestManager) IngestStats() map[string]types.IngestStats {
	out := make(map[string]types.IngestStats, len(im.sources))
	for name, src := range im.sources {
		out[name] = src.Stats()
	}
	return out
}
