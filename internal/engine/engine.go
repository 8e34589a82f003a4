// Package engine ties the ring buffer, capture machine, analyzer, archive and
// playback controller into one instance owned by the host application.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/softbio/fallcapture/internal/analysis"
	"github.com/softbio/fallcapture/internal/archive"
	"github.com/softbio/fallcapture/internal/capture"
	"github.com/softbio/fallcapture/internal/constants"
	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/playback"
	"github.com/softbio/fallcapture/internal/ringbuffer"
	"github.com/softbio/fallcapture/internal/types"
	"go.uber.org/zap"
)

// Config holds every engine tunable
type Config struct {
	GridRows            int
	GridCols            int
	BufferCapacity      int
	PostCaptureDuration time.Duration
	BaseFrameRate       float64
	TriggerProbability  float64
	SweepInterval       time.Duration
	Analysis            analysis.Config
	Metrics             analysis.MetricsEstimator
}

// DefaultConfig returns the stock deployment settings
func DefaultConfig() Config {
	return Config{
		GridRows:            constants.DefaultGridRows,
		GridCols:            constants.DefaultGridCols,
		BufferCapacity:      constants.DefaultBufferCapacity,
		PostCaptureDuration: constants.DefaultPostCaptureDuration,
		BaseFrameRate:       constants.DefaultBaseFrameRate,
		TriggerProbability:  constants.DefaultTriggerProbability,
		SweepInterval:       constants.DefaultSweepInterval,
		Analysis:            analysis.DefaultConfig(),
	}
}

// SealListener is notified of each record added to the archive, captured or
// simulated. Listeners run on the ingest path and must not block.
type SealListener func(rec *types.CaptureRecord)

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the wall clock used for capture windows
func WithClock(c capture.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithScheduler replaces the playback tick scheduler
func WithScheduler(s playback.Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

// WithIDGenerator replaces the uuid record id generator
func WithIDGenerator(next func() string) Option {
	return func(e *Engine) { e.newID = next }
}

// WithLogger sets the engine logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) { e.logger = log.OrNop(l) }
}

// Engine is the fall capture and replay engine
type Engine struct {
	cfg       Config
	logger    *zap.SugaredLogger
	clock     capture.Clock
	scheduler playback.Scheduler
	newID     func() string

	buffer   *ringbuffer.FrameRingBuffer
	analyzer *analysis.Analyzer
	capture  *capture.Machine
	archive  *archive.EventArchive
	playback *playback.Controller

	ingestMu    sync.Mutex
	lastStamp   time.Time
	haveStamp   bool
	listenersMu sync.RWMutex
	listeners   []SealListener
}

// New builds an engine from cfg
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		logger:    zap.NewNop().Sugar(),
		clock:     capture.SystemClock{},
		scheduler: playback.TickerScheduler{},
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}

	e.buffer = ringbuffer.New(cfg.BufferCapacity)
	e.analyzer = analysis.New(cfg.Analysis, cfg.Metrics)
	e.archive = archive.New()
	e.capture = capture.New(
		capture.Config{
			PostCaptureDuration: cfg.PostCaptureDuration,
			TriggerProbability:  cfg.TriggerProbability,
		},
		e.buffer,
		e.analyzer,
		e.archiveRecord,
		capture.WithClock(e.clock),
		capture.WithIDGenerator(e.newID),
		capture.WithLogger(e.logger.Named("capture")),
	)
	e.playback = playback.New(
		e.archive,
		playback.WithScheduler(e.scheduler),
		playback.WithBaseFrameRate(cfg.BaseFrameRate),
		playback.WithLogger(e.logger.Named("playback")),
	)
	return e
}

// OnFrame validates and ingests one frame. Rejected frames leave the ring
// buffer and any open capture untouched.
func (e *Engine) OnFrame(f types.Frame) error {
	if err := f.Validate(e.cfg.GridRows, e.cfg.GridCols); err != nil {
		e.logger.Debugw("frame rejected", "error", err)
		return err
	}

	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	if e.haveStamp && f.Timestamp.Before(e.lastStamp) {
		err := fmt.Errorf("%w: %v before %v", types.ErrOutOfOrder, f.Timestamp, e.lastStamp)
		e.logger.Debugw("frame rejected", "error", err)
		return err
	}

	e.capture.Ingest(f.Clone())
	e.lastStamp = f.Timestamp
	e.haveStamp = true
	return nil
}

// Poll seals the open capture once its post-capture duration has elapsed,
// even if no further frames arrive
func (e *Engine) Poll() bool {
	return e.capture.Poll()
}

// Run calls Poll every sweep interval until ctx is cancelled
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.SweepInterval
	if interval <= 0 {
		interval = constants.DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.playback.Stop()
			return
		case <-ticker.C:
			e.Poll()
		}
	}
}

// CaptureState reports whether a capture window is open
func (e *Engine) CaptureState() capture.State {
	return e.capture.State()
}

// OnSealed registers a listener for archived records
func (e *Engine) OnSealed(l SealListener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Restore loads previously persisted records into the archive without
// re-analysis and without notifying seal listeners
func (e *Engine) Restore(records []*types.CaptureRecord) {
	for _, rec := range records {
		if rec == nil || rec.ID == "" {
			continue
		}
		if rec.Analysis == nil {
			rec.Analysis = types.EmptyAnalysis()
		}
		e.archive.Append(rec)
	}
	e.logger.Infof("restored %d records into the archive", len(records))
}

// ListEvents returns every archived record, oldest first
func (e *Engine) ListEvents() []*types.CaptureRecord {
	return e.archive.List()
}

// GetEvent looks up an archived record
func (e *Engine) GetEvent(id string) (*types.CaptureRecord, error) {
	return e.archive.Get(id)
}

// MostRecentEvent returns the last archived record or archive.ErrNotFound
func (e *Engine) MostRecentEvent() (*types.CaptureRecord, error) {
	return e.archive.MostRecent()
}

// StartPlayback begins replaying record id. It reports whether playback started.
func (e *Engine) StartPlayback(id string, opts playback.StartOptions) bool {
	return e.playback.Start(id, opts)
}

// Pause suspends playback
func (e *Engine) Pause() { e.playback.Pause() }

// Resume continues paused playback
func (e *Engine) Resume() { e.playback.Resume() }

// Stop ends playback and emits the idle signal
func (e *Engine) Stop() { e.playback.Stop() }

// Seek jumps to a frame of record id
func (e *Engine) Seek(index int, id string) { e.playback.Seek(index, id) }

// SetSpeed changes the playback multiplier
func (e *Engine) SetSpeed(speed float64) { e.playback.SetSpeed(speed) }

// SetLoop toggles looping
func (e *Engine) SetLoop(loop bool) { e.playback.SetLoop(loop) }

// Status reports the playback position
func (e *Engine) Status() types.PlaybackStatus { return e.playback.Status() }

// Settings reports the playback speed and loop flag
func (e *Engine) Settings() types.PlaybackSettings { return e.playback.Settings() }

// OnPlaybackFrame subscribes to replayed frames
func (e *Engine) OnPlaybackFrame(cb playback.Callback) (unsubscribe func()) {
	return e.playback.Subscribe(cb)
}

func (e *Engine) archiveRecord(rec *types.CaptureRecord) {
	e.archive.Append(rec)

	e.listenersMu.RLock()
	listeners := make([]SealListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.listenersMu.RUnlock()

	for _, l := range listeners {
		l(rec)
	}
}
