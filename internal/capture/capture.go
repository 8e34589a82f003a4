// Package capture implements the fall capture state machine. It watches the
// ingested frame stream, opens a capture window seeded from the ring buffer
// when a fall is signalled, keeps appending frames for a fixed post-event
// duration and then seals, analyzes and hands off the record.
package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/ringbuffer"
	"github.com/softbio/fallcapture/internal/types"
	"go.uber.org/zap"
)

// State is the capture lifecycle state
type State string

const (
	Idle      State = "idle"
	Capturing State = "capturing"
)

// Analyzer derives an Analysis from a closed capture window
type Analyzer interface {
	Analyze(rec *types.CaptureRecord) (*types.Analysis, error)
}

// SealFunc receives each sealed, analyzed record exactly once
type SealFunc func(rec *types.CaptureRecord)

// Config holds the capture window tunables
type Config struct {
	PostCaptureDuration time.Duration
	TriggerProbability  float64
}

// Option customizes a Machine
type Option func(*Machine)

// WithClock replaces the system clock
func WithClock(c Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithIDGenerator replaces the uuid-based record id generator
func WithIDGenerator(next func() string) Option {
	return func(m *Machine) { m.newID = next }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Machine) { m.logger = log.OrNop(l) }
}

// Machine holds at most one open capture window at a time
type Machine struct {
	mu       sync.Mutex
	cfg      Config
	buffer   *ringbuffer.FrameRingBuffer
	analyzer Analyzer
	onSeal   SealFunc
	clock    Clock
	newID    func() string
	logger   *zap.SugaredLogger

	state    State
	open     *types.CaptureRecord
	openedAt time.Time
}

// New creates a capture machine in the Idle state
func New(cfg Config, buffer *ringbuffer.FrameRingBuffer, analyzer Analyzer, onSeal SealFunc, opts ...Option) *Machine {
	m := &Machine{
		cfg:      cfg,
		buffer:   buffer,
		analyzer: analyzer,
		onSeal:   onSeal,
		clock:    SystemClock{},
		newID:    func() string { return uuid.New().String() },
		logger:   zap.NewNop().Sugar(),
		state:    Idle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ingest pushes f into the ring buffer and advances the state machine. An
// expired window is sealed before f is considered, so f never lands in a
// window that has already run its course.
func (m *Machine) Ingest(f types.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sealIfExpired()
	m.buffer.Push(f)

	if m.state == Capturing {
		m.open.Frames = append(m.open.Frames, f)
		if f.FallProbability > m.open.MaxFallProbability {
			m.open.MaxFallProbability = f.FallProbability
		}
		return
	}

	if m.triggers(f) {
		m.openWindow()
	}
}

// Poll seals the open window if its post-capture duration has elapsed. It
// reports whether a record was sealed.
func (m *Machine) Poll() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sealIfExpired()
}

// State returns the current lifecycle state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// InFlight describes the open capture window, if any
func (m *Machine) InFlight() (id string, frames int, maxProbability float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open == nil {
		return "", 0, 0, false
	}
	return m.open.ID, len(m.open.Frames), m.open.MaxFallProbability, true
}

func (m *Machine) triggers(f types.Frame) bool {
	return f.FallDetected || f.FallProbability >= m.cfg.TriggerProbability
}

func (m *Machine) openWindow() {
	seed := m.buffer.Snapshot()

	rec := &types.CaptureRecord{
		ID:           m.newID(),
		CreatedAt:    m.clock.Now(),
		Frames:       seed,
		FallDetected: true,
	}
	for _, f := range seed {
		if f.FallProbability > rec.MaxFallProbability {
			rec.MaxFallProbability = f.FallProbability
		}
	}

	m.open = rec
	m.openedAt = rec.CreatedAt
	m.state = Capturing
	m.logger.Infow("capture opened", "id", rec.ID, "seeded_frames", len(seed))
}

func (m *Machine) sealIfExpired() bool {
	if m.state != Capturing {
		return false
	}
	if m.clock.Now().Sub(m.openedAt) < m.cfg.PostCaptureDuration {
		return false
	}

	rec := m.open
	rec.Analysis = m.analyze(rec)

	m.open = nil
	m.state = Idle

	m.logger.Infow("capture sealed",
		"id", rec.ID,
		"frames", len(rec.Frames),
		"max_probability", rec.MaxFallProbability,
		"type", rec.Analysis.Type,
		"direction", rec.Analysis.Trajectory.Direction,
	)

	if m.onSeal != nil {
		m.onSeal(rec)
	}
	return true
}

// analyze never fails: errors and panics in the analyzer yield the empty analysis
func (m *Machine) analyze(rec *types.CaptureRecord) (a *types.Analysis) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorw("analysis panicked, attaching empty analysis", "id", rec.ID, "panic", fmt.Sprint(r))
			a = types.EmptyAnalysis()
		}
	}()

	if m.analyzer == nil {
		return types.EmptyAnalysis()
	}

	var err error
	a, err = m.analyzer.Analyze(rec)
	if err != nil {
		m.logger.Errorw("analysis failed, attaching empty analysis", "id", rec.ID, "error", err)
		return types.EmptyAnalysis()
	}
	if a == nil {
		return types.EmptyAnalysis()
	}
	return a
}
