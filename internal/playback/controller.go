// Package playback replays sealed capture records to subscribers under
// independent timing control.
package playback

import (
	"math"
	"sync"
	"time"

	"github.com/softbio/fallcapture/internal/constants"
	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/types"
	"go.uber.org/zap"
)

const minTickInterval = time.Millisecond

// RecordSource resolves record ids to sealed records
type RecordSource interface {
	Get(id string) (*types.CaptureRecord, error)
}

// StartOptions override the default playback settings for one session. A
// zero Speed means 1.0.
type StartOptions struct {
	Speed float64
	Loop  bool
}

// Controller is the playback state machine. At most one tick schedule is
// active at any time; every tick carries the generation it was scheduled
// under and is ignored once that generation is superseded.
//
// Frames are queued under mu in state-change order and delivered after mu
// is released, so callbacks may call back into the controller. A call made
// while another goroutine (or an enclosing callback) is delivering returns
// once its frames are queued; the active deliverer sends them in order.
type Controller struct {
	mu            sync.Mutex
	source        RecordSource
	subs          *Registry
	scheduler     Scheduler
	baseFrameRate float64
	logger        *zap.SugaredLogger

	state  types.PlaybackState
	record *types.CaptureRecord
	index  int
	speed  float64
	loop   bool
	cancel CancelFunc
	gen    uint64

	pending    []*types.PlaybackFrame
	delivering bool
}

// Option configures a Controller
type Option func(*Controller)

// WithScheduler replaces the ticker-backed scheduler
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

// WithBaseFrameRate sets the frame rate that speed 1.0 plays at
func WithBaseFrameRate(fps float64) Option {
	return func(c *Controller) {
		if fps > 0 {
			c.baseFrameRate = fps
		}
	}
}

// WithLogger sets the controller logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) { c.logger = log.OrNop(l) }
}

// New creates a stopped controller reading records from source
func New(source RecordSource, opts ...Option) *Controller {
	c := &Controller{
		source:        source,
		scheduler:     TickerScheduler{},
		baseFrameRate: constants.DefaultBaseFrameRate,
		logger:        zap.NewNop().Sugar(),
		state:         types.PlaybackStopped,
		speed:         1.0,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.subs = NewRegistry(c.logger)
	return c
}

// Subscribe registers a frame callback
func (c *Controller) Subscribe(cb Callback) (unsubscribe func()) {
	return c.subs.Subscribe(cb)
}

// Start begins playing record id from frame 0. It returns false and changes
// nothing when the record is unknown or has no frames.
func (c *Controller) Start(id string, opts StartOptions) bool {
	rec := c.lookup(id)
	if rec == nil {
		return false
	}

	c.mu.Lock()
	c.cancelSchedule()
	c.record = rec
	c.index = 0
	c.speed = 1.0
	if validSpeed(opts.Speed) {
		c.speed = opts.Speed
	}
	c.loop = opts.Loop
	c.state = types.PlaybackPlaying
	c.schedule()

	c.logger.Infow("playback started", "record", rec.ID, "frames", len(rec.Frames), "speed", c.speed, "loop", c.loop)
	c.emitCurrent()
	c.mu.Unlock()

	c.flush()
	return true
}

// Pause suspends a playing session
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != types.PlaybackPlaying {
		return
	}
	c.cancelSchedule()
	c.state = types.PlaybackPaused
}

// Resume continues a paused session at the current speed
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != types.PlaybackPaused {
		return
	}
	c.state = types.PlaybackPlaying
	c.schedule()
}

// Stop ends the session from any state and emits the idle signal
func (c *Controller) Stop() {
	c.mu.Lock()
	c.cancelSchedule()
	if c.record != nil {
		c.logger.Infow("playback stopped", "record", c.record.ID, "index", c.index)
	}
	c.reset()
	c.pending = append(c.pending, nil)
	c.mu.Unlock()

	c.flush()
}

// Seek moves to index within record id, clamped to the record bounds, and
// emits that frame. The playback state is left as it is.
func (c *Controller) Seek(index int, id string) {
	rec := c.lookup(id)
	if rec == nil {
		return
	}

	c.mu.Lock()
	last := len(rec.Frames) - 1
	switch {
	case index < 0:
		index = 0
	case index > last:
		index = last
	}
	c.record = rec
	c.index = index
	c.emitCurrent()
	c.mu.Unlock()

	c.flush()
}

// SetSpeed changes the playback multiplier. Non-positive and non-finite
// values are ignored.
func (c *Controller) SetSpeed(speed float64) {
	if !validSpeed(speed) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.speed = speed
	if c.state == types.PlaybackPlaying {
		c.cancelSchedule()
		c.schedule()
	}
}

// SetLoop sets whether playback wraps at the end of the record
func (c *Controller) SetLoop(loop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop = loop
}

// Status reports the session position
func (c *Controller) Status() types.PlaybackStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := types.PlaybackStatus{State: c.state, FrameIndex: c.index}
	if c.record != nil {
		st.RecordID = c.record.ID
		st.TotalFrames = len(c.record.Frames)
	}
	return st
}

// Settings reports the current speed and loop flag
func (c *Controller) Settings() types.PlaybackSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.PlaybackSettings{Speed: c.speed, Loop: c.loop}
}

// Interval returns the tick period for the current speed
func (c *Controller) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval()
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	c.advance(gen)
	c.mu.Unlock()

	c.flush()
}

// advance must be called with c.mu held
func (c *Controller) advance(gen uint64) {
	if gen != c.gen || c.state != types.PlaybackPlaying || c.record == nil {
		return
	}

	c.index++
	if c.index < len(c.record.Frames) {
		c.emitCurrent()
		return
	}

	if c.loop {
		c.index = 0
		c.emitCurrent()
		return
	}

	c.logger.Infow("playback finished", "record", c.record.ID)
	c.cancelSchedule()
	c.reset()
	c.pending = append(c.pending, nil)
}

// flush delivers queued frames in order. It must be called without c.mu
// held. Only one caller delivers at a time; nested and concurrent callers
// leave their frames to it.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.pending) > 0 {
		f := c.pending[0]
		c.pending[0] = nil
		c.pending = c.pending[1:]
		c.mu.Unlock()
		c.subs.Emit(f)
		c.mu.Lock()
	}
	c.pending = nil
	c.delivering = false
	c.mu.Unlock()
}

func (c *Controller) lookup(id string) *types.CaptureRecord {
	if c.source == nil {
		return nil
	}
	rec, err := c.source.Get(id)
	if err != nil || rec == nil || len(rec.Frames) == 0 {
		c.logger.Debugw("playback lookup failed", "record", id, "error", err)
		return nil
	}
	return rec
}

// schedule must be called with c.mu held and no schedule active
func (c *Controller) schedule() {
	c.gen++
	gen := c.gen
	c.cancel = c.scheduler.Every(c.interval(), func() { c.tick(gen) })
}

// cancelSchedule must be called with c.mu held
func (c *Controller) cancelSchedule() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
}

func (c *Controller) reset() {
	c.state = types.PlaybackStopped
	c.record = nil
	c.index = 0
}

func (c *Controller) interval() time.Duration {
	d := time.Duration(float64(time.Second) / (c.baseFrameRate * c.speed))
	if d < minTickInterval {
		d = minTickInterval
	}
	return d
}

// emitCurrent queues the frame at the current index; c.mu must be held
func (c *Controller) emitCurrent() {
	c.pending = append(c.pending, &types.PlaybackFrame{
		RecordID: c.record.ID,
		Index:    c.index,
		Total:    len(c.record.Frames),
		Frame:    c.record.Frames[c.index],
	})
}

func validSpeed(s float64) bool {
	return s > 0 && !math.IsNaN(s) && !math.IsInf(s, 0)
}
