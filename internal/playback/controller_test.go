package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/softbio/fallcapture/internal/types"
)

type manualTask struct {
	interval time.Duration
	tick     func()
	active   bool
}

// manualScheduler records scheduled tasks; tests fire them explicitly
type manualScheduler struct {
	tasks []*manualTask
}

func (m *manualScheduler) Every(interval time.Duration, tick func()) CancelFunc {
	t := &manualTask{interval: interval, tick: tick, active: true}
	m.tasks = append(m.tasks, t)
	return func() { t.active = false }
}

func (m *manualScheduler) active() []*manualTask {
	var out []*manualTask
	for _, t := range m.tasks {
		if t.active {
			out = append(out, t)
		}
	}
	return out
}

func (m *manualScheduler) fire(n int) {
	for i := 0; i < n; i++ {
		for _, t := range m.active() {
			t.tick()
		}
	}
}

type mapSource map[string]*types.CaptureRecord

func (s mapSource) Get(id string) (*types.CaptureRecord, error) {
	if r, ok := s[id]; ok {
		return r, nil
	}
	return nil, errors.New("not found")
}

func record(id string, n int) *types.CaptureRecord {
	rec := &types.CaptureRecord{ID: id, CreatedAt: time.Unix(1000, 0), FallDetected: true}
	for i := 0; i < n; i++ {
		rec.Frames = append(rec.Frames, types.Frame{
			Grid:      [][]float64{{float64(i)}},
			Timestamp: time.Unix(1000, int64(i)*int64(time.Millisecond)),
		})
	}
	return rec
}

type recorder struct {
	frames []*types.PlaybackFrame
}

func (r *recorder) cb(f *types.PlaybackFrame) { r.frames = append(r.frames, f) }

func (r *recorder) indices() []int {
	var out []int
	for _, f := range r.frames {
		if f == nil {
			out = append(out, -1)
			continue
		}
		out = append(out, f.Index)
	}
	return out
}

func newTestController(src mapSource) (*Controller, *manualScheduler, *recorder) {
	sched := &manualScheduler{}
	c := New(src, WithScheduler(sched), WithBaseFrameRate(15))
	rec := &recorder{}
	c.Subscribe(rec.cb)
	return c, sched, rec
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStartPlaysToEndAndStops(t *testing.T) {
	c, sched, rec := newTestController(mapSource{"a": record("a", 4)})

	if !c.Start("a", StartOptions{}) {
		t.Fatal("Start returned false for a known record")
	}
	sched.fire(4)

	want := []int{0, 1, 2, 3, -1}
	if got := rec.indices(); !equalInts(got, want) {
		t.Fatalf("emitted %v, want %v", got, want)
	}

	st := c.Status()
	if st.State != types.PlaybackStopped || st.FrameIndex != 0 {
		t.Errorf("status after end = %+v", st)
	}
	if len(sched.active()) != 0 {
		t.Errorf("%d schedules still active after end", len(sched.active()))
	}
}

func TestIntervalFollowsSpeed(t *testing.T) {
	c, sched, _ := newTestController(mapSource{"a": record("a", 3)})

	c.Start("a", StartOptions{Speed: 2})
	want := time.Second / 30
	if got := sched.active()[0].interval; got != want {
		t.Errorf("interval = %v, want %v", got, want)
	}
	if c.Interval() != want {
		t.Errorf("Interval() = %v, want %v", c.Interval(), want)
	}
}

func TestStopCancelsPendingTick(t *testing.T) {
	c, sched, rec := newTestController(mapSource{"a": record("a", 10)})

	c.Start("a", StartOptions{})
	pending := sched.active()[0].tick
	c.Stop()
	pending()
	pending()

	want := []int{0, -1}
	if got := rec.indices(); !equalInts(got, want) {
		t.Fatalf("emitted %v, want %v", got, want)
	}
}

func TestSpeedChangeKeepsOrder(t *testing.T) {
	c, sched, rec := newTestController(mapSource{"a": record("a", 8)})

	c.Start("a", StartOptions{})
	sched.fire(2)
	stale := sched.active()[0].tick
	c.SetSpeed(3)
	stale()
	if n := len(sched.active()); n != 1 {
		t.Fatalf("%d active schedules after speed change, want 1", n)
	}
	sched.fire(2)
	c.SetSpeed(0.5)
	sched.fire(1)

	want := []int{0, 1, 2, 3, 4, 5}
	if got := rec.indices(); !equalInts(got, want) {
		t.Fatalf("emitted %v, want %v", got, want)
	}
	if s := c.Settings().Speed; s != 0.5 {
		t.Errorf("speed = %v, want 0.5", s)
	}
}

func TestLoopWraps(t *testing.T) {
	c, sched, rec := newTestController(mapSource{"a": record("a", 3)})

	c.Start("a", StartOptions{Loop: true})
	sched.fire(5)

	want := []int{0, 1, 2, 0, 1, 2}
	if got := rec.indices(); !equalInts(got, want) {
		t.Fatalf("emitted %v, want %v", got, want)
	}

	c.SetLoop(false)
	sched.fire(1)
	if got := rec.frames[len(rec.frames)-1]; got != nil {
		t.Errorf("expected idle signal after loop disabled, got index %d", got.Index)
	}
}

func TestPauseResume(t *testing.T) {
	c, sched, rec := newTestController(mapSource{"a": record("a", 5)})

	c.Start("a", StartOptions{})
	sched.fire(1)
	c.Pause()
	if c.Status().State != types.PlaybackPaused {
		t.Fatalf("state = %s, want paused", c.Status().State)
	}
	sched.fire(3)
	c.Resume()
	sched.fire(1)

	want := []int{0, 1, 2}
	if got := rec.indices(); !equalInts(got, want) {
		t.Fatalf("emitted %v, want %v", got, want)
	}
}

func TestInvalidTransitionsAreNoops(t *testing.T) {
	c, sched, rec := newTestController(mapSource{"a": record("a", 3)})

	c.Resume()
	c.Pause()
	if c.Status().State != types.PlaybackStopped {
		t.Errorf("state = %s, want stopped", c.Status().State)
	}
	if len(sched.tasks) != 0 {
		t.Errorf("scheduled %d tasks from invalid transitions", len(sched.tasks))
	}

	c.Start("a", StartOptions{})
	c.Resume()
	if n := len(sched.active()); n != 1 {
		t.Errorf("%d active schedules after resume while playing", n)
	}
	if len(rec.frames) != 1 {
		t.Errorf("emitted %d frames, want 1", len(rec.frames))
	}
}

func TestUnknownOrEmptyRecordIsNoop(t *testing.T) {
	c, sched, rec := newTestController(mapSource{"empty": record("empty", 0)})

	for _, id := range []string{"missing", "empty"} {
		if c.Start(id, StartOptions{}) {
			t.Errorf("Start(%q) returned true", id)
		}
		c.Seek(3, id)
	}
	if len(rec.frames) != 0 || len(sched.tasks) != 0 {
		t.Errorf("emissions=%d schedules=%d, want none", len(rec.frames), len(sched.tasks))
	}
	if c.Status().State != types.PlaybackStopped {
		t.Errorf("state = %s, want stopped", c.Status().State)
	}
}

func TestSeekClampsAndContinues(t *testing.T) {
	c, sched, rec := newTestController(mapSource{"a": record("a", 10), "b": record("b", 4)})

	c.Seek(99, "a")
	if st := c.Status(); st.State != types.PlaybackStopped || st.FrameIndex != 9 {
		t.Errorf("status after seek while stopped = %+v", st)
	}

	c.Start("a", StartOptions{})
	c.Seek(-4, "a")
	c.Seek(5, "a")
	sched.fire(1)

	want := []int{9, 0, 0, 5, 6}
	if got := rec.indices(); !equalInts(got, want) {
		t.Fatalf("emitted %v, want %v", got, want)
	}

	c.Seek(2, "b")
	sched.fire(2)
	last := rec.frames[len(rec.frames)-1]
	if last != nil {
		t.Fatalf("expected end of record b, got index %d", last.Index)
	}
}

func TestSetSpeedIgnoresInvalid(t *testing.T) {
	c, _, _ := newTestController(mapSource{})

	for _, s := range []float64{0, -1} {
		c.SetSpeed(s)
	}
	if got := c.Settings().Speed; got != 1.0 {
		t.Errorf("speed = %v, want 1.0", got)
	}
}

func TestSubscriberPanicIsolated(t *testing.T) {
	sched := &manualScheduler{}
	c := New(mapSource{"a": record("a", 2)}, WithScheduler(sched))

	c.Subscribe(func(*types.PlaybackFrame) { panic("boom") })
	rec := &recorder{}
	c.Subscribe(rec.cb)

	c.Start("a", StartOptions{})
	if len(rec.frames) != 1 {
		t.Fatalf("second subscriber got %d frames, want 1", len(rec.frames))
	}
}

func TestUnsubscribe(t *testing.T) {
	sched := &manualScheduler{}
	c := New(mapSource{"a": record("a", 3)}, WithScheduler(sched))

	rec := &recorder{}
	unsub := c.Subscribe(rec.cb)
	c.Start("a", StartOptions{})
	unsub()
	unsub()
	sched.fire(1)

	if len(rec.frames) != 1 {
		t.Errorf("got %d frames after unsubscribe, want 1", len(rec.frames))
	}
}

func TestSubscriberCanQueryStatus(t *testing.T) {
	sched := &manualScheduler{}
	c := New(mapSource{"a": record("a", 3)}, WithScheduler(sched))

	var seen []types.PlaybackStatus
	c.Subscribe(func(f *types.PlaybackFrame) { seen = append(seen, c.Status()) })

	c.Start("a", StartOptions{})
	sched.fire(1)

	if len(seen) != 2 {
		t.Fatalf("callback ran %d times, want 2", len(seen))
	}
	if seen[0].State != types.PlaybackPlaying || seen[0].FrameIndex != 0 {
		t.Errorf("status during first frame = %+v", seen[0])
	}
	if seen[1].FrameIndex != 1 {
		t.Errorf("status during second frame = %+v", seen[1])
	}
}

func TestSubscriberRestartsOnIdle(t *testing.T) {
	sched := &manualScheduler{}
	c := New(mapSource{"a": record("a", 2)}, WithScheduler(sched))

	rec := &recorder{}
	restarts := 0
	c.Subscribe(func(f *types.PlaybackFrame) {
		rec.cb(f)
		if f == nil && restarts == 0 {
			restarts++
			c.Start("a", StartOptions{})
		}
	})

	c.Start("a", StartOptions{})
	sched.fire(2)

	want := []int{0, 1, -1, 0}
	if got := rec.indices(); !equalInts(got, want) {
		t.Fatalf("emitted %v, want %v", got, want)
	}
	if st := c.Status(); st.State != types.PlaybackPlaying || st.FrameIndex != 0 {
		t.Errorf("status after restart = %+v", st)
	}
}

func TestNestedCallsKeepOrder(t *testing.T) {
	sched := &manualScheduler{}
	c := New(mapSource{"a": record("a", 10)}, WithScheduler(sched))

	rec := &recorder{}
	c.Subscribe(func(f *types.PlaybackFrame) {
		rec.cb(f)
		if f != nil && f.Index == 0 {
			c.Seek(5, "a")
			c.Stop()
		}
	})

	c.Start("a", StartOptions{})

	want := []int{0, 5, -1}
	if got := rec.indices(); !equalInts(got, want) {
		t.Fatalf("emitted %v, want %v", got, want)
	}
}

func TestConcurrentCallbacksDoNotDeadlock(t *testing.T) {
	c := New(mapSource{"a": record("a", 50)}, WithBaseFrameRate(1000))

	done := make(chan struct{})
	var once sync.Once
	c.Subscribe(func(f *types.PlaybackFrame) {
		_ = c.Status()
		if f == nil {
			once.Do(func() { close(done) })
		}
	})

	c.Start("a", StartOptions{Speed: 10})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not finish")
	}
}
