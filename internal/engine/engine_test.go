package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/softbio/fallcapture/internal/archive"
	"github.com/softbio/fallcapture/internal/playback"
	"github.com/softbio/fallcapture/internal/types"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type manualScheduler struct {
	intervals []time.Duration
	ticks     []func()
	active    []bool
}

func (m *manualScheduler) Every(interval time.Duration, tick func()) playback.CancelFunc {
	i := len(m.ticks)
	m.intervals = append(m.intervals, interval)
	m.ticks = append(m.ticks, tick)
	m.active = append(m.active, true)
	return func() { m.active[i] = false }
}

func (m *manualScheduler) fire() {
	for i, tick := range m.ticks {
		if m.active[i] {
			tick()
		}
	}
}

func (m *manualScheduler) running() int {
	n := 0
	for _, a := range m.active {
		if a {
			n++
		}
	}
	return n
}

type testEngine struct {
	*Engine
	clock *fakeClock
	sched *manualScheduler
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	sched := &manualScheduler{}
	ids := 0
	e := New(DefaultConfig(),
		WithClock(clock),
		WithScheduler(sched),
		WithIDGenerator(func() string { ids++; return fmt.Sprintf("evt-%d", ids) }),
	)
	return &testEngine{Engine: e, clock: clock, sched: sched}
}

func (te *testEngine) frame(prob float64) types.Frame {
	g := make([][]float64, te.cfg.GridRows)
	for r := range g {
		g[r] = make([]float64, te.cfg.GridCols)
	}
	g[te.cfg.GridRows/2][te.cfg.GridCols/2] = 0.5
	return types.Frame{Grid: g, Timestamp: te.clock.Now(), FallProbability: prob}
}

func TestMinimalFallScenario(t *testing.T) {
	te := newTestEngine(t)
	step := time.Second / 15

	for i := 0; i < 20; i++ {
		prob := 0.05
		if i == 15 {
			prob = 0.9
		}
		if err := te.OnFrame(te.frame(prob)); err != nil {
			t.Fatalf("frame %d rejected: %v", i, err)
		}
		te.clock.Advance(step)
	}

	if len(te.ListEvents()) != 0 {
		t.Fatal("record sealed before the post-capture duration elapsed")
	}

	te.clock.Advance(10 * time.Second)
	if !te.Poll() {
		t.Fatal("Poll did not seal the expired capture")
	}

	events := te.ListEvents()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	rec := events[0]
	if !rec.FallDetected || rec.Analysis == nil {
		t.Fatalf("record = %+v, want fallDetected with analysis", rec)
	}
	if len(rec.Frames) != 20 {
		t.Errorf("record has %d frames, want 20", len(rec.Frames))
	}
	if rec.MaxFallProbability != 0.9 {
		t.Errorf("max probability = %v, want 0.9", rec.MaxFallProbability)
	}
	switch rec.Analysis.Type {
	case types.FallTypeTrip, types.FallTypeSlip, types.FallTypeSideway, types.FallTypeCollapse:
	default:
		t.Errorf("analysis type %q outside the fixed vocabulary", rec.Analysis.Type)
	}
}

func TestSimulateAndReplay(t *testing.T) {
	te := newTestEngine(t)

	rec, err := te.SimulateEvent(types.DirectionForward)
	if err != nil {
		t.Fatalf("SimulateEvent: %v", err)
	}

	var got []*types.PlaybackFrame
	te.OnPlaybackFrame(func(f *types.PlaybackFrame) { got = append(got, f) })

	if !te.StartPlayback(rec.ID, playback.StartOptions{Speed: 2}) {
		t.Fatal("StartPlayback returned false")
	}
	if want := time.Second / 30; te.sched.intervals[0] != want {
		t.Errorf("interval = %v, want %v", te.sched.intervals[0], want)
	}

	n := len(rec.Frames)
	for i := 0; i < n; i++ {
		te.sched.fire()
	}

	if len(got) != n+1 {
		t.Fatalf("got %d emissions, want %d", len(got), n+1)
	}
	for i := 0; i < n; i++ {
		if got[i] == nil || got[i].Index != i {
			t.Fatalf("emission %d = %+v, want index %d", i, got[i], i)
		}
	}
	if got[n] != nil {
		t.Errorf("final emission = %+v, want nil", got[n])
	}
	if st := te.Status(); st.State != types.PlaybackStopped {
		t.Errorf("state = %s, want stopped", st.State)
	}
	if te.sched.running() != 0 {
		t.Errorf("%d schedules still running", te.sched.running())
	}
}

func TestSimulateEventDirections(t *testing.T) {
	want := map[types.Direction]types.FallType{
		types.DirectionForward:  types.FallTypeTrip,
		types.DirectionBackward: types.FallTypeSlip,
		types.DirectionLeft:     types.FallTypeSideway,
		types.DirectionRight:    types.FallTypeSideway,
	}

	for d, ft := range want {
		t.Run(string(d), func(t *testing.T) {
			te := newTestEngine(t)
			rec, err := te.SimulateEvent(d)
			if err != nil {
				t.Fatalf("SimulateEvent: %v", err)
			}
			if !rec.Simulated {
				t.Error("record not flagged as simulated")
			}
			if rec.Analysis.Trajectory.Direction != d {
				t.Errorf("direction = %s, want %s", rec.Analysis.Trajectory.Direction, d)
			}
			if rec.Analysis.Type != ft {
				t.Errorf("type = %s, want %s", rec.Analysis.Type, ft)
			}
			if len(rec.Analysis.Trajectory.ImpactPoints) == 0 {
				t.Error("no impact points")
			}
			latest, err := te.MostRecentEvent()
			if err != nil || latest.ID != rec.ID {
				t.Errorf("MostRecentEvent = %v, %v", latest, err)
			}
		})
	}

	te := newTestEngine(t)
	if _, err := te.SimulateEvent("sideways"); !errors.Is(err, ErrUnknownDirection) {
		t.Errorf("err = %v, want ErrUnknownDirection", err)
	}
}

func TestEmptyArchive(t *testing.T) {
	te := newTestEngine(t)

	if rec, err := te.MostRecentEvent(); !errors.Is(err, archive.ErrNotFound) || rec != nil {
		t.Errorf("MostRecentEvent = %v, %v; want not found", rec, err)
	}
	if _, err := te.GetEvent("nope"); !errors.Is(err, archive.ErrNotFound) {
		t.Errorf("GetEvent err = %v, want ErrNotFound", err)
	}
	if te.StartPlayback("nope", playback.StartOptions{}) {
		t.Error("StartPlayback on an empty archive returned true")
	}
	if st := te.Status(); st.State != types.PlaybackStopped {
		t.Errorf("state = %s, want stopped", st.State)
	}
}

func TestOnFrameRejectsMalformed(t *testing.T) {
	te := newTestEngine(t)

	wrongShape := te.frame(0.1)
	wrongShape.Grid = wrongShape.Grid[1:]

	negative := te.frame(0.1)
	negative.Timestamp = time.Unix(-5, 0)

	badProb := te.frame(1.5)

	tests := []struct {
		name string
		f    types.Frame
		want error
	}{
		{"shape", wrongShape, types.ErrGridShape},
		{"timestamp", negative, types.ErrNegativeTimestamp},
		{"probability", badProb, types.ErrProbabilityRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := te.OnFrame(tt.f); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if te.buffer.Len() != 0 {
		t.Errorf("ring buffer holds %d frames after rejections", te.buffer.Len())
	}

	if err := te.OnFrame(te.frame(0.1)); err != nil {
		t.Fatalf("valid frame rejected: %v", err)
	}
	older := te.frame(0.1)
	older.Timestamp = older.Timestamp.Add(-time.Second)
	if err := te.OnFrame(older); !errors.Is(err, types.ErrOutOfOrder) {
		t.Errorf("err = %v, want ErrOutOfOrder", err)
	}
	if te.buffer.Len() != 1 {
		t.Errorf("ring buffer holds %d frames, want 1", te.buffer.Len())
	}
}

func TestOnFrameCopiesInput(t *testing.T) {
	te := newTestEngine(t)

	f := te.frame(0.9)
	if err := te.OnFrame(f); err != nil {
		t.Fatal(err)
	}
	f.Grid[0][0] = 42

	if got := te.buffer.Snapshot()[0].Grid[0][0]; got != 0 {
		t.Errorf("buffered cell = %v after caller mutation, want 0", got)
	}
}

func TestSealListenersAndRestore(t *testing.T) {
	te := newTestEngine(t)

	var sealed []string
	te.OnSealed(func(rec *types.CaptureRecord) { sealed = append(sealed, rec.ID) })

	if _, err := te.SimulateEvent(types.DirectionLeft); err != nil {
		t.Fatal(err)
	}
	if len(sealed) != 1 {
		t.Fatalf("listener saw %d records, want 1", len(sealed))
	}

	te.Restore([]*types.CaptureRecord{
		{ID: "old-1", CreatedAt: time.Unix(100, 0), Frames: []types.Frame{te.frame(0.1)}},
		nil,
	})
	if len(sealed) != 1 {
		t.Errorf("restore notified listeners")
	}
	rec, err := te.GetEvent("old-1")
	if err != nil {
		t.Fatalf("GetEvent(old-1): %v", err)
	}
	if rec.Analysis == nil || rec.Analysis.Type != types.FallTypeUnknown {
		t.Errorf("restored record analysis = %+v, want empty analysis", rec.Analysis)
	}
	if len(te.ListEvents()) != 2 {
		t.Errorf("archive holds %d records, want 2", len(te.ListEvents()))
	}
}
