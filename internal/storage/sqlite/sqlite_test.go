package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/softbio/fallcapture/internal/storage"
	"github.com/softbio/fallcapture/internal/types"
	"github.com/softbio/fallcapture/pkg/config"
)

func testRecord(id string, created time.Time, ft types.FallType) *types.CaptureRecord {
	a := types.EmptyAnalysis()
	a.Type = ft
	a.Trajectory.Direction = types.DirectionForward
	return &types.CaptureRecord{
		ID:                 id,
		CreatedAt:          created,
		FallDetected:       true,
		MaxFallProbability: 0.9,
		Frames: []types.Frame{
			{Grid: [][]float64{{0.1, 0.2}}, Timestamp: created.Add(-time.Second), FallProbability: 0.1},
			{Grid: [][]float64{{0.9, 0.8}}, Timestamp: created, FallProbability: 0.9},
		},
		Analysis: a,
	}
}

func openTestStore(t *testing.T) *Storage {
	t.Helper()
	s, err := New(context.Background(), &config.SQLiteData{Path: filepath.Join(t.TempDir(), "events.db")}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Unix(1_700_000_000, 0).UTC()

	for _, rec := range []*types.CaptureRecord{
		testRecord("b", base.Add(time.Minute), types.FallTypeSlip),
		testRecord("a", base, types.FallTypeTrip),
	} {
		if err := s.StoreRecord(ctx, rec); err != nil {
			t.Fatalf("StoreRecord(%s): %v", rec.ID, err)
		}
	}

	all, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("LoadAll order = %v", ids(all))
	}

	got, err := s.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Analysis == nil || got.Analysis.Type != types.FallTypeSlip {
		t.Errorf("analysis = %+v", got.Analysis)
	}
	if len(got.Frames) != 2 || !got.Frames[1].Timestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("frames = %+v", got.Frames)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestStoreReplacesDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Unix(1_700_000_000, 0).UTC()

	if err := s.StoreRecord(ctx, testRecord("a", base, types.FallTypeTrip)); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreRecord(ctx, testRecord("a", base, types.FallTypeCollapse)); err != nil {
		t.Fatal(err)
	}

	all, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Analysis.Type != types.FallTypeCollapse {
		t.Errorf("records = %v", ids(all))
	}
}

func TestStorageEngineChannel(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	ch := s.StartStorageEngine(ctx, &wg)
	ch <- testRecord("via-chan", time.Unix(1_700_000_000, 0), types.FallTypeTrip)

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := s.Get(context.Background(), "via-chan"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("record never reached the store")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	wg.Wait()

	if h := s.CheckHealth(context.Background()); h.Status != storage.StatusHealthy {
		t.Errorf("health = %+v", h)
	}
}

func ids(recs []*types.CaptureRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
