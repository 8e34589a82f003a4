package ringbuffer

import (
	"testing"
	"time"

	"github.com/softbio/fallcapture/internal/types"
)

func frameAt(i int) types.Frame {
	return types.Frame{
		Grid:      [][]float64{{float64(i)}},
		Timestamp: time.Unix(int64(i), 0),
	}
}

func TestPushAndSnapshot(t *testing.T) {
	tests := []struct {
		name      string
		capacity  int
		pushes    int
		wantLen   int
		wantFirst int
	}{
		{name: "empty", capacity: 5, pushes: 0, wantLen: 0},
		{name: "partial", capacity: 5, pushes: 3, wantLen: 3, wantFirst: 0},
		{name: "exactly full", capacity: 5, pushes: 5, wantLen: 5, wantFirst: 0},
		{name: "wrapped once", capacity: 5, pushes: 7, wantLen: 5, wantFirst: 2},
		{name: "wrapped many times", capacity: 4, pushes: 103, wantLen: 4, wantFirst: 99},
		{name: "capacity one", capacity: 1, pushes: 9, wantLen: 1, wantFirst: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.capacity)
			for i := 0; i < tt.pushes; i++ {
				b.Push(frameAt(i))
				if n := len(b.Snapshot()); n > tt.capacity {
					t.Fatalf("snapshot length %d exceeds capacity %d", n, tt.capacity)
				}
			}

			snap := b.Snapshot()
			if len(snap) != tt.wantLen {
				t.Fatalf("expected %d frames, got %d", tt.wantLen, len(snap))
			}
			if b.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", b.Len(), tt.wantLen)
			}
			for i := range snap {
				want := tt.wantFirst + i
				if got := int(snap[i].Grid[0][0]); got != want {
					t.Errorf("frame %d: expected %d, got %d", i, want, got)
				}
				if i > 0 && snap[i].Timestamp.Before(snap[i-1].Timestamp) {
					t.Errorf("snapshot not chronological at %d", i)
				}
			}
			if tt.pushes > 0 && int(snap[len(snap)-1].Grid[0][0]) != tt.pushes-1 {
				t.Errorf("most recent frame should be last")
			}
		})
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	b := New(3)
	b.Push(frameAt(1))
	b.Push(frameAt(2))

	snap := b.Snapshot()
	b.Push(frameAt(3))
	b.Push(frameAt(4))

	if int(snap[0].Grid[0][0]) != 1 || int(snap[1].Grid[0][0]) != 2 {
		t.Fatalf("snapshot changed after further pushes: %v", snap)
	}
	snap[0] = frameAt(42)
	if int(b.Snapshot()[0].Grid[0][0]) == 42 {
		t.Fatalf("writing to snapshot mutated the buffer")
	}
}

func TestZeroCapacityClampedToOne(t *testing.T) {
	b := New(0)
	b.Push(frameAt(1))
	b.Push(frameAt(2))
	if b.Capacity() != 1 || b.Len() != 1 {
		t.Fatalf("expected capacity 1 with one frame, got cap=%d len=%d", b.Capacity(), b.Len())
	}
}
