// Package ringbuffer keeps the most recent sensor frames for pre-event context.
package ringbuffer

import (
	"sync"

	"github.com/softbio/fallcapture/internal/types"
)

// FrameRingBuffer is a fixed-capacity rolling store of frames. When full, a
// push evicts the oldest frame.
type FrameRingBuffer struct {
	mu     sync.Mutex
	frames []types.Frame
	head   int // index of the oldest frame once the buffer has wrapped
	count  int
}

// New creates a ring buffer holding at most capacity frames
func New(capacity int) *FrameRingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameRingBuffer{
		frames: make([]types.Frame, capacity),
	}
}

// Push appends f at the tail, evicting the oldest frame when full
func (b *FrameRingBuffer) Push(f types.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.frames)
	if b.count < size {
		b.frames[(b.head+b.count)%size] = f
		b.count++
		return
	}
	b.frames[b.head] = f
	b.head = (b.head + 1) % size
}

// Snapshot returns a copy of the buffered frames, oldest first
func (b *FrameRingBuffer) Snapshot() []types.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]types.Frame, b.count)
	size := len(b.frames)
	for i := 0; i < b.count; i++ {
		out[i] = b.frames[(b.head+i)%size]
	}
	return out
}

// Len returns the number of buffered frames
func (b *FrameRingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity returns the maximum number of frames the buffer holds
func (b *FrameRingBuffer) Capacity() int {
	return len(b.frames)
}
