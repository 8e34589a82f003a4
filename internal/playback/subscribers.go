package playback

import (
	"sync"

	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/types"
	"go.uber.org/zap"
)

// Callback receives replayed frames, or nil when playback goes idle.
// Callbacks must not modify the frame. They run outside the controller lock
// and may call any Controller method.
type Callback func(f *types.PlaybackFrame)

type subscriber struct {
	id uint64
	cb Callback
}

// Registry fans playback frames out to callbacks in registration order. A
// panicking callback is logged and does not stop delivery to the rest.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber
	logger *zap.SugaredLogger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.SugaredLogger) *Registry {
	return &Registry{logger: log.OrNop(logger)}
}

// Subscribe registers cb and returns a function that unregisters it
func (r *Registry) Subscribe(cb Callback) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscriber{id: id, cb: cb})

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers f to every current subscriber
func (r *Registry) Emit(f *types.PlaybackFrame) {
	r.mu.Lock()
	subs := make([]subscriber, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	for _, s := range subs {
		r.deliver(s, f)
	}
}

func (r *Registry) deliver(s subscriber, f *types.PlaybackFrame) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorw("playback subscriber panicked", "subscriber", s.id, "panic", p)
		}
	}()
	s.cb(f)
}

// Len returns the number of registered subscribers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
