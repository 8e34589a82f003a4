package playback

import (
	"sync"
	"time"
)

// CancelFunc stops a scheduled task. It is safe to call more than once.
type CancelFunc func()

// Scheduler runs tick periodically until cancelled. A tick already in flight
// when cancel is called may still run; the controller guards against that.
type Scheduler interface {
	Every(interval time.Duration, tick func()) CancelFunc
}

// TickerScheduler runs each task on its own goroutine driven by a time.Ticker
type TickerScheduler struct{}

// Every starts a ticker goroutine calling tick every interval
func (TickerScheduler) Every(interval time.Duration, tick func()) CancelFunc {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				tick()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
