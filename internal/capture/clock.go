package capture

import "time"

// Clock supplies wall-clock time to the capture window
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}
