// Package constants defines application-wide constants and version information.
package constants

import (
	"runtime"
	"time"
)

// Version holds the application version information
const Version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

// Deployment defaults. BaseFrameRate is shared by capture sizing and playback timing.
const (
	DefaultGridRows            = 15
	DefaultGridCols            = 12
	DefaultBaseFrameRate       = 15.0
	DefaultBufferCapacity      = 300 // ~20s at 15Hz
	DefaultPostCaptureDuration = 10 * time.Second
	DefaultTriggerProbability  = 0.5
	DefaultSweepInterval       = 200 * time.Millisecond

	DefaultImpactThreshold            = 0.7
	DefaultPreWindow                  = 15
	DefaultPostWindow                 = 15
	DefaultStabilityVelocityThreshold = 2.0
)
