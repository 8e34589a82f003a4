// Package storage defines interfaces and implementations for sealed capture record storage backends.
package storage

import (
	"context"
	"sync"

	"github.com/softbio/fallcapture/internal/types"
)

// StorageEngineInterface is an interface that provides a few standardized
// methods for various storage backends
type StorageEngineInterface interface {
	StartStorageEngine(context.Context, *sync.WaitGroup) chan<- *types.CaptureRecord
}

// RecordLoader is implemented by backends that can restore the archive on start
type RecordLoader interface {
	LoadAll(ctx context.Context) ([]*types.CaptureRecord, error)
}
