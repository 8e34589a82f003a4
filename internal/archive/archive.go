// Package archive holds the in-memory catalogue of sealed capture records.
package archive

import (
	"errors"
	"sync"

	"github.com/softbio/fallcapture/internal/types"
)

// ErrNotFound is returned when no record matches a lookup
var ErrNotFound = errors.New("capture record not found")

// EventArchive owns sealed records for the life of the process. Records are
// kept in insertion order; the archive never synthesizes data.
type EventArchive struct {
	mu      sync.RWMutex
	records []*types.CaptureRecord
	byID    map[string]int
}

// New creates an empty archive
func New() *EventArchive {
	return &EventArchive{
		byID: make(map[string]int),
	}
}

// Append adds a sealed record at the tail. A record whose id is already
// present replaces the earlier entry and moves to the tail, so MostRecent
// always returns the last appended record.
func (a *EventArchive) Append(rec *types.CaptureRecord) {
	if rec == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if i, ok := a.byID[rec.ID]; ok {
		copy(a.records[i:], a.records[i+1:])
		a.records = a.records[:len(a.records)-1]
		for j := i; j < len(a.records); j++ {
			a.byID[a.records[j].ID] = j
		}
	}
	a.byID[rec.ID] = len(a.records)
	a.records = append(a.records, rec)
}

// Get returns the record with the given id
func (a *EventArchive) Get(id string) (*types.CaptureRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	i, ok := a.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.records[i], nil
}

// MostRecent returns the last appended record
func (a *EventArchive) MostRecent() (*types.CaptureRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.records) == 0 {
		return nil, ErrNotFound
	}
	return a.records[len(a.records)-1], nil
}

// List returns every record in insertion order
func (a *EventArchive) List() []*types.CaptureRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]*types.CaptureRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Len returns the number of archived records
func (a *EventArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}
