// Package progress holds the two progress arenas of an ingestion run: the
// upload-phase Tracker and the compression-phase CompressionTracker.
package progress

import (
	"sync"

	"github.com/carloz138/catalogo-magico-mx-sub005/models"
)

// Tracker aggregates upload-phase counts. Uploaded+Failed never exceeds Total.
type Tracker struct {
	mu       sync.Mutex
	state    models.IngestionProgress
	onChange func(models.IngestionProgress)
}

// NewTracker starts a tracker for total records. onChange, if set, receives
// a snapshot after every mutation.
func NewTracker(total int, onChange func(models.IngestionProgress)) *Tracker {
	if total < 0 {
		total = 0
	}
	return &Tracker{state: models.IngestionProgress{Total: total}, onChange: onChange}
}

// RecordSuccess counts n persisted records.
func (t *Tracker) RecordSuccess(n int) {
	t.update(func(s *models.IngestionProgress) {
		s.Uploaded += clamp(n, s.Total-s.Uploaded-s.Failed)
	})
}

// RecordFailure counts n records lost to a failed batch.
func (t *Tracker) RecordFailure(n int) {
	t.update(func(s *models.IngestionProgress) {
		s.Failed += clamp(n, s.Total-s.Uploaded-s.Failed)
	})
}

// RecordRecovered moves n records from failed to uploaded after a resubmitted
// batch succeeds.
func (t *Tracker) RecordRecovered(n int) {
	t.update(func(s *models.IngestionProgress) {
		n = clamp(n, s.Failed)
		s.Failed -= n
		s.Uploaded += n
	})
}

// SetCurrent sets the label of the unit in flight.
func (t *Tracker) SetCurrent(label string) {
	t.update(func(s *models.IngestionProgress) { s.CurrentLabel = label })
}

// SetRetrying flags whether the writer is waiting out a backoff.
func (t *Tracker) SetRetrying(retrying bool) {
	t.update(func(s *models.IngestionProgress) { s.Retrying = retrying })
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() models.IngestionProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Complete reports whether every record was uploaded.
func (t *Tracker) Complete() bool {
	s := t.Snapshot()
	return s.Uploaded == s.Total
}

func (t *Tracker) update(fn func(*models.IngestionProgress)) {
	t.mu.Lock()
	fn(&t.state)
	snap := t.state
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(snap)
	}
}

func clamp(n, room int) int {
	if n < 0 {
		return 0
	}
	if n > room {
		return room
	}
	return n
}
