package handlers

import (
	"sync"
	"time"

	"github.com/openmined/bulkpin/internal/bulkpin"
)

// ProgressTracker is a bulkpin.Observer that remembers the latest snapshot
// so it can be served over http.
type ProgressTracker struct {
	mu        sync.RWMutex
	progress  bulkpin.Progress
	updatedAt time.Time
	dropped   bool
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{}
}

func (t *ProgressTracker) OnProgress(p bulkpin.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = p
	t.updatedAt = time.Now()
}

func (t *ProgressTracker) OnDrop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropped = true
}

// Latest returns the last snapshot, when it arrived and whether the manager is gone.
func (t *ProgressTracker) Latest() (bulkpin.Progress, time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress, t.updatedAt, t.dropped
}
