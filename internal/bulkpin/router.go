package bulkpin

import (
	"context"
	"fmt"
)

// OnSyncingStatusUpdate applies a batch of sync-status events from the sync engine.
func (m *Manager) OnSyncingStatusUpdate(events []SyncEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	for _, event := range events {
		if m.onSyncingEventLocked(event) {
			changed = true
		}
	}
	if changed {
		m.notifyLocked()
	}
}

// OnSyncingEvent applies a single sync-status event. It returns true when the
// ledger changed.
func (m *Manager) OnSyncingEvent(event SyncEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := m.onSyncingEventLocked(event)
	if changed {
		m.notifyLocked()
	}
	return changed
}

func (m *Manager) onSyncingEventLocked(event SyncEvent) bool {
	if m.ledger.progress.Stage.IsTerminal() {
		return false
	}
	entry, ok := m.ledger.Get(event.ID)
	if !ok {
		return false
	}

	switch event.State {
	case SyncStateQueued:
		if m.ledger.MarkQueued(event.ID) {
			m.notifyLocked()
		}
		return false

	case SyncStateInProgress:
		// a zero size means the engine does not know it yet
		total := event.BytesToTransfer
		if total <= 0 {
			total = NoChange
		}
		changed := m.ledger.Update(event.ID, event.Path, event.BytesTransferred, total)
		if total != NoChange && m.ledger.MarkReported(event.ID) {
			changed = true
		}
		return changed

	case SyncStateCompleted:
		m.ledger.Remove(event.ID, event.Path, entry.Total)
		m.ledger.filePinned()
		m.logger.Debug("file pinned", "id", event.ID, "path", entry.Path)
		m.checkDoneLocked()
		return true

	case SyncStateFailed:
		m.ledger.Drop(event.ID)
		m.ledger.fileFailed()
		m.logger.Warn("file sync failed", "id", event.ID, "path", entry.Path)
		m.checkDoneLocked()
		return true

	default:
		m.logger.Debug("ignoring sync event", "id", event.ID, "state", event.State)
		return false
	}
}

// OnFileCreated admits a file created remotely while a run is listing or syncing.
func (m *Manager) OnFileCreated(change FileChange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ledger.progress.Stage.isActive() || m.ledger.Contains(change.ID) {
		return
	}

	gen, ctx, logger := m.gen, m.runCtx, m.logger
	m.spawn(func() {
		md, err := m.fetchMetadata(ctx, change.ID, change.Path)
		if ctx.Err() != nil {
			return
		}

		needsPin := false
		path := change.Path
		m.apply(gen, func() bool {
			if err != nil {
				logger.Warn("metadata for created file", "id", change.ID, "path", change.Path, "error", err)
				m.ledger.fileFailed()
				return true
			}
			if md.Path != "" {
				path = md.Path
			}
			skipped := m.ledger.progress.SkippedFiles
			if !m.ledger.Add(md, path) {
				return skipped != m.ledger.progress.SkippedFiles
			}
			if m.pinning {
				// once pinning started no listing will see this file again
				needsPin = m.ledger.ClaimPin(md.ID)
				if !needsPin {
					m.ledger.MarkQueued(md.ID)
				}
			}
			return true
		})

		if needsPin {
			if err := m.issuePin(ctx, gen, md.ID, path); err != nil {
				logger.Debug("pin request not issued", "id", md.ID, "error", err)
			}
		}
	})
}

// OnFileModified re-checks a tracked file after a remote change.
func (m *Manager) OnFileModified(change FileChange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ledger.progress.Stage.IsTerminal() || !m.ledger.Contains(change.ID) {
		return
	}

	gen, ctx := m.gen, m.runCtx
	m.spawn(func() {
		md, err := m.fetchMetadata(ctx, change.ID, change.Path)
		if ctx.Err() != nil {
			return
		}
		m.apply(gen, func() bool {
			return m.applyModifiedLocked(change, md, err)
		})
	})
}

func (m *Manager) applyModifiedLocked(change FileChange, md *Metadata, err error) bool {
	entry, ok := m.ledger.Get(change.ID)
	if !ok {
		return false
	}

	// an unverifiable modification cannot be kept
	if err != nil {
		m.logger.Warn("metadata for modified file", "id", change.ID, "path", change.Path, "error", err)
		m.ledger.Drop(change.ID)
		m.ledger.fileFailed()
		m.checkDoneLocked()
		return true
	}

	path := md.Path
	if path == "" {
		path = change.Path
	}

	switch {
	case md.Pinned && md.AvailableOffline:
		// the new size supersedes whatever was accumulated so far
		m.ledger.Update(change.ID, path, NoChange, max(md.Size, 0))
		m.ledger.Remove(change.ID, path, max(md.Size, 0))
		m.ledger.filePinned()
		m.checkDoneLocked()
		return true

	case !md.Pinned && entry.Pinned:
		// unpinned behind our back; re-pinning could loop with whoever unpinned it
		m.logger.Warn("file unpinned externally", "id", change.ID, "path", path)
		m.ledger.Drop(change.ID)
		m.ledger.fileFailed()
		m.checkDoneLocked()
		return true

	default:
		m.ledger.Rename(change.ID, path)
		return false
	}
}

// OnFileDeleted asks for the pin of a deleted file to be cleared, whether or
// not the file is tracked.
func (m *Manager) OnFileDeleted(change FileChange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	ctx := m.baseCtx
	logger := m.logger
	m.spawn(func() {
		if err := m.pinner.SetPinned(ctx, change.ID, change.Path, false); err != nil {
			logger.Warn("unpin deleted file", "id", change.ID, "path", change.Path, "error", err)
			return
		}
		logger.Debug("unpinned deleted file", "id", change.ID, "path", change.Path)
	})
}

// fetchMetadata wraps the MetadataFetcher so callers never see a nil
// result without an error.
func (m *Manager) fetchMetadata(ctx context.Context, id FileID, path string) (*Metadata, error) {
	md, err := m.fetcher.GetMetadata(ctx, id, path)
	if err == nil && md == nil {
		err = fmt.Errorf("no metadata for %s", id)
	}
	return md, err
}

// EventSink receives the push event feed. Manager implements it.
type EventSink interface {
	OnSyncingStatusUpdate(events []SyncEvent)
	OnFileCreated(change FileChange)
	OnFileModified(change FileChange)
	OnFileDeleted(change FileChange)
}

var _ EventSink = (*Manager)(nil)
