package bulkpin

import (
	"context"
	"log/slog"
	"time"
)

// reap periodically finalizes files the sync engine never reports on, such as
// empty files and hosted documents. It runs until ctx is done.
func (m *Manager) reap(ctx context.Context, gen uint64) {
	// a timer and not a ticker, so slow fetches do not queue up ticks
	timer := time.NewTimer(m.cfg.ReapInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.reapOnce(ctx, gen)
			timer.Reset(m.cfg.ReapInterval)
		}
	}
}

// reapOnce checks every unstarted file once and returns how many were finalized.
func (m *Manager) reapOnce(ctx context.Context, gen uint64) int {
	var (
		candidates map[FileID]string
		logger     *slog.Logger
	)
	if !m.apply(gen, func() bool {
		candidates = m.ledger.Unstarted()
		logger = m.logger
		return false
	}) {
		return 0
	}
	if len(candidates) == 0 {
		return 0
	}

	logger.Debug("reaper", "candidates", len(candidates))
	reaped := 0
	for id, path := range candidates {
		md, err := m.fetchMetadata(ctx, id, path)
		if ctx.Err() != nil {
			return reaped
		}
		if err != nil {
			logger.Debug("reaper metadata", "id", id, "path", path, "error", err)
			continue
		}
		if !md.AvailableOffline && md.Size != 0 {
			continue
		}

		m.apply(gen, func() bool {
			if !m.ledger.Remove(id, md.Path, max(md.Size, 0)) {
				return false
			}
			m.ledger.filePinned()
			reaped++
			m.checkDoneLocked()
			return true
		})
	}

	if reaped > 0 {
		logger.Info("reaper finalized files", "count", reaped)
	}
	return reaped
}
