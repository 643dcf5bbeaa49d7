package client

import (
	"context"
	"log/slog"

	"github.com/openmined/bulkpin/internal/bulkpin"
	"github.com/openmined/bulkpin/internal/drivesdk"
)

// pumpEvents forwards the drive event feed to sink until ctx is done or the
// feed is closed.
func pumpEvents(ctx context.Context, events <-chan *drivesdk.Event, sink bulkpin.EventSink) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				slog.Debug("event feed closed")
				return
			}
			routeEvent(event, sink)
		}
	}
}

func routeEvent(event *drivesdk.Event, sink bulkpin.EventSink) {
	if event == nil {
		return
	}

	switch event.Type {
	case drivesdk.EventSyncStatus:
		if len(event.Sync) == 0 {
			return
		}
		batch := make([]bulkpin.SyncEvent, 0, len(event.Sync))
		for _, s := range event.Sync {
			batch = append(batch, bulkpin.SyncEvent{
				ID:               bulkpin.FileID(s.ID),
				Path:             s.Path,
				State:            bulkpin.SyncState(s.State),
				BytesTransferred: s.BytesTransferred,
				BytesToTransfer:  s.BytesToTransfer,
			})
		}
		sink.OnSyncingStatusUpdate(batch)

	case drivesdk.EventFileChange:
		if event.Change == nil {
			return
		}
		change := bulkpin.FileChange{ID: bulkpin.FileID(event.Change.ID), Path: event.Change.Path}
		switch event.Change.Kind {
		case drivesdk.ChangeCreated:
			sink.OnFileCreated(change)
		case drivesdk.ChangeModified:
			sink.OnFileModified(change)
		case drivesdk.ChangeDeleted:
			sink.OnFileDeleted(change)
		default:
			slog.Debug("unknown file change", "kind", event.Change.Kind, "id", event.Change.ID)
		}

	default:
		slog.Debug("unknown event", "type", event.Type)
	}
}
