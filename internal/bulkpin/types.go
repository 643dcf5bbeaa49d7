// Package bulkpin pins every file of a remote tree for offline use, after
// checking that the local cache has room for all of them.
package bulkpin

import (
	"fmt"
	"time"
)

const (
	// DefaultBlockSize is the local filesystem block size used to round up
	// the space each admitted file will occupy.
	DefaultBlockSize int64 = 4 << 10

	// DefaultSpaceMargin is kept free on the local disk after pinning.
	DefaultSpaceMargin int64 = 512 << 20

	DefaultReapInterval = 10 * time.Second
	DefaultPageSize     = 100
)

// FileID is the stable identifier of a remote file. It survives renames and moves.
type FileID string

// FileType is the kind of a remote item.
type FileType string

const (
	FileTypeFile      FileType = "file"
	FileTypeDirectory FileType = "directory"
	FileTypeHosted    FileType = "hosted"
)

// ShortcutDetails is set on items that merely point at another item.
type ShortcutDetails struct {
	TargetID   FileID `json:"target_id"`
	TargetPath string `json:"target_path,omitempty"`
}

// Metadata describes a remote file as reported by the lister or the metadata fetcher.
type Metadata struct {
	ID               FileID
	Path             string
	Size             int64
	Type             FileType
	Pinned           bool
	AvailableOffline bool
	// CanPin is nil when the remote side did not say. Only an explicit false disables pinning.
	CanPin   *bool
	Shortcut *ShortcutDetails
}

func (m *Metadata) String() string {
	return fmt.Sprintf("%s %q size=%d pinned=%t offline=%t", m.ID, m.Path, m.Size, m.Pinned, m.AvailableOffline)
}

// SyncState is the transfer state reported by the sync engine for one file.
type SyncState string

const (
	SyncStateQueued     SyncState = "queued"
	SyncStateInProgress SyncState = "in_progress"
	SyncStateCompleted  SyncState = "completed"
	SyncStateFailed     SyncState = "failed"
)

// SyncEvent is a single entry of a sync-status batch.
type SyncEvent struct {
	ID               FileID
	Path             string
	State            SyncState
	BytesTransferred int64
	BytesToTransfer  int64
}

// FileChange is a create, modify or delete notification from the event feed.
type FileChange struct {
	ID   FileID
	Path string
}

// Stage is the lifecycle state of a bulk pin run.
type Stage int

const (
	StageNotStarted Stage = iota
	StageStarted
	StageListingFiles
	StageSyncing

	// terminal stages
	StageSuccess
	StageStopped
	StageCannotGetFreeSpace
	StageCannotListFiles
	StageNotEnoughSpace
	StageFinishedWithError
)

var stageNames = map[Stage]string{
	StageNotStarted:         "NotStarted",
	StageStarted:            "Started",
	StageListingFiles:       "ListingFiles",
	StageSyncing:            "Syncing",
	StageSuccess:            "Success",
	StageStopped:            "Stopped",
	StageCannotGetFreeSpace: "CannotGetFreeSpace",
	StageCannotListFiles:    "CannotListFiles",
	StageNotEnoughSpace:     "NotEnoughSpace",
	StageFinishedWithError:  "FinishedWithError",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// MarshalText lets stages show up by name in JSON and logs.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	for stage, name := range stageNames {
		if name == string(text) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", text)
}

// IsTerminal reports whether the stage ends a run.
func (s Stage) IsTerminal() bool {
	return s >= StageSuccess
}

// IsError reports whether the stage is a terminal failure.
func (s Stage) IsError() bool {
	return s >= StageCannotGetFreeSpace
}

// isActive is true while the run accepts file change notifications.
func (s Stage) isActive() bool {
	return s == StageListingFiles || s == StageSyncing
}

// Progress is an immutable snapshot of the aggregate counters of a run.
type Progress struct {
	Stage              Stage `json:"stage"`
	RequiredSpace      int64 `json:"required_space"`
	AvailableDiskSpace int64 `json:"available_disk_space"`
	PinnedBytes        int64 `json:"pinned_bytes"`
	BytesToPin         int64 `json:"bytes_to_pin"`
	PinnedFiles        int   `json:"pinned_files"`
	SyncingFiles       int   `json:"syncing_files"`
	SkippedFiles       int   `json:"skipped_files"`
	FailedFiles        int   `json:"failed_files"`
}

// Percent returns the share of bytes pinned so far, between 0 and 100.
func (p Progress) Percent() float64 {
	if p.BytesToPin <= 0 {
		if p.Stage == StageSuccess {
			return 100
		}
		return 0
	}
	pct := float64(p.PinnedBytes) / float64(p.BytesToPin) * 100
	return min(pct, 100)
}

// Observer receives progress snapshots from a Manager.
type Observer interface {
	OnProgress(Progress)
	// OnDrop is called once when the manager is closed.
	OnDrop()
}

// DoneFunc is called exactly once per run with the final progress.
type DoneFunc func(Progress)
