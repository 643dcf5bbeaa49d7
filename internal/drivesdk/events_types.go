package drivesdk

// EventType tells which payload of an Event is set
type EventType string

const (
	EventSyncStatus EventType = "sync_status"
	EventFileChange EventType = "file_change"
)

type SyncState string

const (
	SyncQueued     SyncState = "queued"
	SyncInProgress SyncState = "in_progress"
	SyncCompleted  SyncState = "completed"
	SyncFailed     SyncState = "failed"
)

// SyncStatus is the transfer state of one file at the sync engine
type SyncStatus struct {
	ID               string    `json:"id"`
	Path             string    `json:"path"`
	State            SyncState `json:"state"`
	BytesTransferred int64     `json:"bytes_transferred"`
	BytesToTransfer  int64     `json:"bytes_to_transfer"`
}

type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

type FileChange struct {
	Kind ChangeKind `json:"kind"`
	ID   string     `json:"id"`
	Path string     `json:"path"`
}

// Event is a message pushed by the drive service over the events socket
type Event struct {
	Type   EventType    `json:"type"`
	Sync   []SyncStatus `json:"sync,omitempty"`
	Change *FileChange  `json:"change,omitempty"`
}
