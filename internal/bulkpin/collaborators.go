package bulkpin

import "context"

// SpaceProbe reports the free bytes of the filesystem holding path.
// An error or a negative result means the probe failed.
type SpaceProbe interface {
	FreeBytes(ctx context.Context, path string) (int64, error)
}

// ListParams selects the remote tree to enumerate.
type ListParams struct {
	Root     string
	PageSize int
}

// DirectoryLister starts paginated listings of the remote tree.
type DirectoryLister interface {
	StartQuery(ctx context.Context, params ListParams) (Query, error)
}

// Query is an open listing. NextPage returns an empty page with a nil error
// once all results have been delivered.
type Query interface {
	NextPage(ctx context.Context) ([]Metadata, error)
	Close() error
}

// PinIssuer sets or clears the pin on a single remote file.
type PinIssuer interface {
	SetPinned(ctx context.Context, id FileID, path string, pinned bool) error
}

// MetadataFetcher fetches fresh metadata for a single remote file.
type MetadataFetcher interface {
	GetMetadata(ctx context.Context, id FileID, path string) (*Metadata, error)
}
