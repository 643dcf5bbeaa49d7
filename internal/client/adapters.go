package client

import (
	"context"
	"errors"

	"github.com/openmined/bulkpin/internal/bulkpin"
	"github.com/openmined/bulkpin/internal/drivesdk"
)

// driveAdapter exposes the drive service through the bulkpin collaborator interfaces.
type driveAdapter struct {
	files *drivesdk.FilesAPI
}

var (
	_ bulkpin.DirectoryLister = (*driveAdapter)(nil)
	_ bulkpin.PinIssuer       = (*driveAdapter)(nil)
	_ bulkpin.MetadataFetcher = (*driveAdapter)(nil)
)

func newDriveAdapter(files *drivesdk.FilesAPI) *driveAdapter {
	return &driveAdapter{files: files}
}

func (a *driveAdapter) StartQuery(_ context.Context, params bulkpin.ListParams) (bulkpin.Query, error) {
	if params.Root == "" {
		return nil, errors.New("list root is required")
	}
	return &driveQuery{
		files: a.files,
		root:  params.Root,
		limit: params.PageSize,
	}, nil
}

func (a *driveAdapter) SetPinned(ctx context.Context, id bulkpin.FileID, path string, pinned bool) error {
	_, err := a.files.SetPinned(ctx, &drivesdk.PinParams{
		ID:     string(id),
		Path:   path,
		Pinned: pinned,
	})
	return err
}

func (a *driveAdapter) GetMetadata(ctx context.Context, id bulkpin.FileID, path string) (*bulkpin.Metadata, error) {
	item, err := a.files.Metadata(ctx, &drivesdk.MetadataParams{
		ID:   string(id),
		Path: path,
	})
	if err != nil {
		return nil, err
	}
	md := toMetadata(item)
	return &md, nil
}

// driveQuery walks the cursor pages of one listing.
type driveQuery struct {
	files  *drivesdk.FilesAPI
	root   string
	limit  int
	cursor string
	done   bool
}

func (q *driveQuery) NextPage(ctx context.Context) ([]bulkpin.Metadata, error) {
	for !q.done {
		resp, err := q.files.List(ctx, &drivesdk.ListParams{
			Root:   q.root,
			Limit:  q.limit,
			Cursor: q.cursor,
		})
		if err != nil {
			return nil, err
		}

		q.cursor = resp.NextCursor
		q.done = resp.NextCursor == ""

		// an empty page only ends the listing when there is no cursor left
		if len(resp.Items) == 0 {
			continue
		}

		page := make([]bulkpin.Metadata, 0, len(resp.Items))
		for i := range resp.Items {
			page = append(page, toMetadata(&resp.Items[i]))
		}
		return page, nil
	}
	return nil, nil
}

func (q *driveQuery) Close() error {
	q.done = true
	return nil
}

func toMetadata(item *drivesdk.Item) bulkpin.Metadata {
	md := bulkpin.Metadata{
		ID:               bulkpin.FileID(item.ID),
		Path:             item.Path,
		Size:             item.Size,
		Type:             toFileType(item.Type),
		Pinned:           item.Pinned,
		AvailableOffline: item.AvailableOffline,
		CanPin:           item.CanPin,
	}
	if item.Shortcut != nil {
		md.Shortcut = &bulkpin.ShortcutDetails{
			TargetID:   bulkpin.FileID(item.Shortcut.TargetID),
			TargetPath: item.Shortcut.TargetPath,
		}
	}
	return md
}

func toFileType(t drivesdk.ItemType) bulkpin.FileType {
	switch t {
	case drivesdk.ItemTypeDirectory:
		return bulkpin.FileTypeDirectory
	case drivesdk.ItemTypeHosted:
		return bulkpin.FileTypeHosted
	default:
		return bulkpin.FileTypeFile
	}
}
