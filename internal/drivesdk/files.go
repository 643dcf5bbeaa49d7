package drivesdk

import (
	"context"
	"strconv"

	"github.com/imroc/req/v3"
)

const (
	v1FilesList     = "/api/v1/files/list"
	v1FilesMetadata = "/api/v1/files/metadata"
	v1FilesPin      = "/api/v1/files/pin"
)

type FilesAPI struct {
	client *req.Client
}

func newFilesAPI(client *req.Client) *FilesAPI {
	return &FilesAPI{
		client: client,
	}
}

// List returns one page of the items below params.Root, recursively.
// An empty NextCursor means there are no more pages.
func (f *FilesAPI) List(ctx context.Context, params *ListParams) (resp *ListResponse, err error) {
	r := f.client.R().
		SetContext(ctx).
		SetQueryParam("root", params.Root).
		SetSuccessResult(&resp)
	if params.Limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(params.Limit))
	}
	if params.Cursor != "" {
		r.SetQueryParam("cursor", params.Cursor)
	}

	res, err := r.Get(v1FilesList)
	if err := handleAPIError(res, err, "files list"); err != nil {
		return nil, err
	}

	if resp == nil {
		resp = &ListResponse{}
	}
	return resp, nil
}

// Metadata fetches fresh metadata for a single item. The id wins when the
// path is stale.
func (f *FilesAPI) Metadata(ctx context.Context, params *MetadataParams) (resp *Item, err error) {
	res, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("id", params.ID).
		SetQueryParam("path", params.Path).
		SetSuccessResult(&resp).
		Get(v1FilesMetadata)

	if err := handleAPIError(res, err, "files metadata"); err != nil {
		return nil, err
	}

	if resp == nil {
		return nil, ErrFileNotFound
	}
	return resp, nil
}

// SetPinned sets or clears the pin of a single item.
func (f *FilesAPI) SetPinned(ctx context.Context, params *PinParams) (resp *PinResponse, err error) {
	res, err := f.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&resp).
		Post(v1FilesPin)

	if err := handleAPIError(res, err, "files pin"); err != nil {
		return nil, err
	}

	if resp == nil {
		resp = &PinResponse{ID: params.ID, Pinned: params.Pinned}
	}
	return resp, nil
}
