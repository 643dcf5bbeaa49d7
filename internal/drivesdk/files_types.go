package drivesdk

// ItemType is the kind of a remote item
type ItemType string

const (
	ItemTypeFile      ItemType = "file"
	ItemTypeDirectory ItemType = "directory"
	ItemTypeHosted    ItemType = "hosted"
)

// Shortcut is set on items that point at another item
type Shortcut struct {
	TargetID   string `json:"target_id"`
	TargetPath string `json:"target_path,omitempty"`
}

// Item is the metadata of a remote file or directory
type Item struct {
	ID               string    `json:"id"`
	Path             string    `json:"path"`
	Size             int64     `json:"size"`
	Type             ItemType  `json:"type"`
	Pinned           bool      `json:"pinned"`
	AvailableOffline bool      `json:"available_offline"`
	CanPin           *bool     `json:"can_pin,omitempty"`
	Shortcut         *Shortcut `json:"shortcut,omitempty"`
}

type ListParams struct {
	Root   string `json:"root"`
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor,omitempty"`
}

type ListResponse struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"next_cursor"`
}

type MetadataParams struct {
	ID   string `json:"id"`
	Path string `json:"path,omitempty"`
}

type PinParams struct {
	ID     string `json:"id"`
	Path   string `json:"path,omitempty"`
	Pinned bool   `json:"pinned"`
}

type PinResponse struct {
	ID     string `json:"id"`
	Pinned bool   `json:"pinned"`
}
