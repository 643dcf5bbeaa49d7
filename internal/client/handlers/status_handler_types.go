package handlers

import "github.com/openmined/bulkpin/internal/bulkpin"

// StatusResponse represents the health of the service and the current run.
type StatusResponse struct {
	Status    string   `json:"status"`    // health status ("ok").
	Timestamp string   `json:"ts"`        // timestamp when the status was taken.
	Version   string   `json:"version"`   // version of the client.
	Revision  string   `json:"revision"`  // revision of the client.
	BuildDate string   `json:"buildDate"` // build date of the client.
	Run       *RunInfo `json:"run"`
}

// RunInfo is the progress of the bulk pin run.
type RunInfo struct {
	bulkpin.Progress

	Percent   float64 `json:"percent"`
	UpdatedAt string  `json:"updated_at,omitempty"`
	// Dropped is set once the manager has shut down for good.
	Dropped bool `json:"dropped"`

	PinnedBytesHuman   string `json:"pinned_bytes_human"`
	BytesToPinHuman    string `json:"bytes_to_pin_human"`
	RequiredSpaceHuman string `json:"required_space_human"`
	AvailableHuman     string `json:"available_disk_space_human"`
}
