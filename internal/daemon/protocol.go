package daemon

import (
	"encoding/json"
	"strings"
)

// Actions understood by the daemon.
const (
	ActionAddSyncTargets         = "add_sync_targets"
	ActionGetDaemonID            = "get_daemonId"
	ActionLinkAssetPreview       = "link_asset_preview"
	ActionLinkDirectoryContainer = "link_directory_container"
	ActionOpenInFinder           = "open_in_finder"
	ActionOpenInApp              = "open_in_app"
)

const (
	StatusSuccess   = "success"
	StatusAmbiguous = "ambiguous"
	StatusError     = "error"
)

const (
	TargetDirectory = "directory"
	TargetAsset     = "asset"

	ErrorNotFound = "not_found"
)

// Envelope is an outbound command.
type Envelope struct {
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
}

// DroppedFile describes one file handed to the daemon for ingestion.
type DroppedFile struct {
	FileName     string `json:"fileName"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	LastModified int64  `json:"lastModified"`
	// LocalURL is shown in place of the preview until its upload lands.
	LocalURL string `json:"-"`
}

// AddTargetsRequest is the data of an add_sync_targets command. The drop
// point is in canvas space.
type AddTargetsRequest struct {
	Files    []DroppedFile `json:"files"`
	CanvasID string        `json:"canvasId"`
	DropX    float64       `json:"dropX"`
	DropY    float64       `json:"dropY"`
}

// OpenRequest is the data of open_in_finder and open_in_app. Exactly one
// id is set.
type OpenRequest struct {
	AssetID     string `json:"assetId,omitempty"`
	DirectoryID string `json:"directoryId,omitempty"`
}

// Inbound is any message received from the daemon.
type Inbound struct {
	Action   string          `json:"action"`
	Status   string          `json:"status,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    json.RawMessage `json:"error,omitempty"`
	DaemonID string          `json:"daemonId,omitempty"`
}

// ErrorText renders the error field, which the daemon sends either as a
// string or as an object.
func (m Inbound) ErrorText() string {
	if len(m.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Error, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(m.Error))
}

// AddTargetsResult is the result of an add_sync_targets command.
type AddTargetsResult struct {
	Objects []TargetObject `json:"objects"`
}

// TargetObject is the outcome for one dropped file. Data holds a preview
// for assets and a container for directories on success, and an
// AmbiguousData for ambiguous targets.
type TargetObject struct {
	Status     string          `json:"status"`
	TargetType string          `json:"target_type"`
	ErrorType  string          `json:"error_type,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Target     DroppedFile     `json:"target"`
	Path       string          `json:"path,omitempty"`
}

type AmbiguousData struct {
	FileName string   `json:"fileName"`
	Paths    []string `json:"paths"`
}
