package domain

import (
	"context"
	"fmt"
	"time"
)

// NoteMimeType marks previews that render as sticky notes.
const NoteMimeType = "application/x-canvas-note"

// PreviewBaseWidth is the on-canvas width a freshly placed image or video
// is scaled to.
const PreviewBaseWidth = 150.0

// Instance is one placed occurrence of a preview or container. Containers
// never carry Text or FontSize.
type Instance struct {
	InstanceID string  `json:"instanceId" bson:"instanceId"`
	X          float64 `json:"X" bson:"X"`
	Y          float64 `json:"Y" bson:"Y"`
	Scale      float64 `json:"scale,omitempty" bson:"scale,omitempty"`
	Text       string  `json:"text,omitempty" bson:"text,omitempty"`
	FontSize   string  `json:"fontSize,omitempty" bson:"fontSize,omitempty"`
}

// Preview is a single placeable media item: image, video or note.
type Preview struct {
	PreviewID   string `json:"previewId" bson:"_id"`
	PreviewName string `json:"previewName" bson:"previewName"`
	AssetID     string `json:"assetId,omitempty" bson:"assetId,omitempty"`
	Name        string `json:"name" bson:"name"`
	URL         string `json:"url" bson:"url"`
	// UploadPreviewURL is a local object URL shown until the upload lands.
	// It only lives in memory.
	UploadPreviewURL string     `json:"uploadPreviewUrl,omitempty" bson:"-"`
	MimeType         string     `json:"mime_type" bson:"mime_type"`
	Dimensions       [2]float64 `json:"dimensions" bson:"dimensions"`
	ContainerID      string     `json:"containerId,omitempty" bson:"containerId,omitempty"`
	ContainerX       float64    `json:"containerX,omitempty" bson:"containerX,omitempty"`
	ContainerY       float64    `json:"containerY,omitempty" bson:"containerY,omitempty"`
	Linked           bool       `json:"linked" bson:"linked"`
	DaemonID         string     `json:"daemonId" bson:"daemonId"`
	Instances        []Instance `json:"instances" bson:"instances"`
	CreatedAt        time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt" bson:"updatedAt"`
}

func (p *Preview) IsNote() bool { return p.MimeType == NoteMimeType }

// Scale is the instance scale that fits the preview to PreviewBaseWidth.
func (p *Preview) Scale() float64 {
	if p.Dimensions[0] <= 0 {
		return 1
	}
	return PreviewBaseWidth / p.Dimensions[0]
}

// InContainer reports whether the container-relative coordinates apply.
func (p *Preview) InContainer() bool {
	return p.ContainerID != "" && p.Linked
}

// FindInstance returns the index of the instance with the given id, or -1.
func (p *Preview) FindInstance(instanceID string) int {
	return findInstance(p.Instances, instanceID)
}

// ReadOnlyFor reports whether the preview is owned by another daemon.
func (p *Preview) ReadOnlyFor(daemonID string) bool {
	return p.DaemonID != daemonID
}

type PreviewStore interface {
	CreatePreview(ctx context.Context, canvasID string, p *Preview) error
	GetPreview(ctx context.Context, canvasID, previewID string) (*Preview, error)
	ListPreviews(ctx context.Context, canvasID string) ([]Preview, error)
	// SetPreviewInstances overwrites the whole instance list of one preview.
	SetPreviewInstances(ctx context.Context, canvasID, previewID string, instances []Instance) error
	DeletePreview(ctx context.Context, canvasID, previewID string) error
}

func findInstance(list []Instance, instanceID string) int {
	for i := range list {
		if list[i].InstanceID == instanceID {
			return i
		}
	}
	return -1
}

// ValidateInstances checks that instance ids are unique within one list.
func ValidateInstances(list []Instance) error {
	seen := make(map[string]struct{}, len(list))
	for _, in := range list {
		if in.InstanceID == "" {
			return fmt.Errorf("instance without id")
		}
		if _, dup := seen[in.InstanceID]; dup {
			return fmt.Errorf("duplicate instance id %s", in.InstanceID)
		}
		seen[in.InstanceID] = struct{}{}
	}
	return nil
}
