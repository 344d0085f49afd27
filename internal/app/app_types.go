package app

import (
	"canvas/internal/domain"
	"canvas/internal/selection"
	"canvas/internal/viewport"
)

// MediaRef names one placed instance from the frontend.
type MediaRef struct {
	Kind       domain.MediaKind `json:"kind"`
	ItemID     string           `json:"itemId"`
	InstanceID string           `json:"instanceId"`
}

// NodeRect is the client rectangle of a rendered instance.
type NodeRect struct {
	InstanceID string        `json:"instanceId"`
	Rect       viewport.Rect `json:"rect"`
}

// DropInput is one file dropped on the stage. LocalURL is the object URL
// the frontend created for an immediate preview.
type DropInput struct {
	FileName     string `json:"fileName"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	LastModified int64  `json:"lastModified"`
	LocalURL     string `json:"localUrl"`
}

// StateView is everything the stage renders besides the snapshot.
type StateView struct {
	CanvasID   string               `json:"canvasId"`
	Viewport   viewport.Viewport    `json:"viewport"`
	Location   string               `json:"location"`
	Cursor     string               `json:"cursor"`
	Mode       string               `json:"mode"`
	Resizing   bool                 `json:"resizing"`
	Selection  []selection.Key      `json:"selection"`
	Active     *selection.Key       `json:"activeContainer,omitempty"`
	Bounds     *viewport.Rect       `json:"bounds,omitempty"`
	SelectArea *viewport.Rect       `json:"selectArea,omitempty"`
	DragOffset *viewport.Point      `json:"dragOffset,omitempty"`
	Nested     []string             `json:"nestedPreviews,omitempty"`
	Present    []domain.Participant `json:"present"`
	Self       domain.Participant   `json:"self"`
	Daemon     string               `json:"daemon"`
	DaemonID   string               `json:"daemonId,omitempty"`
}
