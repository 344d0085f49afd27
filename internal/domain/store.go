package domain

import "context"

// MediaKind distinguishes the two collections an instance can live in.
type MediaKind string

const (
	KindPreview   MediaKind = "preview"
	KindContainer MediaKind = "container"
)

// Watcher delivers full collection snapshots, in arrival order, every
// time a collection of a canvas changes. The returned func stops the
// subscription.
type Watcher interface {
	WatchPreviews(ctx context.Context, canvasID string, fn func([]Preview)) (stop func(), err error)
	WatchContainers(ctx context.Context, canvasID string, fn func([]Container)) (stop func(), err error)
	WatchParticipants(ctx context.Context, canvasID string, fn func([]Participant)) (stop func(), err error)
}

// Store is the remote document store as the engine consumes it.
type Store interface {
	CanvasStore
	PreviewStore
	ContainerStore
	ParticipantStore
	Watcher
	Close() error
}
