package domain

import (
	"context"
	"time"
)

// ContainerMetaHeight is the height of the name bar drawn above a
// container's body. It is part of the stored height.
const ContainerMetaHeight = 32.0

// Container is a folder-like grouping object. Previews is derived from
// linked previews whose ContainerID matches and is never persisted.
type Container struct {
	ContainerID string     `json:"containerId" bson:"_id"`
	DirectoryID string     `json:"directoryId,omitempty" bson:"directoryId,omitempty"`
	Name        string     `json:"name" bson:"name"`
	Width       float64    `json:"width" bson:"width"`
	Height      float64    `json:"height" bson:"height"`
	Linked      bool       `json:"linked" bson:"linked"`
	DaemonID    string     `json:"daemonId" bson:"daemonId"`
	Instances   []Instance `json:"instances" bson:"instances"`
	Previews    []Preview  `json:"previews,omitempty" bson:"-"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// ReadOnlyFor reports whether the container is owned by another daemon.
func (c *Container) ReadOnlyFor(daemonID string) bool {
	return c.DaemonID != daemonID
}

// FindInstance returns the index of the instance with the given id, or -1.
func (c *Container) FindInstance(instanceID string) int {
	return findInstance(c.Instances, instanceID)
}

type ContainerStore interface {
	CreateContainer(ctx context.Context, canvasID string, c *Container) error
	GetContainer(ctx context.Context, canvasID, containerID string) (*Container, error)
	ListContainers(ctx context.Context, canvasID string) ([]Container, error)
	// SetContainerInstances overwrites the whole instance list of one container.
	SetContainerInstances(ctx context.Context, canvasID, containerID string, instances []Instance) error
}
