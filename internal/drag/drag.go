// Package drag implements pulling previews out of a container instance.
// Dropping outside the container copies the previews out as new detached
// instances; the nested previews are never moved.
package drag

import (
	"log/slog"

	"github.com/google/uuid"

	"canvas/internal/domain"
	"canvas/internal/viewport"
)

// Session is an in-progress drag. The zero value is the null session.
type Session struct {
	Previews            []domain.Preview
	Start               viewport.Point // pointer at press, canvas space
	Origin              viewport.Point // container instance position
	ContainerInstanceID string
}

// Null is the "no drag in progress" session.
var Null = Session{}

func (s Session) IsNull() bool {
	return len(s.Previews) == 0 && s.ContainerInstanceID == ""
}

type Outcome int

const (
	Aborted Outcome = iota
	DroppedInside
	CopiedOut
)

func (o Outcome) String() string {
	switch o {
	case DroppedInside:
		return "dropped-inside"
	case CopiedOut:
		return "copied-out"
	default:
		return "aborted"
	}
}

// Result describes how a drag ended. Created holds the ids of the new
// detached instances, in drag order.
type Result struct {
	Outcome Outcome
	Created []string
}

// Viewport is the current stage transform.
type Viewport interface {
	Viewport() viewport.Viewport
}

// ContainerLookup resolves containers from the latest snapshot.
type ContainerLookup interface {
	Container(id string) (*domain.Container, bool)
}

// RenderIndex locates the rendered node of a container instance. The
// rectangle is in screen space.
type RenderIndex interface {
	ContainerInstanceRect(instanceID string) (viewport.Rect, bool)
}

// Mutator writes new preview instances. AddPreviewInstance keeps a
// non-empty InstanceID and must not block.
type Mutator interface {
	AddPreviewInstance(previewID string, in domain.Instance) string
	MarkFresh(instanceID string)
}

// Controller tracks at most one drag session.
type Controller struct {
	session    Session
	vp         Viewport
	containers ContainerLookup
	index      RenderIndex
	mut        Mutator
	log        *slog.Logger
}

func New(vp Viewport, containers ContainerLookup, index RenderIndex, mut Mutator, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{vp: vp, containers: containers, index: index, mut: mut, log: logger}
}

// Init starts a session for previews nested in the container instance at
// origin. It reports false, leaving the null session, when there is
// nothing to drag.
func (c *Controller) Init(pointer viewport.Point, previews []domain.Preview, originX, originY float64, containerInstanceID string) bool {
	if len(previews) == 0 || containerInstanceID == "" {
		c.session = Null
		return false
	}
	c.session = Session{
		Previews:            append([]domain.Preview(nil), previews...),
		Start:               c.vp.Viewport().ToCanvasSpace(pointer),
		Origin:              viewport.Point{X: originX, Y: originY},
		ContainerInstanceID: containerInstanceID,
	}
	return true
}

// Active reports whether a session is in progress.
func (c *Controller) Active() bool { return !c.session.IsNull() }

func (c *Controller) Session() Session { return c.session }

// Move returns where the dragged group should be drawn. Nothing is
// written.
func (c *Controller) Move(pointer viewport.Point) (viewport.Point, bool) {
	if !c.Active() {
		return viewport.Point{}, false
	}
	cur := c.vp.Viewport().ToCanvasSpace(pointer)
	return c.session.Origin.Add(cur.Sub(c.session.Start)), true
}

// Cancel drops the session without writing.
func (c *Controller) Cancel() { c.session = Null }

// Complete ends the session at pointer. The session is null afterwards
// whatever the outcome.
func (c *Controller) Complete(pointer viewport.Point) Result {
	s := c.session
	c.session = Null

	if len(s.Previews) == 0 {
		c.log.Warn("complete drag: no previews")
		return Result{Outcome: Aborted}
	}
	containerID := s.Previews[0].ContainerID
	if _, ok := c.containers.Container(containerID); !ok {
		c.log.Warn("complete drag: container not found", "containerId", containerID)
		return Result{Outcome: Aborted}
	}
	screenRect, ok := c.index.ContainerInstanceRect(s.ContainerInstanceID)
	if !ok {
		c.log.Warn("complete drag: container instance node not found", "instanceId", s.ContainerInstanceID)
		return Result{Outcome: Aborted}
	}

	vp := c.vp.Viewport()
	drop := vp.ToCanvasSpace(pointer)
	if viewport.RectToCanvasSpace(screenRect, vp.Pan, vp.Zoom).Contains(drop) {
		return Result{Outcome: DroppedInside}
	}

	delta := drop.Sub(s.Start)
	res := Result{Outcome: CopiedOut}
	for i := range s.Previews {
		p := &s.Previews[i]
		in := domain.Instance{
			InstanceID: uuid.NewString(),
			X:          s.Origin.X + p.ContainerX + delta.X,
			Y:          s.Origin.Y + p.ContainerY + delta.Y,
			Scale:      p.Scale(),
		}
		c.mut.MarkFresh(in.InstanceID)
		res.Created = append(res.Created, c.mut.AddPreviewInstance(p.PreviewID, in))
	}
	return res
}
