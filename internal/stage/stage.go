// Package stage is the pointer and keyboard state machine of the canvas.
// It turns raw input into pan, zoom, selection, drag and bulk commands.
package stage

import (
	"log/slog"
	"math"

	"canvas/internal/domain"
	"canvas/internal/drag"
	"canvas/internal/selection"
	"canvas/internal/viewport"
)

type State int

const (
	Idle State = iota
	Panning
	BoxSelecting
	DraggingContainerPreview
)

func (s State) String() string {
	switch s {
	case Panning:
		return "panning"
	case BoxSelecting:
		return "box-selecting"
	case DraggingContainerPreview:
		return "dragging-container-preview"
	default:
		return "idle"
	}
}

type Cursor string

const (
	CursorDefault  Cursor = "default"
	CursorGrab     Cursor = "grab"
	CursorGrabbing Cursor = "grabbing"
)

// TargetKind classifies the node under the pointer.
type TargetKind string

const (
	TargetStage         TargetKind = "stage"
	TargetSelectionArea TargetKind = "selectionArea"
	TargetResizeAnchor  TargetKind = "anchor"
	TargetMedia         TargetKind = "media"
)

type Target struct {
	Kind TargetKind        `json:"kind"`
	Key  selection.Key     `json:"key"`
	Node selection.NodeRef `json:"node"`
}

// PointerEvent carries a pointer position in screen space.
type PointerEvent struct {
	Screen viewport.Point `json:"screen"`
	Target Target         `json:"target"`
	Shift  bool           `json:"shift"`
}

// Viewport is the pan/zoom owner the stage drives.
type Viewport interface {
	Viewport() viewport.Viewport
	SetPan(p viewport.Point)
	Wheel(ev viewport.WheelEvent) bool
	ResetZoom(pointer viewport.Point)
}

// Source exposes the latest snapshot.
type Source interface {
	selection.Lookup
	// Placed lists every detached instance on the canvas.
	Placed() []selection.Entry
}

// Mutator issues remote writes. Every call returns immediately.
type Mutator interface {
	AddPreviewInstance(previewID string, in domain.Instance) string
	AddContainerInstance(containerID string, in domain.Instance) string
	DeletePreviewInstance(previewID, instanceID string)
	DeleteContainerInstance(containerID, instanceID string)
}

// Controller is not safe for concurrent use; the owner serialises input.
type Controller struct {
	state     State
	resizing  bool
	spaceHeld bool
	mouseDown bool
	pointer   viewport.Point

	panStart  viewport.Point
	panOrigin viewport.Point
	area      viewport.Rect

	// previews picked inside the focused container instance
	nested      []domain.Preview
	nestedOwner selection.Key
	dragOffset  viewport.Point

	vp     Viewport
	sel    *selection.Model
	drag   *drag.Controller
	source Source
	index  selection.RenderIndex
	mut    Mutator
	log    *slog.Logger
}

type Options struct {
	Viewport  Viewport
	Selection *selection.Model
	Drag      *drag.Controller
	Source    Source
	Index     selection.RenderIndex
	Mutator   Mutator
	Logger    *slog.Logger
}

func New(o Options) *Controller {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Selection == nil {
		o.Selection = selection.New()
	}
	return &Controller{
		vp:     o.Viewport,
		sel:    o.Selection,
		drag:   o.Drag,
		source: o.Source,
		index:  o.Index,
		mut:    o.Mutator,
		log:    o.Logger,
	}
}

func (c *Controller) State() State { return c.state }

// Resizing reports whether a transform handle is being dragged.
func (c *Controller) Resizing() bool { return c.resizing }

func (c *Controller) Selection() *selection.Model { return c.sel }

// Cursor is the affordance the stage should show.
func (c *Controller) Cursor() Cursor {
	switch {
	case c.spaceHeld && c.mouseDown:
		return CursorGrabbing
	case c.spaceHeld:
		return CursorGrab
	default:
		return CursorDefault
	}
}

// SelectArea is the box-select rectangle in canvas space while one is
// being drawn.
func (c *Controller) SelectArea() (viewport.Rect, bool) {
	if c.state != BoxSelecting {
		return viewport.Rect{}, false
	}
	return c.area.Normalize(), true
}

// DragOffset is where a container-preview drag should be drawn.
func (c *Controller) DragOffset() (viewport.Point, bool) {
	if c.state != DraggingContainerPreview {
		return viewport.Point{}, false
	}
	return c.dragOffset, true
}

// NestedSelection lists the previews picked inside the focused container
// instance.
func (c *Controller) NestedSelection() []domain.Preview {
	if k, ok := c.sel.ActiveContainer(); !ok || k != c.nestedOwner {
		return nil
	}
	return append([]domain.Preview(nil), c.nested...)
}

// ─────────────────────────────────────────────────────────────
// Pointer
// ─────────────────────────────────────────────────────────────

func (c *Controller) PointerDown(ev PointerEvent) {
	c.mouseDown = true
	c.pointer = ev.Screen
	vp := c.vp.Viewport()

	switch {
	case c.spaceHeld:
		c.state = Panning
		c.panStart = ev.Screen
		c.panOrigin = vp.Pan
	case ev.Target.Kind == TargetStage:
		at := vp.ToCanvasSpace(ev.Screen)
		if bounds, ok := c.sel.Bounds(); ok && bounds.Contains(at) {
			return
		}
		c.state = BoxSelecting
		c.area = viewport.Rect{X: at.X, Y: at.Y}
	case ev.Target.Kind == TargetResizeAnchor:
		c.resizing = true
	}
}

func (c *Controller) PointerMove(ev PointerEvent) {
	c.pointer = ev.Screen
	switch c.state {
	case DraggingContainerPreview:
		if off, ok := c.drag.Move(ev.Screen); ok {
			c.dragOffset = off
		}
	case Panning:
		if !c.spaceHeld {
			return
		}
		c.vp.SetPan(viewport.Point{
			X: math.Round(c.panOrigin.X - (c.panStart.X - ev.Screen.X)),
			Y: math.Round(c.panOrigin.Y - (c.panStart.Y - ev.Screen.Y)),
		})
	case BoxSelecting:
		at := c.vp.Viewport().ToCanvasSpace(ev.Screen)
		c.area.W = at.X - c.area.X
		c.area.H = at.Y - c.area.Y
	}
}

func (c *Controller) PointerUp(ev PointerEvent) {
	c.mouseDown = false
	c.pointer = ev.Screen
	prev := c.state
	c.state = Idle

	if c.drag != nil && c.drag.Active() {
		res := c.drag.Complete(ev.Screen)
		c.log.Debug("container drag finished", "outcome", res.Outcome.String(), "created", len(res.Created))
		c.sel.Select(nil, false, true)
	}

	// A box select completes whatever the pointer is released over.
	onBackground := ev.Target.Kind == TargetStage || ev.Target.Kind == TargetSelectionArea
	switch {
	case c.resizing:
	case prev == BoxSelecting:
		c.sel.Clear()
		if area := c.area.Normalize(); area.HasArea() {
			c.sel.Select(c.hits(area), false, true)
		}
	case onBackground:
		c.sel.Clear()
	}
	c.area = viewport.Rect{}
	c.resizing = false
	c.refresh()
}

// PointerLeave abandons a box select when the pointer leaves the window.
func (c *Controller) PointerLeave() {
	if c.state == BoxSelecting {
		c.state = Idle
		c.area = viewport.Rect{}
	}
}

// Wheel forwards wheel input to the viewport. The result says whether
// the native handling must be suppressed, which is always.
func (c *Controller) Wheel(ev viewport.WheelEvent) bool {
	c.pointer = ev.Pointer
	return c.vp.Wheel(ev)
}

// ─────────────────────────────────────────────────────────────
// Media
// ─────────────────────────────────────────────────────────────

// SelectMedia handles a press on a placed instance. Shift toggles it in
// the selection, otherwise it replaces the selection.
func (c *Controller) SelectMedia(e selection.Entry, shift bool) {
	if c.spaceHeld {
		return
	}
	c.sel.Select([]selection.Entry{e}, shift, true)
	c.refresh()
}

// FocusContainer makes a container instance the active one.
func (c *Controller) FocusContainer(e selection.Entry) {
	if c.spaceHeld {
		return
	}
	c.sel.SetActiveContainer(e)
	c.refresh()
}

// BeginContainerDrag handles a press on a preview nested in a container
// instance. With shift the preview joins the previews already picked in
// that instance, otherwise it is dragged alone.
func (c *Controller) BeginContainerDrag(ev PointerEvent, container selection.Entry, p domain.Preview) bool {
	if c.spaceHeld || container.Kind != domain.KindContainer {
		return false
	}
	c.mouseDown = true
	c.pointer = ev.Screen

	picked := c.NestedSelection()
	if ev.Shift {
		if !containsPreview(picked, p.PreviewID) {
			picked = append(picked, p)
		}
	} else {
		picked = []domain.Preview{p}
	}
	c.sel.SetActiveContainer(container)
	c.nested = picked
	c.nestedOwner = container.Key()
	c.refresh()

	in := container.Instance
	if !c.drag.Init(ev.Screen, picked, in.X, in.Y, in.InstanceID) {
		return false
	}
	c.state = DraggingContainerPreview
	c.dragOffset = viewport.Point{X: in.X, Y: in.Y}
	return true
}

// Reconcile runs after a snapshot lands: selected entries are rebound to
// the new records and fresh instances join the selection.
func (c *Controller) Reconcile(fresh []selection.Entry) {
	if c.source != nil {
		c.sel.Rebind(c.source)
	}
	c.AutoSelect(fresh)
}

// AutoSelect adds freshly created instances to the selection.
func (c *Controller) AutoSelect(fresh []selection.Entry) {
	var add []selection.Entry
	for _, e := range fresh {
		if !c.sel.IsSelected(e.Key()) {
			add = append(add, e)
		}
	}
	if len(add) > 0 {
		c.sel.Select(add, true, false)
	}
	c.refresh()
}

// RefreshBounds recomputes the selection rectangle, e.g. after a zoom.
func (c *Controller) RefreshBounds() { c.refresh() }

func (c *Controller) refresh() {
	c.sel.Refresh(c.vp.Viewport().Zoom, c.index)
}

func (c *Controller) hits(area viewport.Rect) []selection.Entry {
	if c.source == nil {
		return nil
	}
	zoom := c.vp.Viewport().Zoom
	var out []selection.Entry
	for _, e := range c.source.Placed() {
		r, ok := selection.BoundsOf(e, zoom, c.index)
		if ok && r.Intersects(area) {
			out = append(out, e)
		}
	}
	return out
}

func containsPreview(list []domain.Preview, id string) bool {
	for _, p := range list {
		if p.PreviewID == id {
			return true
		}
	}
	return false
}
