package app

import (
	"fmt"

	"canvas/internal/daemon"
	"canvas/internal/domain"
	"canvas/internal/selection"
	"canvas/internal/service"
	"canvas/internal/stage"
	"canvas/internal/viewport"
)

// ============================================================
// Pointer & keyboard
// ============================================================

func (a *App) PointerDown(ev stage.PointerEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stage.PointerDown(ev)
	a.emitState()
}

func (a *App) PointerMove(ev stage.PointerEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stage.PointerMove(ev)
	a.emitState()
}

func (a *App) PointerUp(ev stage.PointerEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stage.PointerUp(ev)
	a.emitState()
}

func (a *App) PointerLeave() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stage.PointerLeave()
	a.emitState()
}

func (a *App) KeyDown(ev stage.KeyEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stage.KeyDown(ev)
	a.emitState()
}

func (a *App) KeyUp(ev stage.KeyEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stage.KeyUp(ev)
	a.emitState()
}

// Wheel reports whether the frontend must suppress native handling.
// Accepted events are applied on the next frame.
func (a *App) Wheel(ev viewport.WheelEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stage.Wheel(ev)
}

// SetViewportLocked stops wheel zoom and scroll, e.g. while a note is
// being edited.
func (a *App) SetViewportLocked(locked bool) {
	a.vp.SetLocked(locked)
}

// RestoreLocation applies a location string. It reports whether the pan
// had to be clamped.
func (a *App) RestoreLocation(location string) (bool, error) {
	v, clamped, err := viewport.ParseLocation(location)
	if err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.vp.Set(v)
	return clamped, nil
}

// ReportNodeRects updates the client rectangles of rendered instances.
func (a *App) ReportNodeRects(rects []NodeRect, replace bool) {
	a.index.report(rects, replace)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stage.RefreshBounds()
	a.emitState()
}

// ============================================================
// Media
// ============================================================

func (a *App) SelectMedia(ref MediaRef, shift bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, err := a.resolve(ref)
	if err != nil {
		return err
	}
	a.stage.SelectMedia(e, shift)
	a.emitState()
	return nil
}

// FocusContainer makes a container instance the active one.
func (a *App) FocusContainer(ref MediaRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, err := a.resolve(ref)
	if err != nil {
		return err
	}
	a.stage.FocusContainer(e)
	a.emitState()
	return nil
}

// BeginContainerDrag starts dragging previewID out of a container
// instance. It reports whether a drag session started.
func (a *App) BeginContainerDrag(ev stage.PointerEvent, container MediaRef, previewID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, err := a.resolve(container)
	if err != nil {
		return false, err
	}
	if e.Kind != domain.KindContainer {
		return false, fmt.Errorf("%s %s is not a container", kindName(container), container.ItemID)
	}
	for _, p := range e.Container.Previews {
		if p.PreviewID == previewID {
			started := a.stage.BeginContainerDrag(ev, e, p)
			a.emitState()
			return started, nil
		}
	}
	return false, fmt.Errorf("preview %s is not in container %s", previewID, container.ItemID)
}

// CreateNote places a note at a screen point. The note joins the
// selection once it lands.
func (a *App) CreateNote(screen viewport.Point, text, fontSize string) MediaRef {
	a.mu.Lock()
	defer a.mu.Unlock()
	at := a.vp.Viewport().ToCanvasSpace(screen)
	previewID, instanceID := a.sync.CreateNote(at.X, at.Y, text, fontSize)
	a.sync.MarkFresh(instanceID)
	return MediaRef{Kind: domain.KindPreview, ItemID: previewID, InstanceID: instanceID}
}

// MoveInstance commits a finished transform. Note text is preserved.
func (a *App) MoveInstance(ref MediaRef, x, y, scale float64) error {
	if scale <= 0 {
		return fmt.Errorf("scale must be positive, got %v", scale)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	e, err := a.resolve(ref)
	if err != nil {
		return err
	}
	in := e.Instance
	in.X, in.Y, in.Scale = x, y, scale
	a.update(e, in)
	return nil
}

// UpdateNote replaces the text and font size of a note instance.
func (a *App) UpdateNote(ref MediaRef, text, fontSize string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, err := a.resolve(ref)
	if err != nil {
		return err
	}
	if e.Preview == nil || !e.Preview.IsNote() {
		return fmt.Errorf("%s is not a note", ref.ItemID)
	}
	in := e.Instance
	in.Text, in.FontSize = text, fontSize
	a.update(e, in)
	return nil
}

// ============================================================
// Companion app
// ============================================================

// DropFiles hands files dropped at a screen point to the companion app.
func (a *App) DropFiles(files []DropInput, screen viewport.Point) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	dropped := make([]daemon.DroppedFile, len(files))
	for i, f := range files {
		dropped[i] = daemon.DroppedFile{
			FileName:     f.FileName,
			Size:         f.Size,
			Type:         f.Type,
			LastModified: f.LastModified,
			LocalURL:     f.LocalURL,
		}
	}
	drop := a.vp.Viewport().ToCanvasSpace(screen)
	return a.daemon.SubmitDrop(a.ctx, dropped, drop)
}

// OpenObject reveals the file behind an instance, in its application
// when inApp is set.
func (a *App) OpenObject(ref MediaRef, inApp bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, err := a.resolve(ref)
	if err != nil {
		return err
	}
	return a.daemon.OpenObject(a.ctx, e, inApp)
}

// ============================================================
// State
// ============================================================

func (a *App) GetState() StateView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateView()
}

func (a *App) GetSnapshot() *service.Snapshot {
	return a.sync.Snapshot()
}

// ApproveAction lets a pending agent action through.
func (a *App) ApproveAction(id string) { a.mcp.Approve(id) }

// RejectAction refuses a pending agent action.
func (a *App) RejectAction(id string) { a.mcp.Reject(id) }

// ── helpers ────────────────────────────────────────────────

func (a *App) resolve(r MediaRef) (selection.Entry, error) {
	e, ok := a.source.resolve(r)
	if !ok {
		return selection.Entry{}, fmt.Errorf("%s %s has no instance %s", kindName(r), r.ItemID, r.InstanceID)
	}
	return e, nil
}

func (a *App) update(e selection.Entry, in domain.Instance) {
	if e.Kind == domain.KindContainer {
		a.sync.UpdateContainerInstance(e.ItemID(), in)
		return
	}
	a.sync.UpdatePreviewInstance(e.ItemID(), in)
}

func kindName(r MediaRef) string {
	if r.Kind == "" {
		return "item"
	}
	return string(r.Kind)
}
