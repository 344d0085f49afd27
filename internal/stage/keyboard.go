package stage

import (
	"canvas/internal/domain"
	"canvas/internal/viewport"
)

// DuplicateOffset is how far a duplicate lands from its source, on both
// axes, in canvas space.
const DuplicateOffset = 20.0

// Key codes, lowercased KeyboardEvent.code values.
const (
	KeySpace     = "space"
	KeyBackspace = "backspace"
	KeyDelete    = "delete"
	KeyPaste     = "keyv"
	KeyResetZoom = "digit0"
	KeyCopy      = "keyc"
	KeyEscape    = "escape"
)

type KeyEvent struct {
	Code   string `json:"code"`
	Repeat bool   `json:"repeat"`
}

func (c *Controller) KeyDown(ev KeyEvent) {
	if ev.Repeat {
		return
	}
	switch ev.Code {
	case KeySpace:
		c.spaceHeld = true
	case KeyBackspace, KeyDelete:
		c.DeleteSelected()
	case KeyPaste:
		c.DuplicateSelected()
	case KeyResetZoom:
		c.vp.ResetZoom(c.pointer)
	case KeyCopy:
		// Users press copy before paste out of habit; it must stay a no-op.
	case KeyEscape:
		c.abandonGesture()
	}
}

// abandonGesture drops a container-preview drag or box select in
// progress without writing anything.
func (c *Controller) abandonGesture() {
	switch c.state {
	case DraggingContainerPreview:
		if c.drag != nil {
			c.drag.Cancel()
		}
		c.dragOffset = viewport.Point{}
	case BoxSelecting:
		c.area = viewport.Rect{}
	default:
		return
	}
	c.state = Idle
	c.refresh()
}

func (c *Controller) KeyUp(ev KeyEvent) {
	if ev.Repeat {
		return
	}
	if ev.Code == KeySpace {
		c.spaceHeld = false
		if c.state == Panning {
			c.state = Idle
		}
	}
}

// DeleteSelected removes every selected instance from its owning item and
// clears the selection.
func (c *Controller) DeleteSelected() {
	entries := c.sel.Entries()
	if len(entries) == 0 {
		return
	}
	for _, e := range entries {
		switch e.Kind {
		case domain.KindPreview:
			c.mut.DeletePreviewInstance(e.ItemID(), e.Instance.InstanceID)
		case domain.KindContainer:
			c.mut.DeleteContainerInstance(e.ItemID(), e.Instance.InstanceID)
		}
	}
	c.sel.Clear()
	c.refresh()
}

// DuplicateSelected places a copy of every selected instance
// DuplicateOffset away and clears the selection. Copies are not selected.
func (c *Controller) DuplicateSelected() {
	entries := c.sel.Entries()
	if len(entries) == 0 {
		return
	}
	for _, e := range entries {
		src := e.Instance
		dup := domain.Instance{
			X:     src.X + DuplicateOffset,
			Y:     src.Y + DuplicateOffset,
			Scale: src.Scale,
		}
		switch e.Kind {
		case domain.KindPreview:
			dup.Text = src.Text
			dup.FontSize = src.FontSize
			c.mut.AddPreviewInstance(e.ItemID(), dup)
		case domain.KindContainer:
			c.mut.AddContainerInstance(e.ItemID(), dup)
		}
	}
	c.sel.Clear()
	c.refresh()
}
