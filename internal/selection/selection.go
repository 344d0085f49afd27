// Package selection holds the set of selected media instances and the
// rectangle enclosing them.
package selection

import (
	"canvas/internal/domain"
	"canvas/internal/viewport"
)

// NotePadding is added to a note's measured size on both axes.
const NotePadding = 4.0

// NodeRef identifies a rendered node. It is a lookup key into the
// renderer's RenderIndex and never takes part in equality.
type NodeRef string

// RenderIndex resolves rendered nodes to their on-screen rectangles.
type RenderIndex interface {
	ClientRect(node NodeRef) (viewport.Rect, bool)
}

// Key is the identity of a selected instance.
type Key struct {
	Kind       domain.MediaKind `json:"kind"`
	ItemID     string           `json:"itemId"`
	InstanceID string           `json:"instanceId"`
}

// Entry is one selected instance together with its owning item.
// Exactly one of Preview or Container is set, according to Kind.
type Entry struct {
	Kind      domain.MediaKind
	Preview   *domain.Preview
	Container *domain.Container
	Instance  domain.Instance
	Node      NodeRef
}

func PreviewEntry(p *domain.Preview, in domain.Instance, node NodeRef) Entry {
	return Entry{Kind: domain.KindPreview, Preview: p, Instance: in, Node: node}
}

func ContainerEntry(c *domain.Container, in domain.Instance, node NodeRef) Entry {
	return Entry{Kind: domain.KindContainer, Container: c, Instance: in, Node: node}
}

// ItemID is the id of the owning preview or container.
func (e Entry) ItemID() string {
	switch {
	case e.Kind == domain.KindPreview && e.Preview != nil:
		return e.Preview.PreviewID
	case e.Kind == domain.KindContainer && e.Container != nil:
		return e.Container.ContainerID
	}
	return ""
}

func (e Entry) Key() Key {
	return Key{Kind: e.Kind, ItemID: e.ItemID(), InstanceID: e.Instance.InstanceID}
}

// IsSelected reports whether e is in entries, ignoring render handles.
func IsSelected(e Entry, entries []Entry) bool {
	k := e.Key()
	for _, s := range entries {
		if s.Key() == k {
			return true
		}
	}
	return false
}

// Lookup resolves items by id against the latest snapshot.
type Lookup interface {
	Preview(id string) (*domain.Preview, bool)
	Container(id string) (*domain.Container, bool)
}

// Model is the current selection. It is not safe for concurrent use; the
// owner serialises access.
type Model struct {
	entries   []Entry
	active    *Key
	bounds    viewport.Rect
	hasBounds bool
}

func New() *Model { return &Model{} }

// Select updates the selection with entries.
//
//   - combine=false replaces the selection.
//   - combine=true, xor=true toggles each entry (symmetric difference).
//   - combine=true, xor=false adds entries not already selected.
//
// Any active container focus is dropped.
func (m *Model) Select(entries []Entry, combine, xor bool) {
	incoming := dedupe(entries)
	switch {
	case !combine:
		m.entries = incoming
	case xor:
		m.entries = symmetricDifference(m.entries, incoming)
	default:
		next := append([]Entry(nil), m.entries...)
		for _, e := range incoming {
			if !IsSelected(e, next) {
				next = append(next, e)
			}
		}
		m.entries = next
	}
	m.active = nil
}

// Clear empties the selection and drops container focus.
func (m *Model) Clear() {
	m.entries = nil
	m.active = nil
	m.hasBounds = false
}

// SetActiveContainer focuses a container instance and makes it the only
// selected entry.
func (m *Model) SetActiveContainer(e Entry) {
	k := e.Key()
	m.entries = []Entry{e}
	m.active = &k
}

// ActiveContainer returns the focused container instance, if any.
func (m *Model) ActiveContainer() (Key, bool) {
	if m.active == nil {
		return Key{}, false
	}
	return *m.active, true
}

// Entries returns a copy of the selection in selection order.
func (m *Model) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

func (m *Model) Len() int { return len(m.entries) }

func (m *Model) IsSelected(k Key) bool {
	for _, e := range m.entries {
		if e.Key() == k {
			return true
		}
	}
	return false
}

// Rebind replaces every entry's item and instance with the latest values
// from lookup and drops entries whose instance no longer exists.
func (m *Model) Rebind(lookup Lookup) {
	kept := m.entries[:0]
	for _, e := range m.entries {
		switch e.Kind {
		case domain.KindPreview:
			p, ok := lookup.Preview(e.ItemID())
			if !ok {
				continue
			}
			i := p.FindInstance(e.Instance.InstanceID)
			if i < 0 {
				continue
			}
			e.Preview, e.Instance = p, p.Instances[i]
		case domain.KindContainer:
			c, ok := lookup.Container(e.ItemID())
			if !ok {
				continue
			}
			i := c.FindInstance(e.Instance.InstanceID)
			if i < 0 {
				continue
			}
			e.Container, e.Instance = c, c.Instances[i]
		default:
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	if m.active != nil && !m.IsSelected(*m.active) {
		m.active = nil
	}
}

// Refresh recomputes the bounding rectangle. Call it whenever the
// selection, the zoom or the underlying snapshots change.
func (m *Model) Refresh(zoom float64, index RenderIndex) {
	m.hasBounds = false
	for _, e := range m.entries {
		r, ok := BoundsOf(e, zoom, index)
		if !ok {
			continue
		}
		if !m.hasBounds {
			m.bounds, m.hasBounds = r, true
			continue
		}
		m.bounds = m.bounds.Union(r)
	}
}

// Bounds is the canvas-space rectangle enclosing the selection as of the
// last Refresh.
func (m *Model) Bounds() (viewport.Rect, bool) {
	return m.bounds, m.hasBounds
}

// BoundsOf returns the canvas-space rectangle of one entry. Notes are
// measured from their rendered node, so they report false when the node is
// not indexed.
func BoundsOf(e Entry, zoom float64, index RenderIndex) (viewport.Rect, bool) {
	x, y := e.Instance.X, e.Instance.Y
	switch e.Kind {
	case domain.KindPreview:
		if e.Preview == nil {
			return viewport.Rect{}, false
		}
		if e.Preview.IsNote() {
			if index == nil || zoom <= 0 {
				return viewport.Rect{}, false
			}
			cr, ok := index.ClientRect(e.Node)
			if !ok {
				return viewport.Rect{}, false
			}
			// Client rects already include the stage zoom.
			return viewport.Rect{X: x, Y: y, W: cr.W/zoom + NotePadding, H: cr.H/zoom + NotePadding}, true
		}
		scale := e.Instance.Scale
		if scale == 0 {
			scale = 1
		}
		return viewport.Rect{
			X: x, Y: y,
			W: e.Preview.Dimensions[0] * scale,
			H: e.Preview.Dimensions[1] * scale,
		}, true
	case domain.KindContainer:
		if e.Container == nil {
			return viewport.Rect{}, false
		}
		return viewport.Rect{
			X: x, Y: y,
			W: e.Container.Width,
			H: e.Container.Height - domain.ContainerMetaHeight,
		}, true
	}
	return viewport.Rect{}, false
}

func dedupe(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !IsSelected(e, out) {
			out = append(out, e)
		}
	}
	return out
}

// symmetricDifference keeps current entries not in incoming, followed by
// incoming entries not in current.
func symmetricDifference(current, incoming []Entry) []Entry {
	out := make([]Entry, 0, len(current)+len(incoming))
	for _, e := range current {
		if !IsSelected(e, incoming) {
			out = append(out, e)
		}
	}
	for _, e := range incoming {
		if !IsSelected(e, current) {
			out = append(out, e)
		}
	}
	return out
}
