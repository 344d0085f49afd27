package app

import (
	"sync"

	"canvas/internal/domain"
	"canvas/internal/selection"
	"canvas/internal/service"
	"canvas/internal/viewport"
)

// nodeIndex holds the client rectangles the frontend reports for rendered
// instances. Nodes are keyed by instance id.
type nodeIndex struct {
	mu    sync.RWMutex
	rects map[string]viewport.Rect
}

func newNodeIndex() *nodeIndex {
	return &nodeIndex{rects: make(map[string]viewport.Rect)}
}

func (ix *nodeIndex) ClientRect(node selection.NodeRef) (viewport.Rect, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	r, ok := ix.rects[string(node)]
	return r, ok
}

func (ix *nodeIndex) ContainerInstanceRect(instanceID string) (viewport.Rect, bool) {
	return ix.ClientRect(selection.NodeRef(instanceID))
}

// report stores rects. With replace set, nodes missing from rects are
// forgotten.
func (ix *nodeIndex) report(rects []NodeRect, replace bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if replace {
		ix.rects = make(map[string]viewport.Rect, len(rects))
	}
	for _, r := range rects {
		ix.rects[r.InstanceID] = r.Rect
	}
}

// liveSource exposes the latest snapshot with render handles attached.
type liveSource struct {
	sync *service.SyncService
}

func (s liveSource) Preview(id string) (*domain.Preview, bool) {
	return s.sync.Snapshot().Preview(id)
}

func (s liveSource) Container(id string) (*domain.Container, bool) {
	return s.sync.Snapshot().Container(id)
}

func (s liveSource) Placed() []selection.Entry {
	return withNodes(s.sync.Snapshot().Placed())
}

// resolve finds the placed instance ref points at.
func (s liveSource) resolve(ref MediaRef) (selection.Entry, bool) {
	in := domain.Instance{InstanceID: ref.InstanceID}
	switch ref.Kind {
	case domain.KindPreview:
		p, ok := s.Preview(ref.ItemID)
		if !ok {
			return selection.Entry{}, false
		}
		i := p.FindInstance(ref.InstanceID)
		if i < 0 {
			return selection.Entry{}, false
		}
		in = p.Instances[i]
		return selection.PreviewEntry(p, in, selection.NodeRef(in.InstanceID)), true
	case domain.KindContainer:
		c, ok := s.Container(ref.ItemID)
		if !ok {
			return selection.Entry{}, false
		}
		i := c.FindInstance(ref.InstanceID)
		if i < 0 {
			return selection.Entry{}, false
		}
		in = c.Instances[i]
		return selection.ContainerEntry(c, in, selection.NodeRef(in.InstanceID)), true
	}
	return selection.Entry{}, false
}

func withNodes(entries []selection.Entry) []selection.Entry {
	for i := range entries {
		entries[i].Node = selection.NodeRef(entries[i].Instance.InstanceID)
	}
	return entries
}
