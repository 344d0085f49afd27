package service

import (
	"sort"

	"canvas/internal/domain"
	"canvas/internal/selection"
)

// Snapshot is the render-ready view of one canvas. Previews is in render
// order: images and videos first, notes last so they stay on top.
type Snapshot struct {
	Previews   []domain.Preview             `json:"previews"`
	Containers map[string]*domain.Container `json:"containers"`
	// ContainerPreviews indexes previews by container id, then preview id.
	ContainerPreviews map[string]map[string]domain.Preview `json:"containerPreviews"`

	previewIndex map[string]int
}

// Preview returns the mapped preview with the given id.
func (s *Snapshot) Preview(id string) (*domain.Preview, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.previewIndex[id]
	if !ok {
		return nil, false
	}
	return &s.Previews[i], true
}

// Container returns the mapped container with the given id.
func (s *Snapshot) Container(id string) (*domain.Container, bool) {
	if s == nil {
		return nil, false
	}
	c, ok := s.Containers[id]
	return c, ok
}

// Placed lists every detached instance as a selection entry, previews in
// render order followed by containers sorted by id.
func (s *Snapshot) Placed() []selection.Entry {
	if s == nil {
		return nil
	}
	var out []selection.Entry
	for i := range s.Previews {
		p := &s.Previews[i]
		for _, in := range p.Instances {
			out = append(out, selection.PreviewEntry(p, in, ""))
		}
	}
	for _, id := range s.containerIDs() {
		c := s.Containers[id]
		for _, in := range c.Instances {
			out = append(out, selection.ContainerEntry(c, in, ""))
		}
	}
	return out
}

func (s *Snapshot) containerIDs() []string {
	ids := make([]string, 0, len(s.Containers))
	for id := range s.Containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// buildSnapshot maps raw collections. Containers without instances are
// not materialised yet and are skipped, as are previews with no instances
// that do not belong to a materialised container. localURLs fills the
// upload preview of previews whose upload has not landed.
func buildSnapshot(rawPreviews []domain.Preview, rawContainers []domain.Container, localURLs map[string]string) *Snapshot {
	snap := &Snapshot{
		Containers:        make(map[string]*domain.Container),
		ContainerPreviews: make(map[string]map[string]domain.Preview),
		previewIndex:      make(map[string]int),
	}
	for _, c := range rawContainers {
		if len(c.Instances) == 0 {
			continue
		}
		c.Previews = nil
		snap.Containers[c.ContainerID] = &c
	}

	var media, notes []domain.Preview
	for _, p := range rawPreviews {
		_, known := snap.Containers[p.ContainerID]
		if len(p.Instances) == 0 && !(p.ContainerID != "" && known) {
			continue
		}
		if p.URL == "" {
			p.UploadPreviewURL = localURLs[p.PreviewName]
		}
		if p.IsNote() {
			notes = append(notes, p)
		} else {
			media = append(media, p)
		}
	}
	snap.Previews = append(media, notes...)

	for i, p := range snap.Previews {
		snap.previewIndex[p.PreviewID] = i
		if p.ContainerID == "" {
			continue
		}
		byID := snap.ContainerPreviews[p.ContainerID]
		if byID == nil {
			byID = make(map[string]domain.Preview)
			snap.ContainerPreviews[p.ContainerID] = byID
		}
		byID[p.PreviewID] = p
		if c, ok := snap.Containers[p.ContainerID]; ok && p.Linked {
			c.Previews = append(c.Previews, p)
		}
	}
	for _, c := range snap.Containers {
		sort.Slice(c.Previews, func(i, j int) bool { return c.Previews[i].PreviewID < c.Previews[j].PreviewID })
	}
	return snap
}
