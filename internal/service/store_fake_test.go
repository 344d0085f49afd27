package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	"canvas/internal/domain"
)

// memStore is an in-memory domain.Store that pushes a fresh snapshot to
// every watcher after each write, like a live document store.
type memStore struct {
	mu           sync.Mutex
	previews     map[string]domain.Preview
	containers   map[string]domain.Container
	participants map[string]domain.Participant
	writes       int
	failWrites   error

	previewFns     []func([]domain.Preview)
	containerFns   []func([]domain.Container)
	participantFns []func([]domain.Participant)
}

func newMemStore() *memStore {
	return &memStore{
		previews:     map[string]domain.Preview{},
		containers:   map[string]domain.Container{},
		participants: map[string]domain.Participant{},
	}
}

func (m *memStore) CreateCanvas(context.Context, *domain.Canvas) error { return nil }

func (m *memStore) GetCanvas(_ context.Context, id string) (*domain.Canvas, error) {
	return &domain.Canvas{ID: id}, nil
}

func (m *memStore) CreatePreview(_ context.Context, _ string, p *domain.Preview) error {
	m.mu.Lock()
	if m.failWrites != nil {
		m.mu.Unlock()
		return m.failWrites
	}
	m.writes++
	m.previews[p.PreviewID] = *p
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *memStore) GetPreview(_ context.Context, _ string, id string) (*domain.Preview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.previews[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.Instances = append([]domain.Instance(nil), p.Instances...)
	return &p, nil
}

func (m *memStore) ListPreviews(context.Context, string) ([]domain.Preview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previewListLocked(), nil
}

func (m *memStore) SetPreviewInstances(_ context.Context, _ string, id string, list []domain.Instance) error {
	m.mu.Lock()
	if m.failWrites != nil {
		m.writes++
		m.mu.Unlock()
		return m.failWrites
	}
	p, ok := m.previews[id]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	m.writes++
	p.Instances = list
	m.previews[id] = p
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *memStore) DeletePreview(_ context.Context, _ string, id string) error {
	m.mu.Lock()
	m.writes++
	delete(m.previews, id)
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *memStore) CreateContainer(_ context.Context, _ string, c *domain.Container) error {
	m.mu.Lock()
	m.writes++
	m.containers[c.ContainerID] = *c
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *memStore) GetContainer(_ context.Context, _ string, id string) (*domain.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c.Instances = append([]domain.Instance(nil), c.Instances...)
	return &c, nil
}

func (m *memStore) ListContainers(context.Context, string) ([]domain.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.containerListLocked(), nil
}

func (m *memStore) SetContainerInstances(_ context.Context, _ string, id string, list []domain.Instance) error {
	m.mu.Lock()
	c, ok := m.containers[id]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	m.writes++
	c.Instances = list
	m.containers[id] = c
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *memStore) Heartbeat(_ context.Context, _ string, p *domain.Participant) error {
	m.mu.Lock()
	m.participants[p.ID] = *p
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *memStore) ListParticipants(context.Context, string) ([]domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participantListLocked(), nil
}

func (m *memStore) WatchPreviews(_ context.Context, _ string, fn func([]domain.Preview)) (func(), error) {
	m.mu.Lock()
	m.previewFns = append(m.previewFns, fn)
	list := m.previewListLocked()
	m.mu.Unlock()
	fn(list)
	return func() {}, nil
}

func (m *memStore) WatchContainers(_ context.Context, _ string, fn func([]domain.Container)) (func(), error) {
	m.mu.Lock()
	m.containerFns = append(m.containerFns, fn)
	list := m.containerListLocked()
	m.mu.Unlock()
	fn(list)
	return func() {}, nil
}

func (m *memStore) WatchParticipants(_ context.Context, _ string, fn func([]domain.Participant)) (func(), error) {
	m.mu.Lock()
	m.participantFns = append(m.participantFns, fn)
	list := m.participantListLocked()
	m.mu.Unlock()
	fn(list)
	return func() {}, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memStore) notify() {
	m.mu.Lock()
	previews, containers, participants := m.previewListLocked(), m.containerListLocked(), m.participantListLocked()
	pf := append([]func([]domain.Preview){}, m.previewFns...)
	cf := append([]func([]domain.Container){}, m.containerFns...)
	af := append([]func([]domain.Participant){}, m.participantFns...)
	m.mu.Unlock()
	for _, fn := range pf {
		fn(previews)
	}
	for _, fn := range cf {
		fn(containers)
	}
	for _, fn := range af {
		fn(participants)
	}
}

func (m *memStore) previewListLocked() []domain.Preview {
	out := make([]domain.Preview, 0, len(m.previews))
	for _, p := range m.previews {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PreviewID < out[j].PreviewID })
	return out
}

func (m *memStore) containerListLocked() []domain.Container {
	out := make([]domain.Container, 0, len(m.containers))
	for _, c := range m.containers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContainerID < out[j].ContainerID })
	return out
}

func (m *memStore) participantListLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(m.participants))
	for _, p := range m.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var errBoom = errors.New("boom")
