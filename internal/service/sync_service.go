package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"canvas/internal/domain"
	"canvas/internal/selection"
)

// ─────────────────────────────────────────────────────────────
// Sync Service — live snapshots and optimistic instance writes
// ─────────────────────────────────────────────────────────────

// SyncService mirrors the previews and containers of one canvas and
// issues instance mutations against the store.
//
// Mutations are whole-array read-modify-write on the owning record and
// are not ordered against each other or against incoming snapshots: the
// last write of an item's instance list wins. A failed write raises an
// alert and is neither retried nor rolled back.
type SyncService struct {
	store   domain.Store
	emitter EventEmitter
	log     *slog.Logger
	writes  inflightWrites

	// publish orders build-and-notify across the two watchers
	publish sync.Mutex

	mu         sync.Mutex
	canvasID   string
	previews   []domain.Preview
	containers []domain.Container
	localURLs  map[string]string
	fresh      map[string]struct{}
	snap       *Snapshot
	listener   func(*Snapshot)
	stops      []func()
}

// NewSyncService creates a SyncService. A nil logger uses slog.Default.
func NewSyncService(store domain.Store, emitter EventEmitter, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{
		store:     store,
		emitter:   emitter,
		log:       logger,
		localURLs: make(map[string]string),
		fresh:     make(map[string]struct{}),
		snap:      buildSnapshot(nil, nil, nil),
	}
}

// OnSnapshot registers the listener called after every mapped snapshot.
// It runs on the watcher goroutine.
func (s *SyncService) OnSnapshot(fn func(*Snapshot)) {
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()
}

// Start subscribes to the previews and containers of canvasID.
func (s *SyncService) Start(ctx context.Context, canvasID string) error {
	s.Stop()

	s.mu.Lock()
	s.canvasID = canvasID
	s.previews, s.containers = nil, nil
	s.snap = buildSnapshot(nil, nil, nil)
	s.mu.Unlock()

	stopPreviews, err := s.store.WatchPreviews(ctx, canvasID, s.applyPreviews)
	if err != nil {
		return fmt.Errorf("watch previews: %w", err)
	}
	stopContainers, err := s.store.WatchContainers(ctx, canvasID, s.applyContainers)
	if err != nil {
		stopPreviews()
		return fmt.Errorf("watch containers: %w", err)
	}

	s.mu.Lock()
	s.stops = []func(){stopPreviews, stopContainers}
	s.mu.Unlock()
	s.log.Info("sync started", "canvasId", canvasID)
	return nil
}

// Stop ends the subscriptions. It is safe to call more than once.
func (s *SyncService) Stop() {
	s.mu.Lock()
	stops := s.stops
	s.stops = nil
	s.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

// CanvasID is the canvas passed to Start.
func (s *SyncService) CanvasID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvasID
}

// Snapshot returns the latest mapped snapshot. It must not be modified.
func (s *SyncService) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *SyncService) applyPreviews(list []domain.Preview) {
	s.apply(func() { s.previews = list })
}

func (s *SyncService) applyContainers(list []domain.Container) {
	s.apply(func() { s.containers = list })
}

// apply stores a raw collection, rebuilds the snapshot and notifies the
// listener. Listeners see snapshots in the order they were built.
func (s *SyncService) apply(set func()) {
	s.publish.Lock()
	defer s.publish.Unlock()

	s.mu.Lock()
	set()
	s.snap = buildSnapshot(s.previews, s.containers, s.localURLs)
	snap, listener := s.snap, s.listener
	s.mu.Unlock()

	if listener != nil {
		listener(snap)
	}
}

// RegisterLocalPreview remembers a local object URL to show for a preview
// until its upload lands.
func (s *SyncService) RegisterLocalPreview(previewName, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localURLs[previewName] = url
}

// MarkFresh flags an instance id to be auto-selected once it appears in a
// snapshot.
func (s *SyncService) MarkFresh(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fresh[instanceID] = struct{}{}
}

// TakeFresh returns the flagged instances present in snap and forgets
// them.
func (s *SyncService) TakeFresh(snap *Snapshot) []selection.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.fresh) == 0 {
		return nil
	}
	var out []selection.Entry
	for _, e := range snap.Placed() {
		if _, ok := s.fresh[e.Instance.InstanceID]; ok {
			delete(s.fresh, e.Instance.InstanceID)
			out = append(out, e)
		}
	}
	return out
}

// Wait blocks until in-flight writes finish or ctx is done.
func (s *SyncService) Wait(ctx context.Context) { s.writes.wait(ctx) }

// Pending reports the number of in-flight writes.
func (s *SyncService) Pending() int { return s.writes.pending() }

// ── Mutations ──────────────────────────────────────────────

// AddPreviewInstance appends in to a preview. An empty InstanceID is
// generated. The id is returned before the write lands.
func (s *SyncService) AddPreviewInstance(previewID string, in domain.Instance) string {
	if in.InstanceID == "" {
		in.InstanceID = uuid.NewString()
	}
	s.mutatePreview("add preview instance", previewID, func(list []domain.Instance) ([]domain.Instance, bool) {
		return append(list, in), true
	})
	return in.InstanceID
}

// UpdatePreviewInstance replaces the instance with in.InstanceID.
func (s *SyncService) UpdatePreviewInstance(previewID string, in domain.Instance) {
	s.mutatePreview("update preview instance", previewID, replaceInstance(in))
}

func (s *SyncService) DeletePreviewInstance(previewID, instanceID string) {
	s.mutatePreview("delete preview instance", previewID, removeInstance(instanceID))
}

// AddContainerInstance appends in to a container. Text and FontSize are
// dropped.
func (s *SyncService) AddContainerInstance(containerID string, in domain.Instance) string {
	if in.InstanceID == "" {
		in.InstanceID = uuid.NewString()
	}
	in.Text, in.FontSize = "", ""
	s.mutateContainer("add container instance", containerID, func(list []domain.Instance) ([]domain.Instance, bool) {
		return append(list, in), true
	})
	return in.InstanceID
}

func (s *SyncService) UpdateContainerInstance(containerID string, in domain.Instance) {
	in.Text, in.FontSize = "", ""
	s.mutateContainer("update container instance", containerID, replaceInstance(in))
}

func (s *SyncService) DeleteContainerInstance(containerID, instanceID string) {
	s.mutateContainer("delete container instance", containerID, removeInstance(instanceID))
}

// CreateNote creates a note preview with a single instance at (x, y) and
// returns the new preview and instance ids.
func (s *SyncService) CreateNote(x, y float64, text, fontSize string) (previewID, instanceID string) {
	now := time.Now()
	p := &domain.Preview{
		PreviewID:   uuid.NewString(),
		PreviewName: "note",
		Name:        "note",
		MimeType:    domain.NoteMimeType,
		Instances: []domain.Instance{{
			InstanceID: uuid.NewString(),
			X:          x,
			Y:          y,
			Scale:      1,
			Text:       text,
			FontSize:   fontSize,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	canvasID := s.CanvasID()
	s.run("create note", func(ctx context.Context) error {
		return s.store.CreatePreview(ctx, canvasID, p)
	})
	return p.PreviewID, p.Instances[0].InstanceID
}

// DeletePreview removes a preview with all of its instances.
func (s *SyncService) DeletePreview(previewID string) {
	canvasID := s.CanvasID()
	s.run("delete preview", func(ctx context.Context) error {
		return s.store.DeletePreview(ctx, canvasID, previewID)
	})
}

// errUnchanged marks a mutation that had nothing to write.
var errUnchanged = errors.New("unchanged")

func (s *SyncService) mutatePreview(op, previewID string, fn func([]domain.Instance) ([]domain.Instance, bool)) {
	canvasID := s.CanvasID()
	s.run(op, func(ctx context.Context) error {
		p, err := s.store.GetPreview(ctx, canvasID, previewID)
		if err != nil {
			return fmt.Errorf("get preview %s: %w", previewID, err)
		}
		next, changed := fn(append([]domain.Instance(nil), p.Instances...))
		if !changed {
			return errUnchanged
		}
		return s.store.SetPreviewInstances(ctx, canvasID, previewID, next)
	})
}

func (s *SyncService) mutateContainer(op, containerID string, fn func([]domain.Instance) ([]domain.Instance, bool)) {
	canvasID := s.CanvasID()
	s.run(op, func(ctx context.Context) error {
		c, err := s.store.GetContainer(ctx, canvasID, containerID)
		if err != nil {
			return fmt.Errorf("get container %s: %w", containerID, err)
		}
		next, changed := fn(append([]domain.Instance(nil), c.Instances...))
		if !changed {
			return errUnchanged
		}
		return s.store.SetContainerInstances(ctx, canvasID, containerID, next)
	})
}

// run performs write in its own goroutine and alerts on failure.
func (s *SyncService) run(op string, write func(ctx context.Context) error) {
	id := s.writes.begin(op)
	go func() {
		defer s.writes.done(id)
		ctx := context.Background()
		err := write(ctx)
		switch {
		case err == nil, errors.Is(err, errUnchanged):
			return
		}
		s.log.Error("store write failed", "op", op, "err", err)
		s.emitter.Alert(ctx, "Sync error", fmt.Sprintf("Error during %s: %v", op, err))
	}()
}

func replaceInstance(in domain.Instance) func([]domain.Instance) ([]domain.Instance, bool) {
	return func(list []domain.Instance) ([]domain.Instance, bool) {
		for i := range list {
			if list[i].InstanceID == in.InstanceID {
				list[i] = in
				return list, true
			}
		}
		return list, false
	}
}

func removeInstance(instanceID string) func([]domain.Instance) ([]domain.Instance, bool) {
	return func(list []domain.Instance) ([]domain.Instance, bool) {
		out := list[:0]
		for _, in := range list {
			if in.InstanceID != instanceID {
				out = append(out, in)
			}
		}
		return out, len(out) != len(list)
	}
}
