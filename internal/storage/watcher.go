package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"canvas/internal/domain"
)

// DefaultPollInterval is how often a watch re-checks its fingerprint when
// nothing woke it up.
const DefaultPollInterval = 500 * time.Millisecond

// SnapshotWatcher turns the SQL tables into live collections. Each watch
// polls a cheap fingerprint (row count, revision sum, last update) and
// re-lists the collection when it moves. Local writes and, for SQLite,
// file changes from other processes wake the poll early.
type SnapshotWatcher struct {
	db           *DB
	previews     *PreviewStore
	containers   *ContainerStore
	participants *ParticipantStore
	interval     time.Duration
	log          *slog.Logger
}

func NewSnapshotWatcher(db *DB, interval time.Duration, logger *slog.Logger) *SnapshotWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotWatcher{
		db:           db,
		previews:     NewPreviewStore(db),
		containers:   NewContainerStore(db),
		participants: NewParticipantStore(db),
		interval:     interval,
		log:          logger,
	}
}

func (w *SnapshotWatcher) WatchPreviews(ctx context.Context, canvasID string, fn func([]domain.Preview)) (func(), error) {
	return w.watch(ctx, "previews", canvasID, func(ctx context.Context) error {
		list, err := w.previews.ListPreviews(ctx, canvasID)
		if err != nil {
			return err
		}
		fn(list)
		return nil
	})
}

func (w *SnapshotWatcher) WatchContainers(ctx context.Context, canvasID string, fn func([]domain.Container)) (func(), error) {
	return w.watch(ctx, "containers", canvasID, func(ctx context.Context) error {
		list, err := w.containers.ListContainers(ctx, canvasID)
		if err != nil {
			return err
		}
		fn(list)
		return nil
	})
}

func (w *SnapshotWatcher) WatchParticipants(ctx context.Context, canvasID string, fn func([]domain.Participant)) (func(), error) {
	return w.watch(ctx, "participants", canvasID, func(ctx context.Context) error {
		list, err := w.participants.ListParticipants(ctx, canvasID)
		if err != nil {
			return err
		}
		fn(list)
		return nil
	})
}

// fingerprint summarises one canvas collection. table is one of the
// constant table names above.
func (w *SnapshotWatcher) fingerprint(ctx context.Context, table, canvasID string) (string, error) {
	var count, revs, updated int64
	err := w.db.queryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(rev), 0), COALESCE(MAX(updated_at), 0) FROM `+table+` WHERE canvas_id = ?`, canvasID,
	).Scan(&count, &revs, &updated)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", table, err)
	}
	return fmt.Sprintf("%d:%d:%d", count, revs, updated), nil
}

// watch delivers the current collection, then re-delivers it on every
// fingerprint change until stop is called or ctx ends. Deliveries happen
// on a single goroutine, in order.
func (w *SnapshotWatcher) watch(ctx context.Context, table, canvasID string, deliver func(context.Context) error) (func(), error) {
	last, err := w.fingerprint(ctx, table, canvasID)
	if err != nil {
		return nil, err
	}
	if err := deliver(ctx); err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	wake, unsubscribe := w.db.subscribe()
	files := w.watchFiles()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer unsubscribe()
		if files != nil {
			defer files.Close()
		}
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		var fsEvents <-chan fsnotify.Event
		var fsErrors <-chan error
		if files != nil {
			fsEvents, fsErrors = files.Events, files.Errors
		}
		base := filepath.Base(w.db.Path())

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-wake:
			case ev, ok := <-fsEvents:
				if !ok {
					fsEvents = nil
					continue
				}
				if !strings.HasPrefix(filepath.Base(ev.Name), base) {
					continue
				}
			case err, ok := <-fsErrors:
				if !ok {
					fsErrors = nil
					continue
				}
				w.log.Warn("snapshot watcher file error", "err", err)
				continue
			}

			fp, err := w.fingerprint(ctx, table, canvasID)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Warn("snapshot poll failed", "table", table, "err", err)
				}
				continue
			}
			if fp == last {
				continue
			}
			if err := deliver(ctx); err != nil {
				if ctx.Err() == nil {
					w.log.Warn("snapshot reload failed", "table", table, "err", err)
				}
				continue
			}
			last = fp
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

// watchFiles watches the directory of a SQLite database so writes from
// other processes are seen before the next poll. It returns nil for
// network databases or when the watcher cannot be created.
func (w *SnapshotWatcher) watchFiles() *fsnotify.Watcher {
	if w.db.Path() == "" {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn("file watcher unavailable, polling only", "err", err)
		return nil
	}
	if err := fw.Add(filepath.Dir(w.db.Path())); err != nil {
		w.log.Warn("file watcher unavailable, polling only", "err", err)
		fw.Close()
		return nil
	}
	return fw
}
