package storage

import (
	"log/slog"
	"time"

	"canvas/internal/domain"
)

// Store is the SQL-backed domain.Store.
type Store struct {
	*CanvasStore
	*PreviewStore
	*ContainerStore
	*ParticipantStore
	*SnapshotWatcher

	db *DB
}

var _ domain.Store = (*Store)(nil)

// NewStore wires every collection of db. poll is the watcher fallback
// interval.
func NewStore(db *DB, poll time.Duration, logger *slog.Logger) *Store {
	return &Store{
		CanvasStore:      NewCanvasStore(db),
		PreviewStore:     NewPreviewStore(db),
		ContainerStore:   NewContainerStore(db),
		ParticipantStore: NewParticipantStore(db),
		SnapshotWatcher:  NewSnapshotWatcher(db, poll, logger),
		db:               db,
	}
}

func (s *Store) DB() *DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }
