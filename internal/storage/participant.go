package storage

import (
	"context"
	"fmt"
	"time"

	"canvas/internal/domain"
)

// ParticipantStore implements domain.ParticipantStore over SQL.
type ParticipantStore struct {
	db *DB
}

func NewParticipantStore(db *DB) *ParticipantStore {
	return &ParticipantStore{db: db}
}

func (s *ParticipantStore) upsertSQL() string {
	const insert = `INSERT INTO participants (canvas_id, id, name, avatar, daemon_id, rev, created_at, updated_at, last_seen_at) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)`
	if s.db.Dialect() == MySQL {
		return insert + ` ON DUPLICATE KEY UPDATE name = VALUES(name), avatar = VALUES(avatar), daemon_id = VALUES(daemon_id), rev = rev + 1, updated_at = VALUES(updated_at), last_seen_at = VALUES(last_seen_at)`
	}
	return insert + ` ON CONFLICT (canvas_id, id) DO UPDATE SET name = excluded.name, avatar = excluded.avatar, daemon_id = excluded.daemon_id, rev = participants.rev + 1, updated_at = excluded.updated_at, last_seen_at = excluded.last_seen_at`
}

func (s *ParticipantStore) Heartbeat(ctx context.Context, canvasID string, p *domain.Participant) error {
	now := time.Now()
	if p.LastSeenAt.IsZero() {
		p.LastSeenAt = now
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	_, err := s.db.exec(ctx, s.upsertSQL(),
		canvasID, p.ID, p.Name, p.Avatar, p.DaemonID,
		p.CreatedAt.UnixNano(), now.UnixNano(), p.LastSeenAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	s.db.touch()
	return nil
}

func (s *ParticipantStore) ListParticipants(ctx context.Context, canvasID string) ([]domain.Participant, error) {
	rows, err := s.db.query(ctx,
		`SELECT id, name, avatar, daemon_id, created_at, last_seen_at FROM participants WHERE canvas_id = ? ORDER BY id ASC`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var (
			p             domain.Participant
			created, seen int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Avatar, &p.DaemonID, &created, &seen); err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		p.CreatedAt, p.LastSeenAt = time.Unix(0, created), time.Unix(0, seen)
		out = append(out, p)
	}
	return out, rows.Err()
}
