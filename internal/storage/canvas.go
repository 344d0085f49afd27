package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"canvas/internal/domain"
)

// CanvasStore implements domain.CanvasStore over SQL.
type CanvasStore struct {
	db *DB
}

func NewCanvasStore(db *DB) *CanvasStore {
	return &CanvasStore{db: db}
}

func (s *CanvasStore) CreateCanvas(ctx context.Context, c *domain.Canvas) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.ShortCode == "" {
		c.ShortCode = domain.NewShortCode()
	}
	_, err := s.db.exec(ctx,
		`INSERT INTO canvases (id, short_code, created_at) VALUES (?, ?, ?)`,
		c.ID, c.ShortCode, c.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create canvas: %w", err)
	}
	return nil
}

func (s *CanvasStore) GetCanvas(ctx context.Context, id string) (*domain.Canvas, error) {
	var (
		c       domain.Canvas
		created int64
	)
	err := s.db.queryRow(ctx, `SELECT id, short_code, created_at FROM canvases WHERE id = ?`, id).
		Scan(&c.ID, &c.ShortCode, &created)
	if err != nil {
		return nil, notFound("get canvas", err)
	}
	c.CreatedAt = time.Unix(0, created)
	return &c, nil
}

// notFound maps sql.ErrNoRows to domain.ErrNotFound.
func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeInstances(list []domain.Instance) (string, error) {
	if list == nil {
		list = []domain.Instance{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode instances: %w", err)
	}
	return string(b), nil
}

func decodeInstances(s string) ([]domain.Instance, error) {
	var list []domain.Instance
	if s == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, fmt.Errorf("decode instances: %w", err)
	}
	return list, nil
}

// affected reports domain.ErrNotFound when an update matched no row.
func affected(op string, res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}
