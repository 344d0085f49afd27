package storage

import (
	"context"
	"fmt"
	"time"

	"canvas/internal/domain"
)

// PreviewStore implements domain.PreviewStore over SQL. The instance list
// lives in one JSON column so an instance write replaces the whole field.
type PreviewStore struct {
	db *DB
}

func NewPreviewStore(db *DB) *PreviewStore {
	return &PreviewStore{db: db}
}

const previewColumns = `id, preview_name, asset_id, name, url, mime_type, width, height, container_id, container_x, container_y, linked, daemon_id, instances_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPreview(row rowScanner) (*domain.Preview, error) {
	var (
		p                domain.Preview
		linked           int
		instances        string
		created, updated int64
	)
	err := row.Scan(&p.PreviewID, &p.PreviewName, &p.AssetID, &p.Name, &p.URL, &p.MimeType,
		&p.Dimensions[0], &p.Dimensions[1], &p.ContainerID, &p.ContainerX, &p.ContainerY,
		&linked, &p.DaemonID, &instances, &created, &updated)
	if err != nil {
		return nil, err
	}
	p.Linked = linked != 0
	p.CreatedAt, p.UpdatedAt = time.Unix(0, created), time.Unix(0, updated)
	if p.Instances, err = decodeInstances(instances); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PreviewStore) CreatePreview(ctx context.Context, canvasID string, p *domain.Preview) error {
	if err := domain.ValidateInstances(p.Instances); err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	instances, err := encodeInstances(p.Instances)
	if err != nil {
		return err
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err = s.db.exec(ctx,
		`INSERT INTO previews (`+previewColumns+`, canvas_id, rev) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		p.PreviewID, p.PreviewName, p.AssetID, p.Name, p.URL, p.MimeType,
		p.Dimensions[0], p.Dimensions[1], p.ContainerID, p.ContainerX, p.ContainerY,
		boolInt(p.Linked), p.DaemonID, instances, p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(), canvasID,
	)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	s.db.touch()
	return nil
}

func (s *PreviewStore) GetPreview(ctx context.Context, canvasID, previewID string) (*domain.Preview, error) {
	row := s.db.queryRow(ctx,
		`SELECT `+previewColumns+` FROM previews WHERE canvas_id = ? AND id = ?`, canvasID, previewID)
	p, err := scanPreview(row)
	if err != nil {
		return nil, notFound("get preview", err)
	}
	return p, nil
}

func (s *PreviewStore) ListPreviews(ctx context.Context, canvasID string) ([]domain.Preview, error) {
	rows, err := s.db.query(ctx,
		`SELECT `+previewColumns+` FROM previews WHERE canvas_id = ? ORDER BY created_at ASC, id ASC`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("list previews: %w", err)
	}
	defer rows.Close()

	var out []domain.Preview
	for rows.Next() {
		p, err := scanPreview(rows)
		if err != nil {
			return nil, fmt.Errorf("list previews: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PreviewStore) SetPreviewInstances(ctx context.Context, canvasID, previewID string, list []domain.Instance) error {
	if err := domain.ValidateInstances(list); err != nil {
		return fmt.Errorf("set preview instances: %w", err)
	}
	instances, err := encodeInstances(list)
	if err != nil {
		return err
	}
	res, err := s.db.exec(ctx,
		`UPDATE previews SET instances_json = ?, rev = rev + 1, updated_at = ? WHERE canvas_id = ? AND id = ?`,
		instances, time.Now().UnixNano(), canvasID, previewID,
	)
	if err != nil {
		return fmt.Errorf("set preview instances: %w", err)
	}
	if err := affected("set preview instances", res); err != nil {
		return err
	}
	s.db.touch()
	return nil
}

func (s *PreviewStore) DeletePreview(ctx context.Context, canvasID, previewID string) error {
	if _, err := s.db.exec(ctx, `DELETE FROM previews WHERE canvas_id = ? AND id = ?`, canvasID, previewID); err != nil {
		return fmt.Errorf("delete preview: %w", err)
	}
	s.db.touch()
	return nil
}
