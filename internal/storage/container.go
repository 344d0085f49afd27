package storage

import (
	"context"
	"fmt"
	"time"

	"canvas/internal/domain"
)

// ContainerStore implements domain.ContainerStore over SQL.
type ContainerStore struct {
	db *DB
}

func NewContainerStore(db *DB) *ContainerStore {
	return &ContainerStore{db: db}
}

const containerColumns = `id, directory_id, name, width, height, linked, daemon_id, instances_json, created_at, updated_at`

func scanContainer(row rowScanner) (*domain.Container, error) {
	var (
		c                domain.Container
		linked           int
		instances        string
		created, updated int64
	)
	err := row.Scan(&c.ContainerID, &c.DirectoryID, &c.Name, &c.Width, &c.Height,
		&linked, &c.DaemonID, &instances, &created, &updated)
	if err != nil {
		return nil, err
	}
	c.Linked = linked != 0
	c.CreatedAt, c.UpdatedAt = time.Unix(0, created), time.Unix(0, updated)
	if c.Instances, err = decodeInstances(instances); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *ContainerStore) CreateContainer(ctx context.Context, canvasID string, c *domain.Container) error {
	if err := domain.ValidateInstances(c.Instances); err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	instances, err := encodeInstances(c.Instances)
	if err != nil {
		return err
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	_, err = s.db.exec(ctx,
		`INSERT INTO containers (`+containerColumns+`, canvas_id, rev) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		c.ContainerID, c.DirectoryID, c.Name, c.Width, c.Height, boolInt(c.Linked), c.DaemonID,
		instances, c.CreatedAt.UnixNano(), c.UpdatedAt.UnixNano(), canvasID,
	)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	s.db.touch()
	return nil
}

func (s *ContainerStore) GetContainer(ctx context.Context, canvasID, containerID string) (*domain.Container, error) {
	row := s.db.queryRow(ctx,
		`SELECT `+containerColumns+` FROM containers WHERE canvas_id = ? AND id = ?`, canvasID, containerID)
	c, err := scanContainer(row)
	if err != nil {
		return nil, notFound("get container", err)
	}
	return c, nil
}

func (s *ContainerStore) ListContainers(ctx context.Context, canvasID string) ([]domain.Container, error) {
	rows, err := s.db.query(ctx,
		`SELECT `+containerColumns+` FROM containers WHERE canvas_id = ? ORDER BY created_at ASC, id ASC`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	defer rows.Close()

	var out []domain.Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, fmt.Errorf("list containers: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *ContainerStore) SetContainerInstances(ctx context.Context, canvasID, containerID string, list []domain.Instance) error {
	if err := domain.ValidateInstances(list); err != nil {
		return fmt.Errorf("set container instances: %w", err)
	}
	instances, err := encodeInstances(list)
	if err != nil {
		return err
	}
	res, err := s.db.exec(ctx,
		`UPDATE containers SET instances_json = ?, rev = rev + 1, updated_at = ? WHERE canvas_id = ? AND id = ?`,
		instances, time.Now().UnixNano(), canvasID, containerID,
	)
	if err != nil {
		return fmt.Errorf("set container instances: %w", err)
	}
	if err := affected("set container instances", res); err != nil {
		return err
	}
	s.db.touch()
	return nil
}
