package domain

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// Canvas is the shared per-workspace coordinate space. It is created once
// and never mutated by the interaction engine.
type Canvas struct {
	ID        string    `json:"id" bson:"_id"`
	ShortCode string    `json:"shortCode" bson:"shortCode"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

const shortCodeLen = 6

// NewShortCode returns a random lowercase code used to join a canvas.
func NewShortCode() string {
	b := make([]byte, shortCodeLen)
	for i := range b {
		b[i] = byte('a' + rand.IntN(26))
	}
	return string(b)
}

type CanvasStore interface {
	CreateCanvas(ctx context.Context, c *Canvas) error
	GetCanvas(ctx context.Context, id string) (*Canvas, error)
}
