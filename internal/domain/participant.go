package domain

import (
	"context"
	"time"
)

// Participant is a collaborator on a canvas. Presence is derived from
// LastSeenAt, which each client refreshes on a heartbeat.
type Participant struct {
	ID         string    `json:"id" bson:"_id"`
	Name       string    `json:"name" bson:"name"`
	Avatar     string    `json:"avatar" bson:"avatar"`
	DaemonID   string    `json:"daemonId,omitempty" bson:"daemonId,omitempty"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt" bson:"lastSeenAt"`
}

// PresentAt reports whether the participant's heartbeat falls inside the
// window ending at now.
func (p *Participant) PresentAt(now time.Time, window time.Duration) bool {
	return p.LastSeenAt.After(now.Add(-window))
}

type ParticipantStore interface {
	// Heartbeat upserts the participant and sets LastSeenAt.
	Heartbeat(ctx context.Context, canvasID string, p *Participant) error
	ListParticipants(ctx context.Context, canvasID string) ([]Participant, error)
}
