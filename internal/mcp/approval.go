package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"canvas/internal/clock"
	"canvas/internal/selection"
)

// DefaultApprovalTimeout is how long a destructive call waits for the user.
const DefaultApprovalTimeout = 120 * time.Second

// Frontend events of the approval flow.
const (
	EventApprovalRequired  = "mcp:approval-required"
	EventApprovalDismissed = "mcp:approval-dismissed"
)

var (
	ErrRejected = errors.New("rejected by user")
	ErrTimedOut = errors.New("approval timed out")
)

// EventEmitter allows the approval queue to notify the frontend.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// PendingAction is a destructive agent call awaiting the user. Keys are
// the instances it would touch, so the frontend can highlight them.
type PendingAction struct {
	ID          string          `json:"id"`
	Tool        string          `json:"tool"`
	Description string          `json:"description"`
	Keys        []selection.Key `json:"keys"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type verdict int

const (
	approved verdict = iota
	rejected
	expired
)

// ApprovalQueue holds destructive MCP calls made while the desktop app is
// running until the user answers them.
type ApprovalQueue struct {
	ctx     context.Context
	emitter EventEmitter
	clock   clock.Clock

	mu      sync.Mutex
	timeout time.Duration
	pending map[string]chan verdict
}

// NewApprovalQueue returns a queue answering through emitter. A nil clk
// uses the real clock.
func NewApprovalQueue(ctx context.Context, emitter EventEmitter, clk clock.Clock) *ApprovalQueue {
	if clk == nil {
		clk = clock.Real()
	}
	return &ApprovalQueue{
		ctx:     ctx,
		emitter: emitter,
		clock:   clk,
		timeout: DefaultApprovalTimeout,
		pending: make(map[string]chan verdict),
	}
}

func (q *ApprovalQueue) SetTimeout(d time.Duration) {
	q.mu.Lock()
	q.timeout = d
	q.mu.Unlock()
}

// Request announces the action and blocks until the user answers, the
// timeout passes or the queue context ends. Only approval returns nil.
func (q *ApprovalQueue) Request(tool, description string, keys ...selection.Key) error {
	id := uuid.NewString()
	ch := make(chan verdict, 1)

	q.mu.Lock()
	q.pending[id] = ch
	timeout := q.timeout
	q.mu.Unlock()
	defer q.forget(id)

	q.emitter.Emit(q.ctx, EventApprovalRequired, PendingAction{
		ID:          id,
		Tool:        tool,
		Description: description,
		Keys:        keys,
		CreatedAt:   q.clock.Now().UTC(),
	})

	timer := q.clock.AfterFunc(timeout, func() { q.answer(id, expired) })
	defer timer.Stop()

	select {
	case v := <-ch:
		switch v {
		case approved:
			return nil
		case rejected:
			return fmt.Errorf("%s: %w", tool, ErrRejected)
		default:
			q.emitter.Emit(q.ctx, EventApprovalDismissed, map[string]string{"id": id})
			return fmt.Errorf("%s after %s: %w", tool, timeout, ErrTimedOut)
		}
	case <-q.ctx.Done():
		return fmt.Errorf("%s: %w", tool, q.ctx.Err())
	}
}

func (q *ApprovalQueue) Approve(actionID string) { q.answer(actionID, approved) }

func (q *ApprovalQueue) Reject(actionID string) { q.answer(actionID, rejected) }

// Pending lists the ids still waiting for an answer.
func (q *ApprovalQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	return ids
}

// answer delivers the first verdict for id; later ones are dropped.
func (q *ApprovalQueue) answer(id string, v verdict) {
	q.mu.Lock()
	ch, ok := q.pending[id]
	q.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- v:
	default:
	}
}

func (q *ApprovalQueue) forget(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}
