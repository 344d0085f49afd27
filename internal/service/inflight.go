package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ─────────────────────────────────────────────────────────────
// inflightWrites — tracks fire-and-forget store writes
// ─────────────────────────────────────────────────────────────

// inflightWrites records every write goroutine so shutdown and tests can
// drain them. Writes to the same item are not serialised.
type inflightWrites struct {
	mu      sync.Mutex
	running map[string]string // write id → operation
	wg      sync.WaitGroup
}

// begin registers a write and returns its id.
func (w *inflightWrites) begin(op string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running == nil {
		w.running = make(map[string]string)
	}
	id := uuid.NewString()
	w.running[id] = op
	w.wg.Add(1)
	return id
}

// done marks the write finished. Must be called once per begin.
func (w *inflightWrites) done(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.running, id)
	w.wg.Done()
}

func (w *inflightWrites) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.running)
}

// wait blocks until every registered write finished or ctx is cancelled.
func (w *inflightWrites) wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
