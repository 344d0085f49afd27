package app

import (
	"context"
	"sync"
	"time"
)

// FrameInterval is the paint tick queued viewport work runs on.
const FrameInterval = 16 * time.Millisecond

// frameLoop queues work for the next paint tick.
type frameLoop struct {
	mu    sync.Mutex
	queue []func()
}

func (f *frameLoop) Request(fn func()) {
	f.mu.Lock()
	f.queue = append(f.queue, fn)
	f.mu.Unlock()
}

func (f *frameLoop) take() []func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.queue
	f.queue = nil
	return q
}

// runFrames drains the frame queue every FrameInterval until ctx ends.
func (a *App) runFrames(ctx context.Context) {
	t := time.NewTicker(FrameInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.flushFrames()
		}
	}
}

// flushFrames runs the queued work as one serialised step.
func (a *App) flushFrames() {
	work := a.frames.take()
	if len(work) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, fn := range work {
		fn()
	}
}
