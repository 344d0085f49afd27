package service

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter — decouples services from wailsRuntime
// ─────────────────────────────────────────────────────────────

// Frontend event names.
const (
	EventSnapshot    = "canvas:snapshot"
	EventViewport    = "canvas:viewport"
	EventSelection   = "canvas:selection"
	EventLoading     = "canvas:loading"
	EventPresence    = "presence:changed"
	EventDaemonState = "daemon:state"
	EventWarning     = "canvas:warning"
)

// EventEmitter is how services reach the user. The App implements it with
// wailsRuntime.EventsEmit and MessageDialog; tests use MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
	// Alert shows a blocking message the user has to dismiss.
	Alert(ctx context.Context, title, message string)
	// Warn shows a persistent warning that does not block input.
	Warn(ctx context.Context, message string)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
// It is safe for use from mutation goroutines.
type MockEmitter struct {
	mu       sync.Mutex
	Events   []EmittedEvent
	Alerts   []Alert
	Warnings []string
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

type Alert struct {
	Title   string
	Message string
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

func (m *MockEmitter) Alert(_ context.Context, title, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, Alert{Title: title, Message: message})
}

func (m *MockEmitter) Warn(_ context.Context, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Warnings = append(m.Warnings, message)
}

// Count returns how many events with the given name were emitted.
func (m *MockEmitter) Count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Events {
		if e.Event == event {
			n++
		}
	}
	return n
}

// AlertCount returns the number of recorded alerts.
func (m *MockEmitter) AlertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}
