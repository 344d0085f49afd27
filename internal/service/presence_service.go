package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"canvas/internal/clock"
	"canvas/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Presence Service — heartbeat and present-participant filter
// ─────────────────────────────────────────────────────────────

// DefaultPresenceTimeout is how long a heartbeat keeps a participant
// present.
const DefaultPresenceTimeout = 15 * time.Minute

// PresenceRefresh is the cadence of the present-participant filter. It
// does not depend on how often the participant collection changes and
// runs on the service clock.
const PresenceRefresh = time.Second

var avatars = []string{"fox", "owl", "otter", "lynx", "heron", "moth", "newt", "wren"}

// PresenceStore is what the presence service needs from the store.
type PresenceStore interface {
	domain.ParticipantStore
	WatchParticipants(ctx context.Context, canvasID string, fn func([]domain.Participant)) (stop func(), err error)
}

// PresenceService writes this client's heartbeat every timeout/2 and keeps
// the list of participants seen within the timeout.
type PresenceService struct {
	store   PresenceStore
	emitter EventEmitter
	clock   clock.Clock
	timeout time.Duration
	log     *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	canvasID string
	self     domain.Participant
	all      []domain.Participant
	present  []domain.Participant
	onChange func([]domain.Participant)
	sched    *cron.Cron
	tick     clock.Timer
	gen      int
	stop     func()
}

// NewPresenceService creates a PresenceService. A zero timeout uses
// DefaultPresenceTimeout and a nil clock the real one.
func NewPresenceService(store PresenceStore, emitter EventEmitter, clk clock.Clock, timeout time.Duration, logger *slog.Logger) *PresenceService {
	if clk == nil {
		clk = clock.Real()
	}
	if timeout <= 0 {
		timeout = DefaultPresenceTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceService{store: store, emitter: emitter, clock: clk, timeout: timeout, log: logger}
}

// OnChange sets the listener for changes of the present set. Without one
// the service emits EventPresence itself.
func (s *PresenceService) OnChange(fn func([]domain.Participant)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Start registers self on canvasID, writes the first heartbeat and
// schedules the rest. A self without id joins as a new anonymous
// participant.
func (s *PresenceService) Start(ctx context.Context, canvasID string, self domain.Participant) (domain.Participant, error) {
	s.Stop()

	if self.ID == "" {
		self.ID = uuid.NewString()
	}
	if self.Name == "" {
		self.Name = "Anonymous"
	}
	if self.Avatar == "" {
		self.Avatar = avatars[rand.IntN(len(avatars))]
	}
	if self.CreatedAt.IsZero() {
		self.CreatedAt = s.clock.Now()
	}

	s.mu.Lock()
	s.ctx, s.canvasID, s.self = ctx, canvasID, self
	s.mu.Unlock()

	if err := s.Heartbeat(); err != nil {
		return self, err
	}

	stop, err := s.store.WatchParticipants(ctx, canvasID, s.applyParticipants)
	if err != nil {
		return self, fmt.Errorf("watch participants: %w", err)
	}

	// The heartbeat is a store write stamped from s.clock, so cron's wall
	// clock only sets its cadence.
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.timeout/2), func() {
		if err := s.Heartbeat(); err != nil {
			s.log.Warn("presence heartbeat failed", "err", err)
		}
	}); err != nil {
		stop()
		return self, fmt.Errorf("schedule heartbeat: %w", err)
	}
	c.Start()

	s.mu.Lock()
	s.sched, s.stop = c, stop
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	s.scheduleRefresh(gen)
	return self, nil
}

// scheduleRefresh arms the next tick of the present-participant filter
// unless the run gen belongs to has been stopped.
func (s *PresenceService) scheduleRefresh(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.sched == nil {
		return
	}
	s.tick = s.clock.AfterFunc(PresenceRefresh, func() {
		s.Refresh()
		s.scheduleRefresh(gen)
	})
}

// Stop cancels the schedule and the subscription.
func (s *PresenceService) Stop() {
	s.mu.Lock()
	sched, stop, tick := s.sched, s.stop, s.tick
	s.sched, s.stop, s.tick = nil, nil, nil
	s.gen++
	s.mu.Unlock()
	if tick != nil {
		tick.Stop()
	}
	if sched != nil {
		<-sched.Stop().Done()
	}
	if stop != nil {
		stop()
	}
}

// Heartbeat stamps LastSeenAt for this client.
func (s *PresenceService) Heartbeat() error {
	s.mu.Lock()
	ctx, canvasID := s.ctx, s.canvasID
	s.self.LastSeenAt = s.clock.Now()
	self := s.self
	s.mu.Unlock()

	if err := s.store.Heartbeat(ctx, canvasID, &self); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (s *PresenceService) applyParticipants(list []domain.Participant) {
	s.mu.Lock()
	s.all = list
	s.mu.Unlock()
	s.Refresh()
}

// Refresh recomputes who is present and reports the set when it changed.
func (s *PresenceService) Refresh() {
	now := s.clock.Now()
	s.mu.Lock()
	var present []domain.Participant
	for _, p := range s.all {
		if p.PresentAt(now, s.timeout) {
			present = append(present, p)
		}
	}
	sort.Slice(present, func(i, j int) bool { return present[i].ID < present[j].ID })
	changed := !sameParticipants(present, s.present)
	s.present = present
	ctx, listener := s.ctx, s.onChange
	s.mu.Unlock()

	switch {
	case !changed:
	case listener != nil:
		listener(present)
	case s.emitter != nil:
		s.emitter.Emit(ctx, EventPresence, present)
	}
}

// Present returns the participants seen within the timeout as of the last
// refresh.
func (s *PresenceService) Present() []domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Participant(nil), s.present...)
}

// Self returns this client's participant record.
func (s *PresenceService) Self() domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

func sameParticipants(a, b []domain.Participant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Name != b[i].Name || a[i].Avatar != b[i].Avatar {
			return false
		}
	}
	return true
}
