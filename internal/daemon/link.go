// Package daemon talks to the local companion process that ingests files
// from disk and owns linked previews and containers.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"canvas/internal/clock"
)

// Defaults for Options.
const (
	DefaultURL            = "ws://127.0.0.1:8005"
	DefaultReconnectDelay = 2 * time.Second
)

// dialWarnEvery spaces out warnings while the daemon stays unreachable.
const dialWarnEvery = time.Minute

// ErrNotConnected is returned by Send while the link is down.
var ErrNotConnected = errors.New("daemon not connected")

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

type Options struct {
	URL            string
	ReconnectDelay time.Duration
	Clock          clock.Clock
	Dialer         *websocket.Dialer
	Logger         *slog.Logger
}

// Link is the duplex connection to the daemon. After the first Connect it
// keeps reconnecting on its own until Disconnect is called. There is never
// more than one connection or dial in flight.
type Link struct {
	url    string
	delay  time.Duration
	clock  clock.Clock
	dialer *websocket.Dialer
	log    *slog.Logger
	// first dial failure warns, later ones at most once per dialWarnEvery
	dialWarn rate.Sometimes

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	daemonID  string
	reconnect clock.Timer
	stopped   bool
	onMessage func(Inbound)
	onState   func(State)

	// writeMu serialises writers; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

func NewLink(o Options) *Link {
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Link{
		url:      o.URL,
		delay:    o.ReconnectDelay,
		clock:    o.Clock,
		dialer:   o.Dialer,
		log:      o.Logger,
		dialWarn: rate.Sometimes{First: 1, Interval: dialWarnEvery},
	}
}

// OnMessage sets the handler for inbound messages. It runs on the read
// goroutine.
func (l *Link) OnMessage(fn func(Inbound)) {
	l.mu.Lock()
	l.onMessage = fn
	l.mu.Unlock()
}

// OnState sets the handler for state transitions.
func (l *Link) OnState(fn func(State)) {
	l.mu.Lock()
	l.onState = fn
	l.mu.Unlock()
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// DaemonID is the identity reported by the daemon, empty until the first
// get_daemonId response.
func (l *Link) DaemonID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.daemonID
}

// Connect dials the daemon unless a connection or dial already exists. A
// failed dial schedules a reconnect and returns the error.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.state != Disconnected {
		l.mu.Unlock()
		return nil
	}
	l.stopped = false
	l.state = Connecting
	notify := l.onState
	l.mu.Unlock()
	emitState(notify, Connecting)

	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		warned := false
		l.dialWarn.Do(func() {
			warned = true
			l.log.Warn("daemon dial failed", "url", l.url, "err", err)
		})
		if !warned {
			l.log.Debug("daemon dial failed", "url", l.url, "err", err)
		}
		l.setState(Disconnected)
		l.scheduleReconnect()
		return fmt.Errorf("dial daemon: %w", err)
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		conn.Close()
		l.setState(Disconnected)
		return nil
	}
	l.conn = conn
	l.state = Connected
	if l.reconnect != nil {
		l.reconnect.Stop()
		l.reconnect = nil
	}
	notify = l.onState
	l.mu.Unlock()

	l.log.Info("daemon connected", "url", l.url)
	emitState(notify, Connected)
	go l.readLoop(conn)

	if err := l.Send(Envelope{Action: ActionGetDaemonID}); err != nil {
		l.log.Warn("request daemon id", "err", err)
	}
	return nil
}

// Disconnect closes the connection and cancels any pending reconnect.
func (l *Link) Disconnect() {
	l.mu.Lock()
	l.stopped = true
	if l.reconnect != nil {
		l.reconnect.Stop()
		l.reconnect = nil
	}
	conn := l.conn
	l.conn = nil
	wasConnected := l.state == Connected
	if wasConnected {
		l.state = Disconnected
	}
	notify := l.onState
	l.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if wasConnected {
		emitState(notify, Disconnected)
	}
}

// Send writes one command. It fails with ErrNotConnected while the link is
// down.
func (l *Link) Send(env Envelope) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Action, err)
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("send %s: %w", env.Action, err)
	}
	return nil
}

func (l *Link) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.log.Info("daemon connection closed", "err", err)
			l.closed(conn)
			return
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			l.log.Warn("undecodable daemon message", "err", err)
			continue
		}

		l.mu.Lock()
		if msg.Action == ActionGetDaemonID && msg.DaemonID != "" {
			l.daemonID = msg.DaemonID
		}
		handler := l.onMessage
		l.mu.Unlock()
		if handler != nil {
			handler(msg)
		}
	}
}

// closed tears down conn if it is still current and schedules a
// reconnect.
func (l *Link) closed(conn *websocket.Conn) {
	l.mu.Lock()
	if l.conn != conn {
		l.mu.Unlock()
		return
	}
	l.conn = nil
	l.state = Disconnected
	notify := l.onState
	l.mu.Unlock()

	conn.Close()
	emitState(notify, Disconnected)
	l.scheduleReconnect()
}

func (l *Link) scheduleReconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || l.reconnect != nil || l.state != Disconnected {
		return
	}
	l.reconnect = l.clock.AfterFunc(l.delay, l.retry)
}

func (l *Link) retry() {
	l.mu.Lock()
	l.reconnect = nil
	l.mu.Unlock()
	// failures are logged and rescheduled by Connect
	_ = l.Connect(context.Background())
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	l.state = s
	notify := l.onState
	l.mu.Unlock()
	emitState(notify, s)
}

func emitState(fn func(State), s State) {
	if fn != nil {
		fn(s)
	}
}
