package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"canvas/internal/clock"
	"canvas/internal/config"
	"canvas/internal/daemon"
	"canvas/internal/dbclient"
	"canvas/internal/domain"
	"canvas/internal/drag"
	mcpserver "canvas/internal/mcp"
	"canvas/internal/secret"
	"canvas/internal/selection"
	"canvas/internal/service"
	"canvas/internal/stage"
	"canvas/internal/viewport"
)

// App is the main Wails application struct.
// All exported methods are available as Wails bindings.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	log    *slog.Logger

	store    domain.Store
	emitter  service.EventEmitter
	sync     *service.SyncService
	presence *service.PresenceService
	link     *daemon.Link
	daemon   *daemon.Dispatcher
	vp       *viewport.Controller
	stage    *stage.Controller
	index    *nodeIndex
	source   liveSource
	frames   *frameLoop
	mcp      *mcpserver.Server

	// mu serialises every entry point: bindings, snapshot callbacks,
	// daemon messages and frame work each run to completion alone.
	mu sync.Mutex
}

// New creates a new App.
func New() *App {
	return &App{log: slog.Default()}
}

// Startup is called when the app starts.
func (a *App) Startup(ctx context.Context) {
	cfg, err := config.Load()
	if err != nil {
		wailsRuntime.LogFatalf(ctx, "Failed to load config: %v", err)
		return
	}
	store, err := dbclient.Open(ctx, cfg.Store, secret.Default(), a.log)
	if err != nil {
		wailsRuntime.LogFatalf(ctx, "Failed to open store: %v", err)
		return
	}

	a.wire(ctx, cfg, store, wailsEmitter{}, nil)
	if err := a.start(); err != nil {
		wailsRuntime.LogErrorf(ctx, "Failed to start canvas %s: %v", cfg.CanvasID, err)
		return
	}
	go a.runFrames(a.ctx)
	wailsRuntime.LogInfof(ctx, "Canvas %s ready", cfg.CanvasID)
}

// Shutdown is called when the app is closing.
func (a *App) Shutdown(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	if a.link != nil {
		a.link.Disconnect()
	}
	if a.presence != nil {
		a.presence.Stop()
	}
	if a.sync != nil {
		a.sync.Wait(ctx)
		a.sync.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close store", "err", err)
		}
	}
}

// wire builds every component. A nil clk uses the real clock.
func (a *App) wire(ctx context.Context, cfg *config.Config, store domain.Store, emitter service.EventEmitter, clk clock.Clock) {
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.cfg = cfg
	a.store = store
	a.emitter = emitter

	a.sync = service.NewSyncService(store, emitter, a.log)
	a.presence = service.NewPresenceService(store, emitter, clk, cfg.Presence.Timeout, a.log)
	a.presence.OnChange(a.onPresence)
	a.source = liveSource{sync: a.sync}
	a.index = newNodeIndex()
	a.frames = &frameLoop{}

	a.vp = viewport.NewController(viewport.Default(), a.frames, clk)
	a.vp.OnChange(a.onViewport)
	dragger := drag.New(a.vp, a.source, a.index, a.sync, a.log)
	a.stage = stage.New(stage.Options{
		Viewport: a.vp,
		Drag:     dragger,
		Source:   a.source,
		Index:    a.index,
		Mutator:  a.sync,
		Logger:   a.log,
	})

	a.link = daemon.NewLink(daemon.Options{
		URL:            cfg.Daemon.URL,
		ReconnectDelay: cfg.Daemon.ReconnectDelay,
		Clock:          clk,
		Logger:         a.log,
	})
	a.daemon = daemon.NewDispatcher(daemon.DispatcherOptions{
		Link:     a.link,
		Importer: daemon.NewImporter(a.sync, store, a.log),
		Previews: a.sync,
		Emitter:  emitter,
		CanvasID: a.sync.CanvasID,
		DaemonID: a.link.DaemonID,
		Logger:   a.log,
	})
	a.link.OnMessage(a.onDaemonMessage)
	a.link.OnState(a.onLinkState)

	a.sync.OnSnapshot(a.onSnapshot)

	a.mcp = mcpserver.New(a.ctx, mcpserver.Deps{
		Emitter:         emitter,
		Sync:            a.sync,
		RequireApproval: true,
		Clock:           clk,
		Logger:          a.log,
	})
}

// start opens the canvas and begins syncing. The daemon link and the MCP
// endpoint come up in the background.
func (a *App) start() error {
	if err := a.ensureCanvas(a.ctx); err != nil {
		return err
	}
	if err := a.sync.Start(a.ctx, a.cfg.CanvasID); err != nil {
		return fmt.Errorf("start sync: %w", err)
	}
	self := domain.Participant{ID: a.cfg.ParticipantID, Name: a.cfg.Presence.Name}
	if _, err := a.presence.Start(a.ctx, a.cfg.CanvasID, self); err != nil {
		return fmt.Errorf("start presence: %w", err)
	}

	if a.cfg.Daemon.URL != "" {
		go func() {
			if err := a.link.Connect(a.ctx); err != nil {
				a.log.Info("daemon not reachable yet, retrying", "err", err)
			}
		}()
	}
	if a.cfg.MCP.Addr != "" {
		go func() {
			if err := a.mcp.ServeHTTP(a.ctx, a.cfg.MCP.Addr); err != nil {
				a.log.Error("mcp endpoint stopped", "err", err)
			}
		}()
	}
	return nil
}

// ensureCanvas opens the configured canvas, creating it on first use.
func (a *App) ensureCanvas(ctx context.Context) error {
	if a.cfg.CanvasID != "" {
		_, err := a.store.GetCanvas(ctx, a.cfg.CanvasID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("open canvas: %w", err)
		}
	} else {
		a.cfg.CanvasID = uuid.NewString()
	}
	c := &domain.Canvas{ID: a.cfg.CanvasID}
	if err := a.store.CreateCanvas(ctx, c); err != nil {
		return fmt.Errorf("create canvas: %w", err)
	}
	a.log.Info("canvas created", "canvasId", c.ID, "shortCode", c.ShortCode)
	return nil
}

// ============================================================
// Callbacks
// ============================================================

func (a *App) onSnapshot(snap *service.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stage.Reconcile(withNodes(a.sync.TakeFresh(snap)))
	a.emitter.Emit(a.ctx, service.EventSnapshot, snap)
	a.emitState()
}

func (a *App) onDaemonMessage(msg daemon.Inbound) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.daemon.Handle(a.ctx, msg)
}

func (a *App) onLinkState(s daemon.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.daemon.OnLinkState(a.ctx, s)
}

// onPresence runs on the presence clock or the participant watch. It
// emits the latest set, so out-of-order calls settle on the newest one.
func (a *App) onPresence([]domain.Participant) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.emitter.Emit(a.ctx, service.EventPresence, a.presence.Present())
	a.emitState()
}

// onViewport runs with a.mu held: every viewport change starts from a
// binding or a frame.
func (a *App) onViewport(v viewport.Viewport) {
	a.stage.RefreshBounds()
	a.emitter.Emit(a.ctx, service.EventViewport, v)
	a.emitState()
}

// emitState pushes the stage state. Callers hold a.mu.
func (a *App) emitState() {
	a.emitter.Emit(a.ctx, service.EventSelection, a.stateView())
}

func (a *App) stateView() StateView {
	v := a.vp.Viewport()
	sel := a.stage.Selection()
	view := StateView{
		CanvasID: a.sync.CanvasID(),
		Viewport: v,
		Location: viewport.FormatLocation(v),
		Cursor:   string(a.stage.Cursor()),
		Mode:     a.stage.State().String(),
		Resizing: a.stage.Resizing(),
		Present:  a.presence.Present(),
		Self:     a.presence.Self(),
		Daemon:   a.link.State().String(),
		DaemonID: a.link.DaemonID(),
	}
	view.Selection = make([]selection.Key, 0, sel.Len())
	for _, e := range sel.Entries() {
		view.Selection = append(view.Selection, e.Key())
	}
	if k, ok := sel.ActiveContainer(); ok {
		view.Active = &k
	}
	if r, ok := sel.Bounds(); ok {
		view.Bounds = &r
	}
	if r, ok := a.stage.SelectArea(); ok {
		view.SelectArea = &r
	}
	if p, ok := a.stage.DragOffset(); ok {
		view.DragOffset = &p
	}
	for _, p := range a.stage.NestedSelection() {
		view.Nested = append(view.Nested, p.PreviewID)
	}
	return view
}
