package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"canvas/internal/domain"
	"canvas/internal/selection"
	"canvas/internal/service"
	"canvas/internal/viewport"
)

// Sender is the outbound half of a Link.
type Sender interface {
	Send(env Envelope) error
	State() State
}

// LocalPreviews remembers local object URLs for files still uploading.
type LocalPreviews interface {
	RegisterLocalPreview(previewName, url string)
}

type DispatcherOptions struct {
	Link     Sender
	Importer *Importer
	Previews LocalPreviews
	Emitter  service.EventEmitter
	// CanvasID returns the canvas drops are submitted to.
	CanvasID func() string
	// DaemonID returns the id of the daemon behind Link. Objects owned
	// by any other daemon are read-only.
	DaemonID func() string
	Logger   *slog.Logger
}

// Dispatcher routes inbound daemon messages and issues the file commands.
type Dispatcher struct {
	link     Sender
	importer *Importer
	previews LocalPreviews
	emitter  service.EventEmitter
	canvasID func() string
	daemonID func() string
	log      *slog.Logger

	mu            sync.Mutex
	dropAttempted bool
}

func NewDispatcher(o DispatcherOptions) *Dispatcher {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.CanvasID == nil {
		o.CanvasID = func() string { return "" }
	}
	if o.DaemonID == nil {
		o.DaemonID = func() string { return "" }
	}
	return &Dispatcher{
		link:     o.Link,
		importer: o.Importer,
		previews: o.Previews,
		emitter:  o.Emitter,
		canvasID: o.CanvasID,
		daemonID: o.DaemonID,
		log:      o.Logger,
	}
}

// Handle processes one inbound message.
func (d *Dispatcher) Handle(ctx context.Context, msg Inbound) {
	if msg.Status == StatusError {
		d.log.Warn("daemon reported error", "action", msg.Action, "error", msg.ErrorText())
		d.emitter.Emit(ctx, service.EventLoading, false)
		d.emitter.Warn(ctx, "Error received from the companion app:\n\n"+msg.ErrorText())
		return
	}

	switch msg.Action {
	case ActionAddSyncTargets:
		d.emitter.Emit(ctx, service.EventLoading, false)
		d.handleImport(ctx, msg)
	case ActionGetDaemonID:
		d.log.Info("daemon identified", "daemonId", msg.DaemonID)
		d.emitter.Emit(ctx, service.EventDaemonState, map[string]string{"state": Connected.String(), "daemonId": msg.DaemonID})
	case ActionLinkAssetPreview, ActionLinkDirectoryContainer, ActionOpenInFinder, ActionOpenInApp:
	default:
		d.log.Warn("unhandled daemon message", "action", msg.Action, "status", msg.Status)
	}
}

func (d *Dispatcher) handleImport(ctx context.Context, msg Inbound) {
	var req AddTargetsRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			d.log.Warn("decode import request", "err", err)
		}
	}
	var res AddTargetsResult
	if err := json.Unmarshal(msg.Result, &res); err != nil {
		d.log.Warn("decode import result", "err", err)
		d.emitter.Warn(ctx, "The companion app sent an import result that could not be read.")
		return
	}
	canvasID := req.CanvasID
	if canvasID == "" {
		canvasID = d.canvasID()
	}
	warnings, _ := d.importer.Import(ctx, canvasID, req, res)
	for _, w := range warnings {
		d.emitter.Warn(ctx, w)
	}
}

// OnLinkState publishes the link state and, on reconnect, tells the user
// that a previously refused drop can be retried.
func (d *Dispatcher) OnLinkState(ctx context.Context, s State) {
	d.emitter.Emit(ctx, service.EventDaemonState, map[string]string{"state": s.String()})
	if s != Connected {
		return
	}
	d.mu.Lock()
	attempted := d.dropAttempted
	d.dropAttempted = false
	d.mu.Unlock()
	if attempted {
		d.emitter.Alert(ctx, "Reconnected",
			"You have successfully reconnected to the companion app, feel free to add and edit files on the canvas.")
	}
}

// SubmitDrop hands dropped files to the daemon. drop is the drop point in
// canvas space. While the link is down the drop is refused with an alert.
func (d *Dispatcher) SubmitDrop(ctx context.Context, files []DroppedFile, drop viewport.Point) error {
	if d.link.State() != Connected {
		d.mu.Lock()
		d.dropAttempted = true
		d.mu.Unlock()
		d.emitter.Alert(ctx, "Not connected",
			"Sorry, you are not connected to the companion app. Either it is not installed or it has crashed and cannot restart.")
		return ErrNotConnected
	}
	if len(files) == 0 {
		return nil
	}

	for _, f := range files {
		if f.Type != "" && f.LocalURL != "" && d.previews != nil {
			d.previews.RegisterLocalPreview(f.FileName, f.LocalURL)
		}
	}
	d.emitter.Emit(ctx, service.EventLoading, true)
	err := d.link.Send(Envelope{Action: ActionAddSyncTargets, Data: AddTargetsRequest{
		Files:    files,
		CanvasID: d.canvasID(),
		DropX:    drop.X,
		DropY:    drop.Y,
	}})
	if err != nil {
		d.emitter.Emit(ctx, service.EventLoading, false)
		d.emitter.Alert(ctx, "Drop failed", err.Error())
		return err
	}
	return nil
}

var (
	// errUnresolvable marks an open request with no asset or directory id.
	errUnresolvable = errors.New("nothing to open")
	// ErrReadOnly is returned for objects owned by another daemon.
	ErrReadOnly = errors.New("object belongs to another companion app")
)

// OpenObject reveals the file behind an entry. Previews open in their
// application when inApp is set; directories always open in the file
// manager. Objects owned by another daemon are refused.
func (d *Dispatcher) OpenObject(ctx context.Context, e selection.Entry, inApp bool) error {
	owner := d.daemonID()
	if (e.Preview != nil && e.Kind == domain.KindPreview && e.Preview.ReadOnlyFor(owner)) ||
		(e.Container != nil && e.Kind == domain.KindContainer && e.Container.ReadOnlyFor(owner)) {
		d.emitter.Alert(ctx, "Read only", "This file was added from another computer and can only be opened there.")
		return ErrReadOnly
	}

	var env Envelope
	switch {
	case e.Kind == domain.KindPreview && e.Preview != nil && e.Preview.AssetID != "":
		action := ActionOpenInFinder
		if inApp {
			action = ActionOpenInApp
		}
		env = Envelope{Action: action, Data: OpenRequest{AssetID: e.Preview.AssetID}}
	case e.Kind == domain.KindContainer && e.Container != nil && e.Container.DirectoryID != "":
		env = Envelope{Action: ActionOpenInFinder, Data: OpenRequest{DirectoryID: e.Container.DirectoryID}}
	default:
		d.emitter.Alert(ctx, "Open failed", "Sorry, an error occurred trying to figure out what to open.")
		return errUnresolvable
	}

	if err := d.link.Send(env); err != nil {
		d.emitter.Alert(ctx, "Open failed", "Sorry, you are not connected to the companion app.")
		return err
	}
	return nil
}
