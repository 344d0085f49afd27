package app

import (
	"context"
	"log/slog"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"canvas/internal/service"
)

// wailsEmitter delivers service events to the frontend.
type wailsEmitter struct{}

func (wailsEmitter) Emit(ctx context.Context, event string, data any) {
	wailsRuntime.EventsEmit(ctx, event, data)
}

// Alert blocks until the user dismisses the dialog.
func (wailsEmitter) Alert(ctx context.Context, title, message string) {
	_, err := wailsRuntime.MessageDialog(ctx, wailsRuntime.MessageDialogOptions{
		Type:    wailsRuntime.WarningDialog,
		Title:   title,
		Message: message,
	})
	if err != nil {
		wailsRuntime.LogErrorf(ctx, "alert %q: %v", title, err)
	}
}

func (wailsEmitter) Warn(ctx context.Context, message string) {
	wailsRuntime.EventsEmit(ctx, service.EventWarning, message)
}

// logEmitter is used without a frontend: events are dropped, alerts and
// warnings go to the log.
type logEmitter struct {
	log *slog.Logger
}

func (logEmitter) Emit(context.Context, string, any) {}

func (e logEmitter) Alert(_ context.Context, title, message string) {
	e.log.Error(title, "message", message)
}

func (e logEmitter) Warn(_ context.Context, message string) {
	e.log.Warn(message)
}
