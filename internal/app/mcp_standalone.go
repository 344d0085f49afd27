package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"canvas/internal/config"
	"canvas/internal/dbclient"
	mcpserver "canvas/internal/mcp"
	"canvas/internal/secret"
	"canvas/internal/service"
)

// ServeMCP runs the canvas as a standalone MCP server on stdin/stdout with
// no GUI. It follows the configured canvas until interrupted.
func ServeMCP(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdout carries the protocol
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if cfg.CanvasID == "" {
		return fmt.Errorf("canvas_id is required to serve mcp")
	}

	store, err := dbclient.Open(ctx, cfg.Store, secret.Default(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	emitter := logEmitter{log: logger}
	sync := service.NewSyncService(store, emitter, logger)
	if err := sync.Start(ctx, cfg.CanvasID); err != nil {
		return fmt.Errorf("start sync: %w", err)
	}
	defer func() {
		sync.Wait(context.Background())
		sync.Stop()
	}()

	mcpSrv := mcpserver.New(ctx, mcpserver.Deps{
		Emitter: emitter,
		Sync:    sync,
		Logger:  logger,
	})
	return mcpSrv.ServeStdio()
}
