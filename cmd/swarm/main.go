package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bamsammich/swarm/internal/spawn"
)

var version = "dev"

func main() {
	// Child mode: this invocation is a re-exec'd role process. Must be
	// checked before cobra to avoid flag conflicts.
	if spawn.InChildMode() {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)
		registerRoles()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		spawn.RunChild(ctx)
		return
	}

	os.Exit(run())
}
