package main

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/bamsammich/swarm/internal/port"
	"github.com/bamsammich/swarm/internal/process"
	"github.com/bamsammich/swarm/internal/spawn"
)

// builtinRoles maps configurable role names to their process types.
var builtinRoles = map[string]process.RoleType{
	"discovery":  process.Discovery,
	"controller": process.Controller,
	"router":     process.Router,
	"worker":     process.Worker,
}

// registerRoles installs the built-in role descriptors. Runs in both the
// main process (so spawn requests validate early) and in re-exec'd
// children (so the role can be reconstructed by name).
func registerRoles() {
	for name, typ := range builtinRoles {
		spawn.RegisterRole(name, func() *process.Init {
			return &process.Init{
				Type: typ,
				Start: func(any) error {
					slog.Info("role running", "role", name, "pid", os.Getpid())
					return nil
				},
				PortHandlers: port.HandlerTable{
					port.MsgData: func(f port.Frame) {
						slog.Debug("data frame", "role", name, "stream", f.Stream, "bytes", len(f.Payload))
					},
					port.MsgQuit: func(port.Frame) {
						slog.Info("quit requested", "role", name)
						// Route through the signal context so the engine
						// loop winds down cleanly.
						_ = syscall.Kill(os.Getpid(), syscall.SIGTERM) //nolint:errcheck // self-signal
					},
				},
			}
		})
	}
}

// roleType resolves a configured role name, failing before any spawn
// happens rather than inside the child.
func roleType(name string) (process.RoleType, error) {
	t, ok := builtinRoles[name]
	if !ok {
		return 0, fmt.Errorf("unknown role %q", name)
	}
	return t, nil
}
