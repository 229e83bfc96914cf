package spawn

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bamsammich/swarm/internal/cred"
	"github.com/bamsammich/swarm/internal/engine"
	"github.com/bamsammich/swarm/internal/event"
	"github.com/bamsammich/swarm/internal/port"
	"github.com/bamsammich/swarm/internal/process"
	"github.com/bamsammich/swarm/internal/runtime"
)

// Auxiliary pool workers linger this long before exiting. Generous on
// purpose: role work is bursty and thread churn is the expensive part.
const auxIdleTimeout = 60000 * time.Second

// Seams for the privileged and inherited-state steps of the start sequence.
var (
	osExit      = os.Exit
	geteuid     = os.Geteuid
	newSwitcher = cred.NewSwitcher

	// releaseShared runs for each still-ready sibling surviving the prune,
	// letting the transport layer drop regions the dead siblings pinned.
	releaseShared = func(rec *process.Record) {
		slog.Debug("released shared state", "pid", rec.PID)
	}

	// inheritedFiles opens the descriptors the parent passed down.
	inheritedFiles = func() (prf, pwf, crf, cwf *os.File) {
		return os.NewFile(childPrimaryReadFD, "primary-r"),
			os.NewFile(childPrimaryWriteFD, "primary-w"),
			os.NewFile(childControlReadFD, "control-r"),
			os.NewFile(childControlWriteFD, "control-w")
	}
)

// RunChild is the entry point of a re-exec'd role process. It rebuilds the
// runtime from the inherited environment, walks the start sequence, then
// blocks in the event engine until ctx is cancelled or the engine stops.
// Any start failure is fatal: the process logs and exits nonzero, and the
// parent observes the death through the reaper.
func RunChild(ctx context.Context) {
	env, err := decodeChildEnv()
	if err != nil {
		slog.Error("child handoff malformed", "err", err)
		osExit(1)
	}

	build, err := lookupRole(env.Role)
	if err != nil {
		slog.Error("child start failed", "err", err)
		osExit(1)
	}
	init := build()
	init.Name = env.Role
	init.Stream = env.Stream
	init.Cred = env.Cred

	rt := runtime.New()
	rt.ChildReset()
	rt.EngineName = env.Engine
	rt.AuxThreads = env.AuxThreads

	if err := childStart(rt, init, env); err != nil {
		slog.Error("child start failed", "role", env.Role, "pid", rt.PID, "err", err)
		osExit(1)
	}

	if err := rt.Engine.Run(ctx); err != nil {
		slog.Error("engine stopped", "role", env.Role, "err", err)
		osExit(1)
	}
	osExit(0)
}

// childStart performs the ordered start sequence. Steps must not be
// reordered: credentials drop before role code runs, the control port is
// writable before role code runs, and READY goes out only after the
// primary port can already receive.
func childStart(rt *runtime.Runtime, init *process.Init, env childEnv) error {
	runtime.SetTitle("swarm: " + init.Name)
	slog.Info("child starting", "role", init.Name, "pid", rt.PID)

	iface, err := rt.Services.GetEngine(engine.DefaultBackend)
	if err != nil {
		return fmt.Errorf("engine bootstrap: %w", err)
	}
	eng, err := engine.New(iface)
	if err != nil {
		return fmt.Errorf("engine bootstrap: %w", err)
	}
	rt.Engine = eng
	eng.Adopt()

	// Seed the registry with the parent's view, then drop siblings that
	// never reached ready: they cannot be introduced to anyone.
	for _, p := range env.Procs {
		rec := process.NewRecord(p.PID, nil)
		rec.Ready.Store(p.Ready)
		rt.Registry.Add(rec)
	}
	rt.Registry.PruneStale(releaseShared)

	prf, pwf, crf, cwf := inheritedFiles()
	primary := port.FromFiles(rt.PID, env.PortID, prf, pwf)
	self := process.NewRecord(rt.PID, init)
	self.AddPort(primary, func(r *process.Record) { rt.Registry.Remove(r) })
	rt.Registry.Add(self)
	rt.Self = self

	rt.SeedRandom()

	if init.Cred != nil && geteuid() == 0 {
		if err := newSwitcher().Apply(init.Cred); err != nil {
			return err
		}
		rt.Events.Emit(event.Event{Type: event.PrivilegeDropped, Role: init.Name, PID: rt.PID})
		slog.Info("dropped privileges", "role", init.Name, "user", init.Cred.User)
	}

	rt.SetType(init.Type)

	target, err := rt.Services.GetEngine(rt.EngineName)
	if err != nil {
		return fmt.Errorf("engine %q: %w", rt.EngineName, err)
	}
	if err := eng.Change(target, init.Signals); err != nil {
		return fmt.Errorf("engine %q: %w", rt.EngineName, err)
	}
	rt.Events.Emit(event.Event{Type: event.EngineChanged, Role: init.Name, PID: rt.PID})

	pool, err := engine.NewPool(rt.AuxThreads, auxIdleTimeout)
	if err != nil {
		return fmt.Errorf("aux pool: %w", err)
	}
	rt.Pool = pool

	// The control port is send-only from here: the read half belongs to
	// the main process.
	main := port.FromFiles(rt.PPID, 0, crf, cwf)
	main.ReadClose()
	main.WriteEnable()
	rt.MainPort = main

	// The primary port is receive-only for its owner.
	primary.WriteClose()

	if init.Start != nil {
		if err := init.Start(init.Data); err != nil {
			return fmt.Errorf("role %q start: %w", init.Name, err)
		}
	}

	if err := eng.AddPort(primary, init.PortHandlers); err != nil {
		return fmt.Errorf("enable primary port: %w", err)
	}

	if err := main.Write(port.Frame{Stream: init.Stream, MsgType: port.MsgReady}); err != nil {
		return fmt.Errorf("send ready: %w", err)
	}
	self.Ready.Store(true)
	slog.Info("child started", "role", init.Name, "pid", rt.PID)
	return nil
}
