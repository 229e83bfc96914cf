// Package spawn creates and runs role processes. The parent side re-execs
// the current binary with the child's port halves passed as inherited file
// descriptors; the child side reconstructs its runtime from the environment
// and walks the start sequence through to the READY notification.
package spawn

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/bamsammich/swarm/internal/event"
	"github.com/bamsammich/swarm/internal/port"
	"github.com/bamsammich/swarm/internal/process"
	"github.com/bamsammich/swarm/internal/runtime"
)

var (
	// ErrForkFailed reports that a child could not be started. The parent
	// keeps running; a failed spawn is recoverable.
	ErrForkFailed = errors.New("spawn: fork failed")

	// ErrExecFailed reports that replacing a process image failed.
	ErrExecFailed = errors.New("spawn: exec failed")
)

// executable is swapped in tests to launch the test binary's child shim.
var executable = os.Executable

// Create starts a child process for init and records it, not yet ready, in
// the runtime's registry. The child inherits its primary port pair and the
// main control port pair, plus an environment snapshot of the registry so
// it can prune stale siblings on startup. Returns the child pid.
func Create(rt *runtime.Runtime, init *process.Init) (int, error) {
	if rt.MainPort == nil {
		return 0, fmt.Errorf("%w: no main control port", ErrForkFailed)
	}

	primary, err := port.NewPair(0, rt.PortIDs.Next())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrForkFailed, err)
	}

	init.Stream = rt.Streams.Next()

	exe, err := executable()
	if err != nil {
		primary.Close()
		return 0, fmt.Errorf("%w: %v", ErrForkFailed, err)
	}

	prf, pwf := primary.Files()
	crf, cwf := rt.MainPort.Files()

	env := childEnv{
		Role:       init.Name,
		Stream:     init.Stream,
		PortID:     primary.ID,
		Engine:     rt.EngineName,
		AuxThreads: rt.AuxThreads,
		Procs:      snapshotRegistry(rt.Registry),
		Cred:       init.Cred,
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), env.encode()...)
	cmd.ExtraFiles = []*os.File{prf, pwf, crf, cwf}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = execSysAttr()

	if err := cmd.Start(); err != nil {
		primary.Close()
		return 0, fmt.Errorf("%w: %v", ErrForkFailed, err)
	}

	pid := cmd.Process.Pid
	primary.PID = pid

	rec := process.NewRecord(pid, init)
	rec.AddPort(primary, func(r *process.Record) {
		rt.Registry.Remove(r)
		rt.Events.Emit(event.Event{Type: event.ProcessRemoved, Role: init.Name, PID: pid})
		rt.Stats.AddProcessesRemoved(1)
	})
	rt.Registry.Add(rec)

	rt.Events.Emit(event.Event{Type: event.ProcessForked, Role: init.Name, PID: pid, Stream: init.Stream})
	rt.Stats.AddProcessesForked(1)
	slog.Info("child started", "role", init.Name, "pid", pid, "stream", init.Stream)

	go reap(rt, cmd, rec)
	return pid, nil
}

// reap waits for the child and retires its record. A child that exits
// before signalling READY counts as a failed spawn.
func reap(rt *runtime.Runtime, cmd *exec.Cmd, rec *process.Record) {
	err := cmd.Wait()
	if !rec.Ready.Load() {
		rt.Events.Emit(event.Event{Type: event.ProcessFailed, Role: rec.Name(), PID: rec.PID, Error: err})
		rt.Stats.AddProcessesFailed(1)
		slog.Error("child exited before ready", "role", rec.Name(), "pid", rec.PID, "err", err)
	} else if err != nil {
		slog.Warn("child exited", "role", rec.Name(), "pid", rec.PID, "err", err)
	} else {
		slog.Info("child exited", "role", rec.Name(), "pid", rec.PID)
	}

	if p := rec.FirstPort(); p != nil {
		p.Close()
	} else {
		rt.Registry.Remove(rec)
	}
}

// SetupMain creates the main process record and the shared control port,
// and wires the READY handler that flips child records to ready. Call once
// during parent startup, before the first Create.
func SetupMain(rt *runtime.Runtime, init *process.Init) (*process.Record, error) {
	control, err := port.NewPair(rt.PID, rt.PortIDs.Next())
	if err != nil {
		return nil, fmt.Errorf("create control port: %w", err)
	}

	rec := process.NewRecord(rt.PID, init)
	rec.Ready.Store(true)
	rec.AddPort(control, func(r *process.Record) { rt.Registry.Remove(r) })
	rt.Registry.Add(rec)
	rt.MainPort = control
	rt.Self = rec
	rt.SetType(init.Type)

	handlers := port.HandlerTable{
		port.MsgReady: func(f port.Frame) { markReady(rt, f.Stream) },
	}
	for t, h := range init.PortHandlers {
		handlers[t] = h
	}
	control.WriteEnable()
	control.Enable(handlers)
	return rec, nil
}

// markReady resolves a READY frame's stream id back to the record created
// by the matching Create call.
func markReady(rt *runtime.Runtime, stream uint32) {
	var found *process.Record
	rt.Registry.Each(func(rec *process.Record) {
		if rec.Init != nil && rec.Init.Stream == stream && rec.PID != rt.PID {
			found = rec
		}
	})
	if found == nil {
		slog.Warn("ready for unknown stream", "stream", stream)
		return
	}
	found.Ready.Store(true)
	rt.Events.Emit(event.Event{Type: event.ProcessReady, Role: found.Name(), PID: found.PID, Stream: stream})
	rt.Stats.AddProcessesReady(1)
	slog.Info("child ready", "role", found.Name(), "pid", found.PID)
}
