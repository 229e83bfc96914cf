// Package engine runs each process's event loop: a pluggable readiness
// backend (poll everywhere, epoll on Linux) dispatching inbound port frames
// on the process's control goroutine, plus the auxiliary worker pool.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/bamsammich/swarm/internal/port"
)

// ErrReconfigure wraps failures while switching the engine backend.
var ErrReconfigure = errors.New("engine reconfigure failed")

// Interface is a named event-engine backend.
type Interface interface {
	Name() string
	// NewPoller creates one readiness poller for an engine instance.
	NewPoller() (Poller, error)
}

// Poller waits for read readiness on registered descriptors.
type Poller interface {
	Add(fd int) error
	// Remove deregisters fd. A dead fd left registered reports readable on
	// every Wait and spins the loop.
	Remove(fd int) error
	// Wait blocks until at least one registered fd is readable, the wake
	// pipe fires, or timeout elapses. Returns the ready fds.
	Wait(timeout time.Duration) ([]int, error)
	// Wake interrupts a concurrent Wait.
	Wake() error
	Close() error
}

const waitSlice = 500 * time.Millisecond

type watched struct {
	p        *port.Port
	handlers port.HandlerTable
}

// Engine dispatches port frames for one process. All mutation happens from
// the owning control goroutine except AddPort, which may race with Run and
// is guarded.
type Engine struct {
	iface   Interface
	poller  Poller
	signals []os.Signal

	mu    sync.Mutex
	ports map[int]watched // keyed by read-half fd
}

// New creates an engine on the given backend.
func New(iface Interface) (*Engine, error) {
	poller, err := iface.NewPoller()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReconfigure, iface.Name(), err)
	}
	return &Engine{
		iface:  iface,
		poller: poller,
		ports:  make(map[int]watched),
	}, nil
}

// Adopt pins the calling goroutine to its OS thread as the engine's control
// thread. A freshly spawned child calls this before any further setup: the
// engine it inherited on the command line belongs to the parent's thread,
// not this one.
func (e *Engine) Adopt() {
	runtime.LockOSThread()
}

// Change switches the engine to a new backend and installs the child's
// signal routing (inherited from the spawning descriptor). The previous
// poller is torn down; watched ports carry over.
func (e *Engine) Change(iface Interface, signals []os.Signal) error {
	poller, err := iface.NewPoller()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrReconfigure, iface.Name(), err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for fd := range e.ports {
		if err := poller.Add(fd); err != nil {
			poller.Close()
			return fmt.Errorf("%w: re-add fd %d: %v", ErrReconfigure, fd, err)
		}
	}

	if e.poller != nil {
		e.poller.Close()
	}
	e.poller = poller
	e.iface = iface
	e.signals = signals
	return nil
}

// Name returns the active backend's name.
func (e *Engine) Name() string {
	return e.iface.Name()
}

// Signals returns the installed signal routing.
func (e *Engine) Signals() []os.Signal {
	return e.signals
}

// AddPort registers p's read half for dispatch through handlers.
func (e *Engine) AddPort(p *port.Port, handlers port.HandlerTable) error {
	rf, _ := p.Files()
	if rf == nil {
		return errors.New("port has no read half")
	}
	fd := int(rf.Fd())

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.poller.Add(fd); err != nil {
		return fmt.Errorf("add port %d.%d: %w", p.PID, p.ID, err)
	}
	e.ports[fd] = watched{p: p, handlers: handlers}

	// Nudge a Run loop already blocked in Wait.
	_ = e.poller.Wake() //nolint:errcheck // best-effort
	return nil
}

// Run dispatches frames until ctx is done. One frame is read per ready fd
// per wakeup; handlers run on this goroutine.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		ready, err := e.poller.Wait(waitSlice)
		if err != nil {
			return fmt.Errorf("engine wait: %w", err)
		}

		for _, fd := range ready {
			e.mu.Lock()
			w, ok := e.ports[fd]
			e.mu.Unlock()
			if !ok {
				continue
			}

			rf, _ := w.p.Files()
			if rf == nil {
				e.removePort(fd)
				continue
			}
			f, err := port.ReadFrame(rf)
			if err != nil {
				e.removePort(fd)
				continue
			}
			if h, ok := w.handlers[f.MsgType]; ok {
				h(f)
			}
		}
	}
}

// removePort drops fd from dispatch and from the readiness set together.
// The poller half matters: a closed peer keeps its fd permanently readable.
func (e *Engine) removePort(fd int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.ports, fd)
	if e.poller != nil {
		_ = e.poller.Remove(fd) //nolint:errcheck // fd may already be gone
	}
}

// Close tears the poller down.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.poller == nil {
		return nil
	}
	err := e.poller.Close()
	e.poller = nil
	return err
}
