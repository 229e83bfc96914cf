// Package port implements the IPC endpoints processes use to reach each
// other: a socketpair-backed handle identified by (owning pid, port id) and
// a length-prefixed frame codec. Byte-level transport semantics beyond the
// codec live elsewhere; this package only owns endpoint lifecycle.
package port

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ErrWriteDisabled is returned by Write before WriteEnable has run.
var ErrWriteDisabled = errors.New("port write side not enabled")

// Port is one IPC endpoint. Exactly one process owns it; any process that
// has been introduced to it may hold the write half. The read half delivers
// frames to the owner's handler table once Enable has run.
type Port struct {
	PID int    // owning process id
	ID  uint32 // port id, unique within the owning process

	// OnClose is the cleanup hook the owning process registers; it runs
	// exactly once, when the port is closed. Used to decrement the owner's
	// pending-cleanup counter.
	OnClose func()

	rf, wf *os.File

	writeEnabled atomic.Bool
	writeMu      sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// NewPair creates a port backed by a fresh socketpair. The read half
// belongs to the owning process; the write half is handed to any process
// that sends to it.
func NewPair(pid int, id uint32) (*Port, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socketpair: %w", err)
	}

	return &Port{
		PID:  pid,
		ID:   id,
		rf:   os.NewFile(uintptr(fds[0]), fmt.Sprintf("port-%d.%d-r", pid, id)),
		wf:   os.NewFile(uintptr(fds[1]), fmt.Sprintf("port-%d.%d-w", pid, id)),
		done: make(chan struct{}),
	}, nil
}

// FromFiles reconstructs a port around descriptors inherited from the
// parent (either half may be nil when the caller only holds one side).
func FromFiles(pid int, id uint32, rf, wf *os.File) *Port {
	return &Port{
		PID:  pid,
		ID:   id,
		rf:   rf,
		wf:   wf,
		done: make(chan struct{}),
	}
}

// Files exposes the two halves for descriptor passing to a child.
func (p *Port) Files() (rf, wf *os.File) {
	return p.rf, p.wf
}

// ReadClose drops the read half. Processes that only send on this port
// (every process but the owner) call this right after inheriting it.
func (p *Port) ReadClose() {
	if p.rf != nil {
		p.rf.Close()
		p.rf = nil
	}
}

// WriteClose drops the write half. The owning process calls this on its own
// primary port: it only ever receives there.
func (p *Port) WriteClose() {
	if p.wf != nil {
		p.wf.Close()
		p.wf = nil
	}
}

// WriteEnable arms the write half. Write fails until this has run; the
// spawning sequence enables the control port before role code starts, so
// role code can rely on it.
func (p *Port) WriteEnable() {
	p.writeEnabled.Store(true)
}

// Write sends one frame on the port. Safe for concurrent use.
func (p *Port) Write(f Frame) error {
	if !p.writeEnabled.Load() {
		return ErrWriteDisabled
	}
	if p.wf == nil {
		return errors.New("port write half closed")
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return WriteFrame(p.wf, f)
}

// Enable starts read dispatch: a goroutine reads frames off the port and
// routes them through the handler table until the port closes or the read
// half errors. Only the owning process enables a port.
func (p *Port) Enable(handlers HandlerTable) {
	go func() {
		for {
			f, err := ReadFrame(p.rf)
			if err != nil {
				return
			}
			if h, ok := handlers[f.MsgType]; ok {
				h(f)
			}
		}
	}()
}

// Close releases both halves and fires the owner's cleanup hook once.
func (p *Port) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		if p.rf != nil {
			p.rf.Close()
			p.rf = nil
		}
		if p.wf != nil {
			p.wf.Close()
			p.wf = nil
		}
		if p.OnClose != nil {
			p.OnClose()
		}
	})
}

// Done is closed when the port has been closed.
func (p *Port) Done() <-chan struct{} {
	return p.done
}
