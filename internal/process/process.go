// Package process owns the bookkeeping for every OS process the runtime
// knows about: per-process records, the pid-keyed registry, and the
// concurrently accessed connected-port map.
package process

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/bamsammich/swarm/internal/cred"
	"github.com/bamsammich/swarm/internal/port"
)

// RoleType tags what a spawned process does.
type RoleType int

const (
	Main RoleType = iota
	Discovery
	Controller
	Router
	Worker
)

var roleNames = [...]string{
	Main:       "main",
	Discovery:  "discovery",
	Controller: "controller",
	Router:     "router",
	Worker:     "worker",
}

func (t RoleType) String() string {
	if int(t) < len(roleNames) {
		return roleNames[t]
	}
	return "unknown"
}

// Bit returns the role-type bit for the process-wide type bitmask.
func (t RoleType) Bit() uint32 {
	return 1 << uint(t) //nolint:gosec // G115: RoleType values are small constants
}

// StartFunc is a role's entry point. A non-nil error during child startup
// is fatal to that child.
type StartFunc func(data any) error

// Init is the descriptor of a role, supplied by the surrounding runtime.
// The spawner consumes it, stamping Stream at spawn time; everything else
// is fixed at construction.
type Init struct {
	Name         string
	Type         RoleType
	Start        StartFunc
	Data         any
	Cred         *cred.UserCred // nil: run as the spawning identity
	PortHandlers port.HandlerTable
	Signals      []os.Signal // signal routing overrides for the child engine
	Stream       uint32      // correlation id for the READY handshake
}

// Record is the runtime's view of one OS process.
type Record struct {
	PID  int
	Init *Init

	// Ready flips true once the child's full startup sequence has
	// succeeded. Written by the control-port dispatch goroutine and read
	// by reapers, so it is atomic.
	Ready atomic.Bool

	// portMu guards the owned-port slice and the cleanup counter: ports
	// close from reaper goroutines while the spawner still reads them.
	portMu sync.Mutex
	// ports the process owns, in creation order.
	ports []*port.Port
	// portCleanups counts ports whose release is still pending; the record
	// may only leave the registry once it reaches zero.
	portCleanups int

	// connected ports of remote processes, keyed by (remote pid, port id).
	// cpMu guards the map; it is created lazily on first use and lives as
	// long as the record.
	cpMu      sync.Mutex
	connected map[portKey]*port.Port
}

// NewRecord creates a record for pid described by init. Ready stays false
// until the child's full startup sequence has succeeded.
func NewRecord(pid int, init *Init) *Record {
	return &Record{PID: pid, Init: init}
}

// Name returns the role name, or a placeholder for descriptor-less records.
func (r *Record) Name() string {
	if r.Init == nil {
		return "?"
	}
	return r.Init.Name
}

// AddPort records p as owned by this process and registers the cleanup
// hook that keeps the record alive until the port is released. onZero runs
// when the last owned port has been closed; the registry uses it to remove
// the record deterministically.
func (r *Record) AddPort(p *port.Port, onZero func(*Record)) {
	r.portMu.Lock()
	r.ports = append(r.ports, p)
	r.portCleanups++
	r.portMu.Unlock()

	p.OnClose = func() {
		r.portMu.Lock()
		r.portCleanups--
		last := r.portCleanups == 0
		r.portMu.Unlock()
		if last && onZero != nil {
			onZero(r)
		}
	}
}

// Ports returns the owned ports in creation order.
func (r *Record) Ports() []*port.Port {
	r.portMu.Lock()
	defer r.portMu.Unlock()
	return append([]*port.Port(nil), r.ports...)
}

// FirstPort returns the process's primary port, or nil.
func (r *Record) FirstPort() *port.Port {
	r.portMu.Lock()
	defer r.portMu.Unlock()
	if len(r.ports) == 0 {
		return nil
	}
	return r.ports[0]
}

// PendingCleanups reports how many owned ports are still unreleased.
func (r *Record) PendingCleanups() int {
	r.portMu.Lock()
	defer r.portMu.Unlock()
	return r.portCleanups
}
