// Package runtime holds the per-process context that a C runtime would keep
// in process-wide globals: cached pids, the role-type bitmask, the process
// registry, the service directory, and the port-id allocator. A spawned
// child resets this state explicitly instead of relying on inherited
// globals.
package runtime

import (
	"math/rand/v2"
	"os"
	"time"

	"github.com/bamsammich/swarm/internal/engine"
	"github.com/bamsammich/swarm/internal/event"
	"github.com/bamsammich/swarm/internal/port"
	"github.com/bamsammich/swarm/internal/process"
	"github.com/bamsammich/swarm/internal/stats"
)

// Runtime is the startup-time context owned by one OS process. Only the
// process's control goroutine mutates it.
type Runtime struct {
	PID  int
	PPID int

	// Types is the process-wide role-type bitmask.
	Types uint32

	Registry *process.Registry
	Services *engine.Services
	Engine   *engine.Engine
	Pool     *engine.Pool

	// PortIDs allocates ids for ports this process creates.
	PortIDs port.IDAllocator

	// Streams allocates correlation ids for spawn requests, matched against
	// the READY notification each child sends back.
	Streams port.IDAllocator

	// EngineName is the configured backend each spawned process switches to.
	EngineName string
	// AuxThreads bounds each process's auxiliary worker pool.
	AuxThreads int

	// MainPort is the well-known control port of the main process: read
	// half owned by main, write half held by every child.
	MainPort *port.Port

	// Self is this process's own record in Registry.
	Self *process.Record

	Events event.Sink
	Stats  *stats.Collector

	// Rand is the per-process random source, reseeded after every spawn so
	// children never share the parent's stream.
	Rand *rand.Rand
}

// DefaultAuxThreads bounds each process's auxiliary pool unless the
// configuration says otherwise.
const DefaultAuxThreads = 4

// New creates the runtime context for the current process.
func New() *Runtime {
	rt := &Runtime{
		PID:        os.Getpid(),
		PPID:       os.Getppid(),
		Registry:   process.NewRegistry(),
		Services:   engine.NewServices(),
		EngineName: engine.DefaultBackend,
		AuxThreads: DefaultAuxThreads,
		Stats:      stats.NewCollector(),
	}
	engine.RegisterDefaults(rt.Services)
	rt.SeedRandom()
	return rt
}

// ChildReset refreshes the cached identity after a spawn: the pid/ppid the
// parent cached are not this process's, the type bitmask starts clean, and
// the port-id allocator rewinds so child-minted ids never collide with ids
// the parent allocated.
func (rt *Runtime) ChildReset() {
	rt.PID = os.Getpid()
	rt.PPID = os.Getppid()
	rt.Types = 0
	rt.PortIDs.Reset()
	rt.Self = nil
}

// SetType marks this process as running the given role.
func (rt *Runtime) SetType(t process.RoleType) {
	rt.Types |= t.Bit()
}

// HasType reports whether the role bit is set.
func (rt *Runtime) HasType(t process.RoleType) bool {
	return rt.Types&t.Bit() != 0
}

// SeedRandom installs a fresh per-process random source.
func (rt *Runtime) SeedRandom() {
	rt.Rand = rand.New(rand.NewPCG(
		uint64(rt.PID),                //nolint:gosec // G115: pid is non-negative
		uint64(time.Now().UnixNano()), //nolint:gosec // G115: wraparound is fine for seeding
	))
}
