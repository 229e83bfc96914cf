package process

import "sync"

// Registry is the runtime's collection of process records, keyed by pid and
// iterated in insertion order.
//
// In the main process it is touched from several goroutines at once: the
// spawner adds records, the control-port dispatch goroutine marks them
// ready, and per-child reapers remove them. mu serializes all of that. A
// freshly spawned child still treats its registry as single-owner state,
// but pays the same (uncontended) lock.
type Registry struct {
	mu    sync.RWMutex
	byPID map[int]*Record
	order []int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byPID: make(map[int]*Record)}
}

// Add inserts rec, replacing any prior record for the same pid.
func (g *Registry) Add(rec *Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byPID[rec.PID]; !ok {
		g.order = append(g.order, rec.PID)
	}
	g.byPID[rec.PID] = rec
}

// Get returns the record for pid, or nil.
func (g *Registry) Get(pid int) *Record {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byPID[pid]
}

// Remove drops rec from the registry. Records with pending port cleanups
// stay put: removal is re-triggered by the cleanup hook reaching zero.
func (g *Registry) Remove(rec *Record) bool {
	if rec.PendingCleanups() > 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drop(rec.PID)
	return true
}

// drop removes pid; the caller holds mu.
func (g *Registry) drop(pid int) {
	if _, ok := g.byPID[pid]; !ok {
		return
	}
	delete(g.byPID, pid)
	for i, p := range g.order {
		if p == pid {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of records.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byPID)
}

// Each calls fn for every record in insertion order. fn runs on a snapshot
// taken under the lock, so it may call back into the registry.
func (g *Registry) Each(fn func(*Record)) {
	g.mu.RLock()
	recs := make([]*Record, 0, len(g.order))
	for _, pid := range g.order {
		if rec, ok := g.byPID[pid]; ok {
			recs = append(recs, rec)
		}
	}
	g.mu.RUnlock()

	for _, rec := range recs {
		fn(rec)
	}
}

// PruneStale walks the registry the way a freshly spawned child must:
// records still not ready belonged to sibling spawns that were in flight —
// they are not this process's state and are purged outright, pending
// cleanups or not. Ready records stay, but release is called on each so
// the child can let go of the parent's view of their shared port regions
// (handled by the port-transport collaborator).
func (g *Registry) PruneStale(release func(*Record)) {
	g.mu.Lock()
	var kept []*Record
	for _, pid := range append([]int(nil), g.order...) {
		rec, ok := g.byPID[pid]
		if !ok {
			continue
		}
		if !rec.Ready.Load() {
			g.drop(pid)
			continue
		}
		kept = append(kept, rec)
	}
	g.mu.Unlock()

	if release != nil {
		for _, rec := range kept {
			release(rec)
		}
	}
}
