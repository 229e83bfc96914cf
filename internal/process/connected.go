package process

import "github.com/bamsammich/swarm/internal/port"

// portKey identifies a remote port: the owning process id plus the port id
// within that process.
type portKey struct {
	pid    int
	portID uint32
}

// ConnectPort records a remote port this process has been introduced to.
// An existing entry for the same (pid, port id) is replaced. Safe to call
// from any goroutine of the owning process.
func (r *Record) ConnectPort(p *port.Port) {
	r.cpMu.Lock()
	defer r.cpMu.Unlock()

	if r.connected == nil {
		r.connected = make(map[portKey]*port.Port)
	}
	r.connected[portKey{pid: p.PID, portID: p.ID}] = p
}

// DisconnectPort forgets a previously connected port. A no-op if the map
// was never created or the entry is absent.
func (r *Record) DisconnectPort(p *port.Port) {
	r.cpMu.Lock()
	defer r.cpMu.Unlock()

	if r.connected == nil {
		return
	}
	delete(r.connected, portKey{pid: p.PID, portID: p.ID})
}

// FindConnected looks up a connected port by remote pid and port id.
// Ownership does not transfer; the caller must not close the result.
func (r *Record) FindConnected(pid int, portID uint32) (*port.Port, bool) {
	r.cpMu.Lock()
	defer r.cpMu.Unlock()

	p, ok := r.connected[portKey{pid: pid, portID: portID}]
	return p, ok
}
