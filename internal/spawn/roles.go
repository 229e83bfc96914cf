package spawn

import (
	"fmt"
	"sync"

	"github.com/bamsammich/swarm/internal/process"
)

// InitFunc builds the descriptor for one role. Registered per role name so
// a re-exec'd child can reconstruct its descriptor: entry points and
// handler tables cannot cross the exec boundary, only the name does.
type InitFunc func() *process.Init

var (
	roleMu sync.RWMutex
	roles  = make(map[string]InitFunc)
)

// RegisterRole binds a role name to its descriptor builder. Called from the
// binary's startup path, before any spawn or child dispatch.
func RegisterRole(name string, fn InitFunc) {
	roleMu.Lock()
	defer roleMu.Unlock()
	roles[name] = fn
}

func lookupRole(name string) (InitFunc, error) {
	roleMu.RLock()
	defer roleMu.RUnlock()

	fn, ok := roles[name]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", name)
	}
	return fn, nil
}
