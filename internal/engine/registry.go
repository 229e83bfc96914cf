package engine

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when no interface is registered under a name.
var ErrNotFound = errors.New("interface not found")

type svcKey struct {
	kind string
	name string
}

// Services is the runtime's directory of named pluggable interfaces. The
// spawner queries it for the configured event-engine backend; other
// subsystems may register their own kinds.
type Services struct {
	mu sync.RWMutex
	m  map[svcKey]any
}

// NewServices creates an empty service directory.
func NewServices() *Services {
	return &Services{m: make(map[svcKey]any)}
}

// Register binds iface under (kind, name), replacing any prior binding.
func (s *Services) Register(kind, name string, iface any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[svcKey{kind: kind, name: name}] = iface
}

// Get returns the interface registered under (kind, name).
func (s *Services) Get(kind, name string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.m[svcKey{kind: kind, name: name}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrNotFound, kind, name)
	}
	return v, nil
}

// GetEngine resolves a registered event-engine interface by name.
func (s *Services) GetEngine(name string) (Interface, error) {
	v, err := s.Get("engine", name)
	if err != nil {
		return nil, err
	}
	iface, ok := v.(Interface)
	if !ok {
		return nil, fmt.Errorf("%w: engine %q has wrong type %T", ErrNotFound, name, v)
	}
	return iface, nil
}

// RegisterDefaults registers the engine backends compiled into this build.
func RegisterDefaults(s *Services) {
	for _, iface := range builtinInterfaces() {
		s.Register("engine", iface.Name(), iface)
	}
}
