//go:build linux

package engine

func builtinInterfaces() []Interface {
	return []Interface{epollInterface{}, pollInterface{}}
}

// DefaultBackend is the backend used when the configuration names none.
const DefaultBackend = "epoll"
