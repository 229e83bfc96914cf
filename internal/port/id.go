package port

import "sync/atomic"

// IDAllocator hands out process-local port ids. Each process owns one
// allocator; a freshly spawned child resets it so its ids never collide
// with ids the parent minted before the spawn.
type IDAllocator struct {
	next atomic.Uint32
}

// Next returns the next unused port id.
func (a *IDAllocator) Next() uint32 {
	return a.next.Add(1) - 1
}

// Reset rewinds the allocator to zero.
func (a *IDAllocator) Reset() {
	a.next.Store(0)
}
