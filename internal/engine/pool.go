package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrPoolCreate wraps auxiliary-pool construction failures.
var ErrPoolCreate = errors.New("thread pool create failed")

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("thread pool closed")

// Pool is the bounded auxiliary worker pool each spawned process carries.
// Workers start on demand up to the configured maximum and exit after the
// idle timeout — the timeout reclaims resources, it is not an operation
// deadline.
type Pool struct {
	tasks       chan func()
	idleTimeout time.Duration
	max         int

	mu      sync.Mutex
	active  int
	closed  bool
	drained sync.WaitGroup
}

// NewPool creates a pool of at most max workers with the given idle timeout.
func NewPool(max int, idleTimeout time.Duration) (*Pool, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: worker count %d", ErrPoolCreate, max)
	}
	if idleTimeout <= 0 {
		return nil, fmt.Errorf("%w: idle timeout %s", ErrPoolCreate, idleTimeout)
	}
	return &Pool{
		tasks:       make(chan func()),
		idleTimeout: idleTimeout,
		max:         max,
	}, nil
}

// Submit queues fn for execution, starting a worker if none is idle and the
// bound allows. Blocks while all workers are busy and the bound is reached.
func (p *Pool) Submit(fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}

	// Fast path: an idle worker picks it up.
	select {
	case p.tasks <- fn:
		p.mu.Unlock()
		return nil
	default:
	}

	if p.active < p.max {
		p.active++
		p.drained.Add(1)
		go p.worker()
	}
	p.mu.Unlock()

	p.tasks <- fn
	return nil
}

func (p *Pool) worker() {
	defer p.drained.Done()

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case fn, ok := <-p.tasks:
			if !ok {
				p.exit()
				return
			}
			fn()
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.idleTimeout)
		case <-idle.C:
			p.exit()
			return
		}
	}
}

func (p *Pool) exit() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
}

// Active reports the current worker count.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Close stops accepting work and waits for running tasks to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.tasks)
	p.drained.Wait()
}
