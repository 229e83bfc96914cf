// Package stats tracks process-lifecycle counters using lock-free atomics.
package stats

import (
	"sync/atomic"
	"time"
)

// Collector counts lifecycle operations across the runtime. All methods are
// safe for concurrent use by any goroutine.
type Collector struct {
	processesForked  atomic.Int64
	processesReady   atomic.Int64
	processesFailed  atomic.Int64
	processesRemoved atomic.Int64
	portsAdded       atomic.Int64
	portsRemoved     atomic.Int64
	portsConnected   atomic.Int64
	credResolves     atomic.Int64
	credResolveFails atomic.Int64
	startTime        time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	ProcessesForked  int64
	ProcessesReady   int64
	ProcessesFailed  int64
	ProcessesRemoved int64
	PortsAdded       int64
	PortsRemoved     int64
	PortsConnected   int64
	CredResolves     int64
	CredResolveFails int64
	Elapsed          time.Duration
}

func (c *Collector) AddProcessesForked(n int64)  { c.processesForked.Add(n) }
func (c *Collector) AddProcessesReady(n int64)   { c.processesReady.Add(n) }
func (c *Collector) AddProcessesFailed(n int64)  { c.processesFailed.Add(n) }
func (c *Collector) AddProcessesRemoved(n int64) { c.processesRemoved.Add(n) }
func (c *Collector) AddPortsAdded(n int64)       { c.portsAdded.Add(n) }
func (c *Collector) AddPortsRemoved(n int64)     { c.portsRemoved.Add(n) }
func (c *Collector) AddPortsConnected(n int64)   { c.portsConnected.Add(n) }
func (c *Collector) AddCredResolves(n int64)     { c.credResolves.Add(n) }
func (c *Collector) AddCredResolveFails(n int64) { c.credResolveFails.Add(n) }

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		ProcessesForked:  c.processesForked.Load(),
		ProcessesReady:   c.processesReady.Load(),
		ProcessesFailed:  c.processesFailed.Load(),
		ProcessesRemoved: c.processesRemoved.Load(),
		PortsAdded:       c.portsAdded.Load(),
		PortsRemoved:     c.portsRemoved.Load(),
		PortsConnected:   c.portsConnected.Load(),
		CredResolves:     c.credResolves.Load(),
		CredResolveFails: c.credResolveFails.Load(),
		Elapsed:          c.Elapsed(),
	}
}

// Elapsed returns the time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	if c.startTime.IsZero() {
		return 0
	}
	return time.Since(c.startTime)
}
