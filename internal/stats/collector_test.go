package stats_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/swarm/internal/stats"
)

func TestCollectorCounters(t *testing.T) {
	t.Parallel()

	c := stats.NewCollector()
	c.AddProcessesForked(2)
	c.AddProcessesReady(1)
	c.AddProcessesFailed(1)
	c.AddPortsAdded(3)
	c.AddPortsRemoved(1)
	c.AddCredResolves(5)

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.ProcessesForked)
	assert.Equal(t, int64(1), snap.ProcessesReady)
	assert.Equal(t, int64(1), snap.ProcessesFailed)
	assert.Equal(t, int64(3), snap.PortsAdded)
	assert.Equal(t, int64(1), snap.PortsRemoved)
	assert.Equal(t, int64(5), snap.CredResolves)
	assert.GreaterOrEqual(t, snap.Elapsed, time.Duration(0))
}

func TestCollectorConcurrent(t *testing.T) {
	t.Parallel()

	c := stats.NewCollector()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.AddProcessesForked(1)
				c.AddPortsAdded(1)
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, int64(1600), snap.ProcessesForked)
	assert.Equal(t, int64(1600), snap.PortsAdded)
}
