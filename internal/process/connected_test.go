package process_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/swarm/internal/port"
	"github.com/bamsammich/swarm/internal/process"
)

func TestConnectedPortLifecycle(t *testing.T) {
	t.Parallel()

	rec := process.NewRecord(1, &process.Init{Name: "router"})
	p := port.FromFiles(77, 3, nil, nil)

	// Disconnect before any connect is a no-op.
	rec.DisconnectPort(p)

	_, ok := rec.FindConnected(77, 3)
	assert.False(t, ok)

	rec.ConnectPort(p)
	got, ok := rec.FindConnected(77, 3)
	require.True(t, ok)
	assert.Same(t, p, got)

	// Same key replaces.
	p2 := port.FromFiles(77, 3, nil, nil)
	rec.ConnectPort(p2)
	got, _ = rec.FindConnected(77, 3)
	assert.Same(t, p2, got)

	rec.DisconnectPort(p2)
	_, ok = rec.FindConnected(77, 3)
	assert.False(t, ok)
}

func TestConnectedPortConcurrent(t *testing.T) {
	t.Parallel()

	rec := process.NewRecord(1, &process.Init{Name: "router"})

	const workers = 8
	const perWorker = 200

	// Disjoint keys per goroutine: no entry may be lost or duplicated.
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				p := port.FromFiles(1000+w, uint32(i), nil, nil) //nolint:gosec // G115: small test values
				rec.ConnectPort(p)
				if _, ok := rec.FindConnected(1000+w, uint32(i)); !ok {
					t.Errorf("entry (%d,%d) lost after add", 1000+w, i)
					return
				}
				if i%2 == 0 {
					rec.DisconnectPort(p)
				}
			}
		}()
	}
	wg.Wait()

	for w := range workers {
		for i := range perWorker {
			_, ok := rec.FindConnected(1000+w, uint32(i)) //nolint:gosec // G115: small test values
			if i%2 == 0 {
				assert.False(t, ok, "removed entry (%d,%d) still present", w, i)
			} else {
				assert.True(t, ok, "entry (%d,%d) missing", w, i)
			}
		}
	}
}
