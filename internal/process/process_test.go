package process_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/swarm/internal/port"
	"github.com/bamsammich/swarm/internal/process"
)

func TestAddPortCleanupCounter(t *testing.T) {
	t.Parallel()

	g := process.NewRegistry()
	rec := process.NewRecord(50, &process.Init{Name: "router"})
	g.Add(rec)

	p1, err := port.NewPair(50, 0)
	require.NoError(t, err)
	p2, err := port.NewPair(50, 1)
	require.NoError(t, err)

	onZero := func(r *process.Record) { g.Remove(r) }
	rec.AddPort(p1, onZero)
	rec.AddPort(p2, onZero)
	assert.Equal(t, 2, rec.PendingCleanups())
	assert.Same(t, p1, rec.FirstPort())

	// Removal refused while ports are pending.
	assert.False(t, g.Remove(rec))
	assert.Equal(t, 1, g.Len())

	p1.Close()
	assert.Equal(t, 1, rec.PendingCleanups())
	assert.Equal(t, 1, g.Len())

	// Last port released: the record leaves the registry deterministically.
	p2.Close()
	assert.Zero(t, rec.PendingCleanups())
	assert.Zero(t, g.Len())
}

func TestPortsOrder(t *testing.T) {
	t.Parallel()

	rec := process.NewRecord(9, &process.Init{Name: "worker"})

	var created []*port.Port
	for i := range uint32(3) {
		p, err := port.NewPair(9, i)
		require.NoError(t, err)
		defer p.Close()
		rec.AddPort(p, nil)
		created = append(created, p)
	}

	assert.Equal(t, created, rec.Ports())
}

func TestRecordName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "controller", process.NewRecord(1, &process.Init{Name: "controller"}).Name())
	assert.Equal(t, "?", process.NewRecord(1, nil).Name())
}
