package engine_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/swarm/internal/engine"
)

func TestPoolRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := engine.NewPool(0, time.Second)
	require.ErrorIs(t, err, engine.ErrPoolCreate)

	_, err = engine.NewPool(4, 0)
	require.ErrorIs(t, err, engine.ErrPoolCreate)
}

func TestPoolRunsTasks(t *testing.T) {
	t.Parallel()

	p, err := engine.NewPool(4, time.Minute)
	require.NoError(t, err)

	var ran atomic.Int64
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	p.Close()

	assert.Equal(t, int64(50), ran.Load())
}

func TestPoolBoundsWorkers(t *testing.T) {
	t.Parallel()

	p, err := engine.NewPool(2, time.Minute)
	require.NoError(t, err)
	defer p.Close()

	block := make(chan struct{})
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			<-block
		}))
	}

	assert.LessOrEqual(t, p.Active(), 2)
	close(block)
	wg.Wait()
}

func TestPoolIdleReclaim(t *testing.T) {
	t.Parallel()

	p, err := engine.NewPool(4, 50*time.Millisecond)
	require.NoError(t, err)
	defer p.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Submit(func() { wg.Done() }))
	wg.Wait()

	// The worker should exit after sitting idle past the timeout.
	assert.Eventually(t, func() bool { return p.Active() == 0 },
		2*time.Second, 20*time.Millisecond)
}

func TestPoolSubmitAfterClose(t *testing.T) {
	t.Parallel()

	p, err := engine.NewPool(1, time.Minute)
	require.NoError(t, err)
	p.Close()

	err = p.Submit(func() {})
	require.ErrorIs(t, err, engine.ErrPoolClosed)
}
