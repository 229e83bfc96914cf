package port_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/swarm/internal/port"
)

func TestPortWriteRequiresEnable(t *testing.T) {
	t.Parallel()

	p, err := port.NewPair(1, 0)
	require.NoError(t, err)
	defer p.Close()

	err = p.Write(port.Frame{MsgType: port.MsgReady})
	require.ErrorIs(t, err, port.ErrWriteDisabled)
}

func TestPortDispatch(t *testing.T) {
	t.Parallel()

	p, err := port.NewPair(1, 0)
	require.NoError(t, err)
	defer p.Close()

	got := make(chan port.Frame, 1)
	p.Enable(port.HandlerTable{
		port.MsgReady: func(f port.Frame) { got <- f },
	})

	p.WriteEnable()
	require.NoError(t, p.Write(port.Frame{Stream: 42, MsgType: port.MsgReady}))

	select {
	case f := <-got:
		assert.Equal(t, uint32(42), f.Stream)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dispatched frame")
	}
}

func TestPortUnknownTypeDiscarded(t *testing.T) {
	t.Parallel()

	p, err := port.NewPair(1, 0)
	require.NoError(t, err)
	defer p.Close()

	got := make(chan port.Frame, 2)
	p.Enable(port.HandlerTable{
		port.MsgQuit: func(f port.Frame) { got <- f },
	})

	p.WriteEnable()
	require.NoError(t, p.Write(port.Frame{MsgType: port.MsgData})) // no handler
	require.NoError(t, p.Write(port.Frame{MsgType: port.MsgQuit}))

	select {
	case f := <-got:
		assert.Equal(t, port.MsgQuit, f.MsgType)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for quit frame")
	}
	assert.Empty(t, got)
}

func TestPortCloseRunsHookOnce(t *testing.T) {
	t.Parallel()

	p, err := port.NewPair(1, 0)
	require.NoError(t, err)

	calls := 0
	p.OnClose = func() { calls++ }

	p.Close()
	p.Close()
	assert.Equal(t, 1, calls)

	select {
	case <-p.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}
}

func TestIDAllocator(t *testing.T) {
	t.Parallel()

	var a port.IDAllocator
	assert.Equal(t, uint32(0), a.Next())
	assert.Equal(t, uint32(1), a.Next())
	assert.Equal(t, uint32(2), a.Next())

	a.Reset()
	assert.Equal(t, uint32(0), a.Next())
}
