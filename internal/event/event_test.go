package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/swarm/internal/event"
)

func TestTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ProcessForked", event.ProcessForked.String())
	assert.Equal(t, "ProcessReady", event.ProcessReady.String())
	assert.Equal(t, "PortAdded", event.PortAdded.String())
	assert.Equal(t, "Unknown", event.Type(0).String())
	assert.Equal(t, "Unknown", event.Type(999).String())
}

func TestSinkEmit(t *testing.T) {
	t.Parallel()

	ch := make(chan event.Event, 1)
	sink := event.Sink(ch)

	sink.Emit(event.Event{Type: event.ProcessForked, PID: 42, Role: "router"})

	ev := <-ch
	require.Equal(t, event.ProcessForked, ev.Type)
	assert.Equal(t, 42, ev.PID)
	assert.Equal(t, "router", ev.Role)
	assert.False(t, ev.Timestamp.IsZero(), "Emit should stamp the event")
}

func TestSinkEmitNonBlocking(t *testing.T) {
	t.Parallel()

	ch := make(chan event.Event, 1)
	sink := event.Sink(ch)

	// Fill the buffer, then emit again: must not block.
	sink.Emit(event.Event{Type: event.ProcessForked})
	sink.Emit(event.Event{Type: event.ProcessReady})

	ev := <-ch
	assert.Equal(t, event.ProcessForked, ev.Type)
	assert.Empty(t, ch)
}

func TestNilSink(t *testing.T) {
	t.Parallel()

	var sink event.Sink
	sink.Emit(event.Event{Type: event.ProcessReady}) // must not panic
}
