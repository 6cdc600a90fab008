package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	t.Parallel()
	bus := NewBus()

	var order []int
	bus.Subscribe("t", func(any) { order = append(order, 1) })
	bus.Subscribe("t", func(any) { order = append(order, 2) })
	bus.Subscribe("t", func(any) { order = append(order, 3) })

	delivered := bus.Publish("t", "payload")

	assert.Equal(t, 3, delivered)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	bus := NewBus()

	var after bool
	bus.Subscribe("t", func(any) { panic("boom") })
	bus.Subscribe("t", func(any) { after = true })

	delivered := bus.Publish("t", nil)

	assert.Equal(t, 2, delivered)
	assert.True(t, after, "handler after the panicking one must still run")

	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.HandlerPanics)
	assert.Equal(t, uint64(1), stats.Delivered)
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()
	bus := NewBus()

	var calls int
	tok := bus.Subscribe("t", func(any) { calls++ })
	require.True(t, bus.HasSubscribers("t"))

	bus.Publish("t", nil)
	bus.Unsubscribe(tok)
	bus.Publish("t", nil)

	assert.Equal(t, 1, calls)
	assert.False(t, bus.HasSubscribers("t"))

	// Unknown tokens are ignored.
	bus.Unsubscribe(tok)
}

func TestHasSubscribersGatesPublishing(t *testing.T) {
	t.Parallel()
	bus := NewBus()

	assert.False(t, bus.HasSubscribers("t"))
	assert.Equal(t, 0, bus.Publish("t", nil))
	assert.Equal(t, uint64(1), bus.Stats().DroppedNoSubs)

	bus.Subscribe("t", func(any) {})
	assert.True(t, bus.HasSubscribers("t"))
	assert.False(t, bus.HasSubscribers("other"))
}

func TestPublishSnapshotIsolation(t *testing.T) {
	t.Parallel()
	bus := NewBus()

	// A handler subscribing during delivery must not receive the payload
	// that triggered it.
	var lateCalls int
	bus.Subscribe("t", func(any) {
		bus.Subscribe("t", func(any) { lateCalls++ })
	})

	bus.Publish("t", nil)
	assert.Equal(t, 0, lateCalls)

	bus.Publish("t", nil)
	assert.Equal(t, 1, lateCalls)
}
