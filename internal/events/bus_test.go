package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeFiltersByType(t *testing.T) {
	bus := NewBus()
	payments := bus.Subscribe(TypePaymentSettled)
	everything := bus.Subscribe()

	bus.Emit(TypePaymentSettled, "/operations/checkout", "did:key:alice", map[string]any{"amount": 100})
	bus.Emit(TypeQueryExecuted, "/operations/query", "", nil)

	ev := <-payments
	assert.Equal(t, TypePaymentSettled, ev.Type)
	assert.Empty(t, payments)

	require.Len(t, everything, 2)
	assert.Equal(t, TypePaymentSettled, (<-everything).Type)
	assert.Equal(t, TypeQueryExecuted, (<-everything).Type)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TypeTokenMinted)
	bus.Unsubscribe(sub)

	// The channel is closed and removed; emitting afterwards is safe.
	_, open := <-sub
	assert.False(t, open)
	bus.Emit(TypeTokenMinted, "/operations/token/mint", "", nil)
}

func TestUnsubscribeAfterCloseDoesNotPanic(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TypeProvenanceAppend)
	bus.Close()

	// Close already closed the channel; a late Unsubscribe from a
	// draining consumer must not close it again.
	assert.NotPanics(t, func() { bus.Unsubscribe(sub) })

	_, open := <-sub
	assert.False(t, open)
}

func TestEmitAfterCloseIsNoOp(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	bus.Close()
	bus.Emit(TypeAuthVerified, "/auth/verify", "did:key:bob", nil)

	_, open := <-sub
	assert.False(t, open)
}
