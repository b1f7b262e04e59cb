package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerDeliversToSubscribers(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first, err := b.Subscribe(ctx, "events")
	require.NoError(t, err)
	second, err := b.Subscribe(ctx, "events")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "other")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "events", map[string]string{"type": "booked"}))

	for _, ch := range []<-chan []byte{first, second} {
		select {
		case raw := <-ch:
			assert.JSONEq(t, `{"type":"booked"}`, string(raw))
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}
	assert.Empty(t, other)
}

func TestMemoryBrokerUnsubscribesOnCancel(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "events")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, b.Publish(context.Background(), "events", "late"))
}

func TestMemoryBrokerClosed(t *testing.T) {
	b := NewMemoryBroker()
	ch, err := b.Subscribe(context.Background(), "events")
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, ok := <-ch
	assert.False(t, ok)
	assert.Error(t, b.Publish(context.Background(), "events", "x"))
	_, err = b.Subscribe(context.Background(), "events")
	assert.Error(t, err)
}
