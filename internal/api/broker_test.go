package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	pid := "p1"
	ch := b.Subscribe(pid)

	evt := Event{Type: EventBatchFinished, Data: map[string]any{"x": 1}}
	b.Publish(pid, evt)
	b.Publish("other", Event{Type: "ignored"})

	select {
	case got := <-ch:
		assert.Equal(t, evt.Type, got.Type)
		assert.Equal(t, 1, got.Data["x"])
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(pid, ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	// A second unsubscribe is a no-op.
	b.Unsubscribe(pid, ch)
	b.Publish(pid, evt)
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("p")
	for i := 0; i < 100; i++ {
		b.Publish("p", Event{Type: EventBatchFinished})
	}
	assert.Len(t, ch, cap(ch))
}

func TestRedisBroker(t *testing.T) {
	mr := miniredis.RunT(t)
	b, err := NewRedisBroker("redis://" + mr.Addr())
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	require.NoError(t, b.Ping(context.Background()))

	ch := b.Subscribe("p1")
	b.Publish("p1", Event{Type: EventPlanFinished, Data: map[string]any{"status": "succeeded"}})

	select {
	case got := <-ch:
		assert.Equal(t, EventPlanFinished, got.Type)
		assert.Equal(t, "succeeded", got.Data["status"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}

	b.Unsubscribe("p1", ch)
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisBrokerUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := NewRedisBroker("redis://" + addr)
	assert.Error(t, err)
}
