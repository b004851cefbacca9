package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func assertEmpty[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value %v", v)
		}
	default:
	}
}

func TestLatestReplaysCurrentValue(t *testing.T) {
	s := NewLatest("initial")
	s.Publish("first")
	s.Publish("second")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	assert.Equal(t, "second", receive(t, ch))
	assertEmpty(t, ch)
	assert.Equal(t, "second", s.Current())
}

func TestLatestInitialValue(t *testing.T) {
	s := NewLatest(42)
	ch := s.Subscribe(context.Background())
	assert.Equal(t, 42, receive(t, ch))
}

func TestConflatedHasNoReplay(t *testing.T) {
	s := NewConflated[string]()
	s.Publish("before")

	ch := s.Subscribe(context.Background())
	assertEmpty(t, ch)

	s.Publish("after")
	assert.Equal(t, "after", receive(t, ch))
}

func TestSlowSubscriberSeesNewestOnly(t *testing.T) {
	s := NewConflated[int]()
	ch := s.Subscribe(context.Background())

	s.Publish(1)
	s.Publish(2)
	s.Publish(3)

	assert.Equal(t, 3, receive(t, ch))
	assertEmpty(t, ch)
}

func TestPublishNeverBlocks(t *testing.T) {
	s := NewConflated[int]()
	_ = s.Subscribe(context.Background())
	_ = s.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on unread subscribers")
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	s := NewConflated[int]()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	require.Equal(t, 1, s.Subscribers())

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Equal(t, 0, s.Subscribers())
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s := NewLatest("x")
	ch := s.Subscribe(context.Background())
	assert.Equal(t, "x", receive(t, ch))

	s.Close()
	s.Publish("ignored")

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, "x", s.Current())

	late := s.Subscribe(context.Background())
	_, ok = <-late
	assert.False(t, ok)
}
