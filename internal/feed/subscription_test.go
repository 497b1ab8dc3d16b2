package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fetchStub hands out whatever snapshot was last stored, counting calls.
type fetchStub struct {
	mu    sync.Mutex
	snap  []string
	err   error
	calls int
}

func (f *fetchStub) set(snap []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

func (f *fetchStub) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fetchStub) fetch(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func recv(t *testing.T, ch <-chan []string) []string {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "channel closed before expected emission")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
		return nil
	}
}

func TestSubscribeSeedsWithCurrentState(t *testing.T) {
	bus := NewBus()
	stub := &fetchStub{snap: []string{"a", "b"}}

	sub := Subscribe(context.Background(), bus, stub.fetch, TopicUsers)
	defer sub.Cancel()

	assert.Equal(t, []string{"a", "b"}, recv(t, sub.C))
}

func TestSubscribeReEmitsOnPublish(t *testing.T) {
	bus := NewBus()
	stub := &fetchStub{snap: []string{"a"}}

	sub := Subscribe(context.Background(), bus, stub.fetch, TopicUsers)
	defer sub.Cancel()

	assert.Equal(t, []string{"a"}, recv(t, sub.C))

	stub.set([]string{"a", "b"})
	bus.Publish(TopicUsers)

	assert.Equal(t, []string{"a", "b"}, recv(t, sub.C))
}

func TestSubscribeIgnoresOtherTopics(t *testing.T) {
	bus := NewBus()
	stub := &fetchStub{snap: []string{"a"}}

	sub := Subscribe(context.Background(), bus, stub.fetch, TopicUsers)
	defer sub.Cancel()

	recv(t, sub.C)

	bus.Publish(TopicChats)

	select {
	case snap, ok := <-sub.C:
		if ok {
			t.Fatalf("unexpected emission %v for unrelated topic", snap)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeSurvivesFetchFailure(t *testing.T) {
	bus := NewBus()
	stub := &fetchStub{snap: []string{"a"}}

	sub := Subscribe(context.Background(), bus, stub.fetch, TopicUsers)
	defer sub.Cancel()

	recv(t, sub.C)

	// A transient failure is skipped, not fatal to the subscription.
	stub.fail(errors.New("connection reset"))
	bus.Publish(TopicUsers)
	time.Sleep(50 * time.Millisecond)

	stub.fail(nil)
	stub.set([]string{"a", "b"})
	bus.Publish(TopicUsers)

	assert.Equal(t, []string{"a", "b"}, recv(t, sub.C))
}

func TestCancelClosesChannelAndUnregisters(t *testing.T) {
	bus := NewBus()
	stub := &fetchStub{snap: []string{"a"}}

	sub := Subscribe(context.Background(), bus, stub.fetch, TopicUsers)
	recv(t, sub.C)
	assert.Equal(t, 1, bus.SubscriberCount(TopicUsers))

	sub.Cancel()

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok, "channel must close on cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}

	require.Eventually(t, func() bool {
		return bus.SubscriberCount(TopicUsers) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestParentContextCancelEndsSubscription(t *testing.T) {
	bus := NewBus()
	stub := &fetchStub{snap: []string{"a"}}

	ctx, cancel := context.WithCancel(context.Background())
	sub := Subscribe(ctx, bus, stub.fetch, TopicUsers)
	recv(t, sub.C)

	cancel()

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after parent cancel")
	}
}

func TestPublishCoalescesPendingSignals(t *testing.T) {
	bus := NewBus()
	stub := &fetchStub{snap: []string{"a"}}

	sub := Subscribe(context.Background(), bus, stub.fetch, TopicUsers)
	defer sub.Cancel()
	recv(t, sub.C)

	// A burst of publishes while the subscriber is busy collapses into
	// at most a couple of re-reads, never one per publish.
	for i := 0; i < 50; i++ {
		bus.Publish(TopicUsers)
	}
	recv(t, sub.C)
	time.Sleep(100 * time.Millisecond)

	stub.mu.Lock()
	calls := stub.calls
	stub.mu.Unlock()
	assert.Less(t, calls, 10, "expected coalescing, got %d fetches for 50 publishes", calls)
}
