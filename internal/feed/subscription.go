package feed

import (
	"context"
	"log"
)

// Subscription is a live query: C delivers the full current result set
// on creation and again after every matching change. C is closed when
// the subscription ends; Cancel (or cancelling the parent context) must
// be called on scope teardown, a subscription left running after its
// owner is gone is a leak.
type Subscription[T any] struct {
	C      <-chan []T
	cancel context.CancelFunc
}

// Subscribe starts a live query. fetch must return the complete result
// set each call; transient fetch failures are logged and retried on the
// next signal rather than ending the subscription.
func Subscribe[T any](ctx context.Context, bus *Bus, fetch func(context.Context) ([]T, error), topics ...Topic) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan []T, 1)
	signal := make(chan struct{}, 1)
	bus.register(signal, topics)

	go func() {
		defer close(out)
		defer bus.unregister(signal, topics)

		emit := func() {
			snap, err := fetch(ctx)
			if err != nil {
				log.Printf("feed: fetch failed for %v: %v", topics, err)
				return
			}
			select {
			case out <- snap:
			case <-ctx.Done():
			}
		}

		// Seed with the current state before waiting for changes.
		emit()

		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				emit()
			}
		}
	}()

	return &Subscription[T]{C: out, cancel: cancel}
}

// Cancel stops delivery and releases the subscription's resources. Safe
// to call more than once.
func (s *Subscription[T]) Cancel() {
	s.cancel()
}
