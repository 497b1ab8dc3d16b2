// Package identity is the boundary to the identity collaborator: it
// answers who the current user is and announces session changes so
// sync sessions can seed or tear down their subscriptions.
package identity

import (
	"context"
	"sync"
)

// Event announces a session change.
type Event struct {
	UserID   string
	SignedIn bool
}

// Provider resolves the identity attached to a request context.
type Provider interface {
	CurrentUserID(ctx context.Context) (string, bool)
}

// Broadcaster fans session events out to listeners. The websocket layer
// announces sign-in on a user's first connection and sign-out on their
// last disconnect.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[chan Event]struct{}),
	}
}

// Announce delivers the event to every listener. Non-blocking: a
// listener that is not keeping up misses intermediate events.
func (b *Broadcaster) Announce(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Listen registers a listener. The returned cancel func must be called
// on scope teardown; it closes the channel.
func (b *Broadcaster) Listen() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

type ctxKey struct{}

// WithUserID stores the authenticated user id on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// ContextProvider reads the user id placed on the context by the auth
// middleware.
type ContextProvider struct{}

func (ContextProvider) CurrentUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
