// Package feed implements the live query layer: repositories publish a
// topic signal after every write, and subscriptions answer each signal
// with a full re-read of their query, pushed to the subscriber as an
// authoritative snapshot. Consumers replace prior state wholesale on
// every emission; nothing is merged field-by-field.
package feed

import (
	"sync"
)

type Topic string

const (
	TopicUsers    Topic = "users"
	TopicRequests Topic = "requests"
	TopicEdges    Topic = "edges"
	TopicChats    Topic = "chats"
)

// MessagesTopic scopes message change signals to one chat.
func MessagesTopic(chatID string) Topic {
	return Topic("messages:" + chatID)
}

// Bus fans write signals out to subscriptions. Signals carry no data;
// they only mean "something matching this topic changed, re-read".
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic]map[chan struct{}]struct{}
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[Topic]map[chan struct{}]struct{}),
	}
}

// Publish signals every subscription registered on any of the topics.
// Non-blocking: a subscriber with a signal already pending is not
// signalled again, the pending one covers this change too.
func (b *Bus) Publish(topics ...Topic) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range topics {
		for ch := range b.subs[t] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

func (b *Bus) register(ch chan struct{}, topics []Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		if b.subs[t] == nil {
			b.subs[t] = make(map[chan struct{}]struct{})
		}
		b.subs[t][ch] = struct{}{}
	}
}

func (b *Bus) unregister(ch chan struct{}, topics []Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.subs[t], ch)
		if len(b.subs[t]) == 0 {
			delete(b.subs, t)
		}
	}
}

// SubscriberCount reports how many subscriptions listen on a topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
