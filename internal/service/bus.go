package service

import "sync"

// Event kinds published by a session.
const (
	EventSelection  = "selection"
	EventWindow     = "window"
	EventScores     = "scores"
	EventFetchError = "fetch-error"
	EventHighlight  = "highlight"
	EventReport     = "report"
	EventStale      = "stale"
)

// Event is a session change notification.
type Event struct {
	Kind    string // one of the Event* kinds
	Subject string // data source or region id, when relevant
	Token   uint64 // fetch token for scores, fetch-error and stale events
}

// EventBus is a fan-out pub/sub for session events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish sends e to every subscriber without blocking. Slow subscribers miss
// events; they re-read full state on the next one.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a buffered channel of events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Calling it twice is safe.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Subscribers returns the current subscriber count.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
