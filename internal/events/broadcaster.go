package events

import (
	"sync"
)

// Subscriber receives events as they are emitted.
type Subscriber chan Event

// Broadcaster fans events out to live subscribers (websocket clients).
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
}

var broadcaster = &Broadcaster{
	subscribers: make(map[Subscriber]struct{}),
}

// Subscribe adds a new subscriber. The channel is buffered so a slow client
// never blocks Emit.
func Subscribe() Subscriber {
	ch := make(Subscriber, 64)
	broadcaster.mu.Lock()
	broadcaster.subscribers[ch] = struct{}{}
	broadcaster.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown or
// already closed subscribers are ignored.
func Unsubscribe(sub Subscriber) {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	if _, ok := broadcaster.subscribers[sub]; !ok {
		return
	}
	delete(broadcaster.subscribers, sub)
	close(sub)
}

// CloseAllSubscribers closes every subscriber channel. Called on shutdown.
func CloseAllSubscribers() {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	for sub := range broadcaster.subscribers {
		close(sub)
	}
	broadcaster.subscribers = make(map[Subscriber]struct{})
}

// broadcast drops the event for any subscriber whose buffer is full.
func broadcast(e Event) {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()

	for sub := range broadcaster.subscribers {
		select {
		case sub <- e:
		default:
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func SubscriberCount() int {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()
	return len(broadcaster.subscribers)
}

// RecentEvents returns the last n events from the ring buffer, or all of
// them when n is not positive or exceeds what is buffered.
func RecentEvents(n int) []Event {
	return buffer.Last(n)
}
