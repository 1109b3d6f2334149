package game

import (
	"sync"
	"time"
)

// EventType represents different types of catalog events
type EventType string

const (
	EventTypeGamePlayed EventType = "game_played"
)

// Event is broadcast to websocket subscribers.
type Event struct {
	Type      EventType `json:"type"`
	GameID    string    `json:"game_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster fans events out to subscribers. A subscriber whose buffer is
// full misses the event; Publish never blocks.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	buffer int
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{
		subs:   make(map[chan Event]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called once the subscriber is done; it closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers reports the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
