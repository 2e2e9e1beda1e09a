package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	subscriberBufSize = 256
	historySize       = 100
)

// Feeds published by the controller.
const (
	FeedHandoff = "handoff"
	FeedAttach  = "attach"
	FeedTabs    = "tabs"
)

// Event is a single record streamed to SSE clients.
type Event struct {
	ID      string    `json:"id"`
	Feed    string    `json:"feed"`
	At      time.Time `json:"at"`
	Payload string    `json:"payload"`
}

// Broker fans out events to all subscribed SSE clients and keeps a short
// history for clients that connect late.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64

	histMu  sync.Mutex
	history []Event
	now     func() time.Time
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
		now:         time.Now,
	}
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive events on. The channel is buffered; slow consumers will have
// events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers. Non-blocking: slow clients
// have events dropped. Missing IDs and timestamps are filled in.
func (b *Broker) Publish(evt Event) Event {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.At.IsZero() {
		evt.At = b.now()
	}

	b.histMu.Lock()
	b.history = append(b.history, evt)
	if over := len(b.history) - historySize; over > 0 {
		b.history = append([]Event(nil), b.history[over:]...)
	}
	b.histMu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
	return evt
}

// PublishJSON marshals v as the payload of a new event on feed.
func (b *Broker) PublishJSON(feed string, v any) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("events: marshal %s payload: %w", feed, err)
	}
	return b.Publish(Event{Feed: feed, Payload: string(data)}), nil
}

// Recent returns up to n of the latest events on feed, oldest first. An
// empty feed matches all feeds.
func (b *Broker) Recent(feed string, n int) []Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	out := make([]Event, 0, len(b.history))
	for _, evt := range b.history {
		if feed == "" || evt.Feed == feed {
			out = append(out, evt)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
