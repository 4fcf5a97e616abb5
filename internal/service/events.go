package service

import (
	"context"
	"sync"
)

// EventType defines the type of event
type EventType string

// Crawl progress events carry the crawler's own type names; these are the
// service-level additions
const (
	EventCrawlFailed    EventType = "crawl-failed"
	EventCrawlSaved     EventType = "crawl-saved"
	EventPolicyReloaded EventType = "policy-reloaded"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventBus allows publishing and subscribing to events.
// Channel subscribers are lossy: an event is dropped for a subscriber whose
// buffer is full. Streams never drop.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
	streams     []*stream
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes a subscriber
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
	for _, st := range eb.streams {
		st.push(event)
	}
}

// Stream returns a channel receiving every event published from now on, in
// order. Events queue without bound until read. The channel is closed once
// stop has been called and the queue is drained, or when ctx is done.
func (eb *EventBus) Stream(ctx context.Context) (<-chan Event, func()) {
	st := &stream{wake: make(chan struct{}, 1)}
	out := make(chan Event)

	eb.mu.Lock()
	eb.streams = append(eb.streams, st)
	eb.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			eb.mu.Lock()
			for i, s := range eb.streams {
				if s == st {
					eb.streams = append(eb.streams[:i], eb.streams[i+1:]...)
					break
				}
			}
			eb.mu.Unlock()
			st.stop()
		})
	}

	go func() {
		defer close(out)
		defer stop()
		for {
			batch, stopped := st.take()
			for _, ev := range batch {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			if len(batch) > 0 {
				continue
			}
			if stopped {
				return
			}
			select {
			case <-st.wake:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, stop
}

// stream is an unbounded FIFO feeding one Stream reader
type stream struct {
	mu      sync.Mutex
	pending []Event
	stopped bool
	wake    chan struct{}
}

func (s *stream) push(ev Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
	s.signal()
}

func (s *stream) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.signal()
}

func (s *stream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// take removes and returns the queued events
func (s *stream) take() ([]Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending
	s.pending = nil
	return batch, s.stopped
}

// PublishDiscoveryEvent lets the bus receive crawler progress events
func (eb *EventBus) PublishDiscoveryEvent(eventType string, payload interface{}) {
	eb.Publish(Event{Type: EventType(eventType), Payload: payload})
}
