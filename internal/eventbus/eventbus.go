package eventbus

import (
	"errors"
	"sync"
	"time"

	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/logger"
)

// ErrClosed is returned by Publish after Shutdown.
var ErrClosed = errors.New("event bus is shut down")

// Publisher defines the interface for publishing events.
// This interface enables testing with mock implementations.
type Publisher interface {
	Publish(event domain.Event) error
	Subscribe(eventType domain.EventType, handler func(domain.Event))
}

// Ensure EventBus implements Publisher
var _ Publisher = (*EventBus)(nil)

// EventBus fans run events out to in-process subscribers. Nothing is persisted:
// a run's events live only as long as the process.
//
// Publish blocks until every subscriber has buffered the event, so counts
// derived from events are exact. Handlers must not publish.
type EventBus struct {
	subscribers map[domain.EventType][]chan domain.Event
	mu          sync.RWMutex
	closed      bool
	wg          sync.WaitGroup
	bufferSize  int
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[domain.EventType][]chan domain.Event),
		bufferSize:  100,
	}
}

func (eb *EventBus) Publish(event domain.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	logger.Debugf("EventBus: Publishing event %s (AggregateID: %s)", event.EventType, event.AggregateID)

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return ErrClosed
	}
	for _, ch := range eb.subscribers[event.EventType] {
		ch <- event
	}
	return nil
}

// Subscribe runs handler on its own goroutine for every event of eventType.
// Subscribing after Shutdown is a no-op.
func (eb *EventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	ch := make(chan domain.Event, eb.bufferSize)

	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return
	}
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	eb.wg.Add(1)
	eb.mu.Unlock()

	go func() {
		defer eb.wg.Done()
		for event := range ch {
			handler(event)
		}
	}()
}

// Shutdown stops accepting events, lets subscribers drain what was already
// published and waits for them to finish. It is safe to call more than once.
func (eb *EventBus) Shutdown() {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return
	}
	eb.closed = true
	for _, subs := range eb.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	eb.mu.Unlock()

	eb.wg.Wait()
	logger.Debugf("EventBus shutdown complete")
}
