package report

import (
	"fmt"
	"sync"

	"github.com/mescon/Archivarr/internal/logger"
)

// Capture collects the warnings and errors logged while a run is in progress so
// they can be attached to its report.
type Capture struct {
	ch       chan logger.LogEntry
	done     chan struct{}
	mu       sync.Mutex
	messages []string
	stopOnce sync.Once
}

// StartCapture subscribes to the logger. Call Stop to release the subscription.
func StartCapture() *Capture {
	c := &Capture{
		ch:   logger.Subscribe(),
		done: make(chan struct{}),
	}
	go c.drain()
	return c
}

func (c *Capture) drain() {
	defer close(c.done)
	for entry := range c.ch {
		if entry.Level != logger.Warn && entry.Level != logger.Error {
			continue
		}
		c.mu.Lock()
		c.messages = append(c.messages, fmt.Sprintf("%s %s", entry.Level, entry.Message))
		c.mu.Unlock()
	}
}

// Stop unsubscribes and returns every captured message in log order.
func (c *Capture) Stop() []string {
	c.stopOnce.Do(func() {
		logger.Unsubscribe(c.ch)
		<-c.done
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}
