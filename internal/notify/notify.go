// Package notify holds the notification records the core produces and a
// bounded history of them. Transports (email, SMS, push) are external
// collaborators; the core only creates records and hands them to whatever
// dispatcher is registered.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const historyCapacity = 1000

// Priority orders notifications for dispatchers that support it.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Notification is one record produced by a subsystem.
type Notification struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Priority   Priority  `json:"priority"`
	Category   string    `json:"category"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Channels   []string  `json:"channels"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
	Persistent bool      `json:"persistent"`
}

// Dispatcher delivers a notification to its transports. Implementations
// live outside the core.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Center creates notifications, keeps a bounded history, and forwards each
// record to the dispatcher asynchronously so emitters never block on
// transport latency.
type Center struct {
	mu         sync.Mutex
	entries    []Notification
	next       int
	size       int
	dispatcher Dispatcher
}

// NewCenter builds a Center. dispatcher may be nil (records are only kept).
func NewCenter(dispatcher Dispatcher) *Center {
	return &Center{
		entries:    make([]Notification, historyCapacity),
		dispatcher: dispatcher,
	}
}

// Emit creates a notification record, stores it, and dispatches it on a
// separate goroutine. The filled-in record is returned.
func (c *Center) Emit(n Notification) Notification {
	if n.ID == "" {
		n.ID = "notif_" + uuid.New().String()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}

	c.mu.Lock()
	c.entries[c.next] = n
	c.next = (c.next + 1) % historyCapacity
	if c.size < historyCapacity {
		c.size++
	}
	d := c.dispatcher
	c.mu.Unlock()

	if d != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = d.Dispatch(ctx, n)
		}()
	}
	return n
}

// Recent returns up to n most recent notifications, newest first.
func (c *Center) Recent(n int) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n > c.size {
		n = c.size
	}
	out := make([]Notification, 0, n)
	idx := c.next - 1
	for i := 0; i < n; i++ {
		if idx < 0 {
			idx = historyCapacity - 1
		}
		out = append(out, c.entries[idx])
		idx--
	}
	return out
}

// Len reports how many notifications are held, capped at the history size.
func (c *Center) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
