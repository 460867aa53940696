package bus

import (
	"sync"

	"github.com/homepilot/control-plane/internal/errs"
)

// Handler is a subscriber callback for one event name.
type Handler func(payload any)

// Bus is the synchronous, in-subscriber-order event channel from spec.md
// §4.1: PublishEvent delivers to subscribers in subscription order on the
// publisher's goroutine; a subscriber that errors (panics) is recorded via
// errs and does not block delivery to the remaining subscribers. Grounded
// on the teacher's system/core/bus.go Bus.PublishEvent, narrowed from its
// concurrent per-engine-timeout fan-out (which fits a multi-engine
// blockchain runtime) to the simpler synchronous-delivery model this
// single-process control plane needs.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	history     *errs.History
}

// NewBus builds a Bus that records subscriber failures into history.
// history may be nil, in which case failures are only recovered, not recorded.
func NewBus(history *errs.History) *Bus {
	return &Bus{subscribers: make(map[string][]subscription), history: history}
}

// subscription pairs a handler with the name of the subsystem that
// registered it, so a failure is attributed to the subscriber rather than
// the topic it was listening on.
type subscription struct {
	system  string
	handler Handler
}

// Subscribe registers a handler for an event name, appended after any
// existing subscribers for that name. system names the subscribing
// subsystem; it is the error-history key if the handler fails.
func (b *Bus) Subscribe(event, system string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[event] = append(b.subscribers[event], subscription{system: system, handler: h})
}

// PublishEvent delivers payload to every subscriber of event, in
// subscription order, recovering and recording any subscriber panic so
// delivery continues to the remaining subscribers. The call never blocks
// the publisher beyond the subscribers' own execution time, and never
// returns an error to the publisher — failures are visible through the
// error history / error-storm event instead.
func (b *Bus) PublishEvent(event string, payload any) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[event]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.invoke(s, payload)
	}
}

func (b *Bus) invoke(s subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			if b.history != nil {
				b.history.Record(s.system, recoverMessage(r), errs.SeverityHigh)
			}
		}
	}()
	s.handler(payload)
}

func recoverMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "subscriber panic: unknown"
}
