// Package subsystem is the shared envelope the non-algorithmic feature
// modules are built from: a periodic sampler, a bounded sample ring, a
// guard that inspects fresh samples, and an actuator the guard may drive.
// The PID controller and rule engine have their own loops; everything else
// follows this template.
package subsystem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/homepilot/control-plane/internal/clock"
	"github.com/homepilot/control-plane/internal/errs"
)

// Sample is one observation from a subsystem's source.
type Sample struct {
	Timestamp time.Time      `json:"timestamp"`
	SourceID  string         `json:"sourceId"`
	Value     float64        `json:"value"`
	Derived   map[string]any `json:"derived,omitempty"`
}

// Ring is a bounded sample buffer; the ring owns eviction.
type Ring struct {
	mu      sync.Mutex
	samples []Sample
	next    int
	size    int
}

// NewRing builds a Ring with the given capacity (<=0 defaults to 1000).
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Ring{samples: make([]Sample, capacity)}
}

// Add appends a sample, evicting the oldest when full.
func (r *Ring) Add(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.next] = s
	r.next = (r.next + 1) % len(r.samples)
	if r.size < len(r.samples) {
		r.size++
	}
}

// Recent returns up to n samples, newest first.
func (r *Ring) Recent(n int) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.size {
		n = r.size
	}
	out := make([]Sample, 0, n)
	idx := r.next - 1
	for i := 0; i < n; i++ {
		if idx < 0 {
			idx = len(r.samples) - 1
		}
		out = append(out, r.samples[idx])
		idx--
	}
	return out
}

// Len returns the number of held samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Sampler produces fresh observations each tick.
type Sampler func(ctx context.Context) ([]Sample, error)

// Guard inspects one fresh sample and returns an action demand, or nil.
type Guard func(s Sample) *Demand

// Demand is what a guard asks the actuator to do.
type Demand struct {
	Target string
	Value  any
	Reason string
}

// Actuator applies one demand.
type Actuator func(ctx context.Context, d Demand) error

// Envelope is the reusable subsystem skeleton. It implements the
// supervisor's module capabilities: named, initialisable (starts its
// ticker) and destroyable (stops it).
type Envelope struct {
	name     string
	domain   string
	interval time.Duration

	clk      clock.Clock
	sampler  Sampler
	guard    Guard
	actuator Actuator
	history  *errs.History
	ring     *Ring

	mu     sync.Mutex
	ticker clock.Ticker
	stopCh chan struct{}
}

// EnvelopeConfig wires an Envelope. Sampler is required; guard and
// actuator are optional (a pure observer has neither).
type EnvelopeConfig struct {
	Name     string
	Domain   string
	Interval time.Duration
	Clock    clock.Clock
	Sampler  Sampler
	Guard    Guard
	Actuator Actuator
	History  *errs.History
	RingSize int
}

// NewEnvelope builds an Envelope from its parts.
func NewEnvelope(cfg EnvelopeConfig) *Envelope {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Envelope{
		name:     cfg.Name,
		domain:   cfg.Domain,
		interval: interval,
		clk:      clk,
		sampler:  cfg.Sampler,
		guard:    cfg.Guard,
		actuator: cfg.Actuator,
		history:  cfg.History,
		ring:     NewRing(cfg.RingSize),
	}
}

func (e *Envelope) Name() string   { return e.name }
func (e *Envelope) Domain() string { return e.domain }

// Samples exposes the ring for query methods layered on top.
func (e *Envelope) Samples() *Ring { return e.ring }

// Init starts the periodic sampling loop.
func (e *Envelope) Init(ctx context.Context) error {
	e.mu.Lock()
	e.ticker = e.clk.NewTicker(e.interval)
	e.stopCh = make(chan struct{})
	ticker, stopCh := e.ticker, e.stopCh
	e.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C():
				e.TickOnce(ctx)
			}
		}
	}()
	return nil
}

// Destroy stops the loop, releasing the ticker.
func (e *Envelope) Destroy(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
	if e.stopCh != nil {
		close(e.stopCh)
		e.stopCh = nil
	}
	return nil
}

// TickOnce runs one sample-guard-actuate pass. Exposed so tests and
// callers can drive the envelope without its timer.
func (e *Envelope) TickOnce(ctx context.Context) {
	if e.sampler == nil {
		return
	}
	samples, err := e.sampler(ctx)
	if err != nil {
		if e.history != nil {
			e.history.Record(e.name, fmt.Sprintf("sampling failed: %v", err), "")
		}
		return
	}

	for _, s := range samples {
		if s.Timestamp.IsZero() {
			s.Timestamp = e.clk.Now()
		}
		e.ring.Add(s)

		if e.guard == nil {
			continue
		}
		demand := e.guard(s)
		if demand == nil || e.actuator == nil {
			continue
		}
		if err := e.actuator(ctx, *demand); err != nil {
			if e.history != nil {
				e.history.Record(e.name, fmt.Sprintf("actuation %s failed: %v", demand.Target, err), errs.SeverityHigh)
			}
		}
	}
}
