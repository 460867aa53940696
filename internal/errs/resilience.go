package errs

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RetryConfig configures exponential backoff for Retry, grounded on the
// teacher's infrastructure/resilience.RetryConfig.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1
}

// DefaultRetryConfig mirrors the teacher's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retry executes fn with exponential backoff, bailing out early on ctx cancellation.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addJitter(delay, cfg.Jitter)):
			}
			delay = nextDelay(delay, cfg)
		}
	}
	return lastErr
}

func nextDelay(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}

// Fallback runs primary, and on failure runs backup, returning whichever
// succeeds first. Grounded on the teacher's infrastructure/fallback.Handler,
// narrowed to the single primary/backup shape spec.md §4.4 names.
func Fallback[T any](ctx context.Context, primary func(context.Context) (T, error), backup func(context.Context) (T, error)) (T, error) {
	v, err := primary(ctx)
	if err == nil {
		return v, nil
	}
	return backup(ctx)
}

// CircuitState is one of the three states spec.md §4.4 and §8 scenario 5 name.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Threshold   int           // consecutive failures before tripping to OPEN
	CooldownMs  time.Duration // how long OPEN lasts before probing via HALF_OPEN
	OnStateChange func(name string, from, to CircuitState)
}

// CircuitBreaker implements the CLOSED→OPEN→HALF_OPEN→CLOSED state machine
// from spec.md §4.4, grounded on the teacher's
// infrastructure/resilience.CircuitBreaker.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	mu     sync.Mutex
	state  CircuitState
	fails  int
	openedAt time.Time
	onTrip func(name string)
}

// NewCircuitBreaker builds a named CircuitBreaker. onTrip, if non-nil, is
// invoked when the breaker transitions to OPEN — this is how the bus emits
// the "circuit-open" event described in spec.md §4.4.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, onTrip func(name string)) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.CooldownMs <= 0 {
		cfg.CooldownMs = 30 * time.Second
	}
	return &CircuitBreaker{name: name, cfg: cfg, state: CircuitClosed, onTrip: onTrip}
}

// State returns the current breaker state.
func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Execute runs fn if the breaker admits the call, recording success/failure
// against the state machine. It rejects immediately without calling fn when
// the breaker is OPEN and the cooldown hasn't elapsed.
func (c *CircuitBreaker) Execute(fn func() error) error {
	if err := c.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	c.afterRequest(err)
	return err
}

var ErrCircuitOpen = &ServiceError{Kind: KindTransientIO, Code: "CIRCUIT_OPEN", Message: "circuit breaker open", HTTPStatus: 503}

func (c *CircuitBreaker) beforeRequest() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitOpen:
		if time.Since(c.openedAt) >= c.cfg.CooldownMs {
			c.setState(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (c *CircuitBreaker) afterRequest(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.onSuccess()
		return
	}
	c.onFailure()
}

func (c *CircuitBreaker) onSuccess() {
	c.fails = 0
	if c.state != CircuitClosed {
		c.setState(CircuitClosed)
	}
}

func (c *CircuitBreaker) onFailure() {
	switch c.state {
	case CircuitHalfOpen:
		c.setState(CircuitOpen)
		c.openedAt = time.Now()
	default:
		c.fails++
		if c.fails >= c.cfg.Threshold {
			c.setState(CircuitOpen)
			c.openedAt = time.Now()
		}
	}
}

// setState must be called with c.mu held.
func (c *CircuitBreaker) setState(to CircuitState) {
	from := c.state
	c.state = to
	if to == CircuitOpen && c.onTrip != nil {
		c.onTrip(c.name)
	}
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(c.name, from, to)
	}
}

// GracefulDegrade runs fn and substitutes fallbackValue on any error, never
// propagating the failure (spec.md §4.4: "never throws").
func GracefulDegrade[T any](fn func() (T, error), fallbackValue T) T {
	v, err := fn()
	if err != nil {
		return fallbackValue
	}
	return v
}

// Wrap runs fn, recording any error into history under system before
// returning it unchanged to the caller (spec.md §4.4: "record+rethrow").
func Wrap(h *History, system string, fn func() error) error {
	err := fn()
	if err != nil {
		h.Record(system, err.Error(), "")
	}
	return err
}
