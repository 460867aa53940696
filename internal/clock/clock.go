// Package clock provides an injectable time source so tests can observe
// the set of live timers a subsystem owns instead of sleeping on wall time.
package clock

import (
	"sync"
	"time"
)

// Clock abstracts time so subsystems never call time.Now/time.NewTicker directly.
// This lets tests assert that destroyAll leaves no timer scheduled (spec §5/§8).
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	AfterFunc(d time.Duration, f func()) Timer
}

// Ticker mirrors time.Ticker behind an interface so it can be faked.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer mirrors time.Timer behind an interface so it can be faked.
type Timer interface {
	Stop() bool
}

// Real is the production Clock backed by the standard library.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Fake is a test Clock that tracks every ticker/timer it has handed out so
// a test can assert none remain live after a subsystem's destroy hook runs.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*fakeTicker]bool
	timers  map[*fakeTimer]bool
}

// NewFake creates a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{
		now:     start,
		tickers: make(map[*fakeTicker]bool),
		timers:  make(map[*fakeTimer]bool),
	}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward and fires any ticker/timer whose
// deadline has passed.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var toFire []*fakeTimer
	for t := range f.timers {
		if !t.fired && !now.Before(t.deadline) {
			toFire = append(toFire, t)
		}
	}
	for t := range f.tickers {
		if !now.Before(t.next) {
			select {
			case t.ch <- now:
			default:
			}
			t.next = now.Add(t.interval)
		}
	}
	f.mu.Unlock()

	for _, t := range toFire {
		t.fired = true
		if t.fn != nil {
			t.fn()
		}
		f.mu.Lock()
		delete(f.timers, t)
		f.mu.Unlock()
	}
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1), interval: d, next: f.now.Add(d), parent: f}
	f.tickers[t] = true
	return t
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{deadline: f.now.Add(d), fn: fn, parent: f}
	f.timers[t] = true
	return t
}

// LiveTimers returns the count of tickers+timers not yet stopped/fired.
// A release-gate test uses this to assert destroyAll leaves nothing scheduled.
func (f *Fake) LiveTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers) + len(f.timers)
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	parent   *Fake
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	delete(t.parent.tickers, t)
}

type fakeTimer struct {
	deadline time.Time
	fired    bool
	fn       func()
	parent   *Fake
}

func (t *fakeTimer) Stop() bool {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	if t.fired {
		return false
	}
	delete(t.parent.timers, t)
	return true
}
