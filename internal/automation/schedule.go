package automation

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/homepilot/control-plane/internal/clock"
)

// SchedulerInterval is how often schedule-type triggers are checked.
const SchedulerInterval = time.Second

// Scheduler drives schedule-type triggers: each enabled automation with a
// cron trigger gets a next-execution time computed from its expression,
// and is executed when that time passes.
type Scheduler struct {
	engine *Engine
	clk    clock.Clock

	mu      sync.Mutex
	nextRun map[string]time.Time // automation id -> next due time
	ticker  clock.Ticker
	stopCh  chan struct{}
	ectx    EvalContext
}

// NewScheduler builds a Scheduler over an engine.
func NewScheduler(engine *Engine, clk clock.Clock, ectx EvalContext) *Scheduler {
	return &Scheduler{
		engine:  engine,
		clk:     clk,
		nextRun: make(map[string]time.Time),
		ectx:    ectx,
	}
}

// Start begins the scheduling loop. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ticker = s.clk.NewTicker(SchedulerInterval)
	s.stopCh = make(chan struct{})
	ticker, stopCh := s.ticker, s.stopCh
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C():
				s.CheckDue(ctx)
			}
		}
	}()
}

// Stop halts the loop and releases the ticker.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

// CheckDue runs every automation whose schedule trigger has come due.
// Exposed so tests can drive it without the ticker.
func (s *Scheduler) CheckDue(ctx context.Context) {
	now := s.clk.Now()

	for _, a := range s.engine.ListAutomations() {
		expr, ok := scheduleExpr(a)
		if !ok || !a.Enabled || a.Status == StatusRejected {
			s.forget(a.ID)
			continue
		}

		schedule, err := cron.ParseStandard(expr)
		if err != nil {
			s.engine.DisableForLogicFault(a.ID, err)
			s.forget(a.ID)
			continue
		}

		s.mu.Lock()
		next, known := s.nextRun[a.ID]
		if !known {
			next = schedule.Next(now)
			s.nextRun[a.ID] = next
		}
		s.mu.Unlock()

		if now.Before(next) {
			continue
		}

		s.engine.Execute(ctx, a.ID, s.ectx)

		s.mu.Lock()
		s.nextRun[a.ID] = schedule.Next(now)
		s.mu.Unlock()
	}
}

func (s *Scheduler) forget(id string) {
	s.mu.Lock()
	delete(s.nextRun, id)
	s.mu.Unlock()
}

func scheduleExpr(a *Automation) (string, bool) {
	for _, t := range a.Triggers {
		if t.Type == TriggerSchedule && t.Cron != "" {
			return t.Cron, true
		}
	}
	return "", false
}
