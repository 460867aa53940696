package bus

import (
	"context"
	"time"

	"github.com/gorilla/mux"
)

// Supervisor composes Registry, LifecycleManager, HealthMonitor and Bus
// into the single facade cmd/gateway wires up, grounded on the teacher's
// system/core/engine.go Engine.
type Supervisor struct {
	Registry *Registry
	Health   *HealthMonitor
	Bus      *Bus
	lifecycle *LifecycleManager
	startedAt time.Time
}

// NewSupervisor builds a Supervisor with fresh Registry/Health/Bus.
func NewSupervisor(b *Bus) *Supervisor {
	reg := NewRegistry()
	health := NewHealthMonitor()
	return &Supervisor{
		Registry:  reg,
		Health:    health,
		Bus:       b,
		lifecycle: NewLifecycleManager(reg, health),
	}
}

// RegisterModule adds a module to the registry. Call before LoadAll.
func (s *Supervisor) RegisterModule(m ServiceModule) error {
	return s.Registry.Register(m)
}

// LoadSummary is the result of LoadAll, matching spec.md §4.1's
// {total, ready, failed[]} shape.
type LoadSummary struct {
	Total  int
	Ready  int
	Failed []string
}

// LoadAll starts every registered module in dependency order via the
// LifecycleManager, then registers each module's routes and socket events
// if it implements those capabilities.
func (s *Supervisor) LoadAll(ctx context.Context, router *mux.Router) LoadSummary {
	s.startedAt = time.Now()

	var failed []string
	if err := s.lifecycle.StartAll(ctx); err != nil {
		for _, m := range s.Registry.All() {
			if h, ok := s.Health.Get(m.Name()); ok && h.Status == StatusFailed {
				failed = append(failed, m.Name())
			}
		}
	}

	for _, m := range s.Registry.All() {
		if h, ok := s.Health.Get(m.Name()); !ok || h.Status != StatusStarted {
			continue
		}
		if hr, ok := m.(HasHTTPRoutes); ok && router != nil {
			// Module handlers live under a prefix derived from the module
			// id, so two modules can never claim the same path.
			hr.RegisterRoutes(router.PathPrefix("/api/" + m.Name()).Subrouter())
		}
		if hs, ok := m.(HasSocketEvents); ok {
			hs.RegisterEvents(s.Bus)
		}
	}

	total, started, _ := s.Health.Summary()
	return LoadSummary{Total: total, Ready: started, Failed: failed}
}

// DestroyAll stops every started module in reverse start order.
func (s *Supervisor) DestroyAll(ctx context.Context) error {
	return s.lifecycle.StopAll(ctx)
}

// Summary reports the supervisor's aggregate state for the /api/stats route.
type Summary struct {
	ModuleCount   int
	Ready         int
	Failed        int
	UptimeSeconds float64
}

// GetSummary returns the current aggregate module/health state.
func (s *Supervisor) GetSummary() Summary {
	total, started, failed := s.Health.Summary()
	uptime := time.Since(s.startedAt).Seconds()
	if s.startedAt.IsZero() {
		uptime = 0
	}
	return Summary{ModuleCount: total, Ready: started, Failed: failed, UptimeSeconds: uptime}
}
