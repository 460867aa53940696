package bus

import (
	"context"
	"fmt"
)

// LifecycleManager starts modules in dependency order and stops them in
// reverse order. A module that fails to start is marked failed and the
// remaining modules still start; nothing is rolled back. Grounded on the
// teacher's system/core/lifecycle.go.
type LifecycleManager struct {
	reg     *Registry
	health  *HealthMonitor
	started []string // names started so far, in start order, for stop
}

// NewLifecycleManager builds a LifecycleManager bound to a registry and
// health monitor.
func NewLifecycleManager(reg *Registry, health *HealthMonitor) *LifecycleManager {
	return &LifecycleManager{reg: reg, health: health}
}

// StartAll starts every registered module in dependency order, calling Init
// on modules that implement Initializable. A module whose Init fails is
// marked failed and skipped; its peers still start. After StartAll every
// module is either started or failed. The returned error aggregates any
// failures without implying the others were blocked.
func (lm *LifecycleManager) StartAll(ctx context.Context) error {
	order, err := ResolveOrder(lm.reg)
	if err != nil {
		return fmt.Errorf("resolve start order: %w", err)
	}

	var failures []error
	for _, name := range order {
		m, _ := lm.reg.Get(name)
		lm.health.Set(name, m.Domain(), StatusStarting, nil)

		if init, ok := m.(Initializable); ok {
			if err := init.Init(ctx); err != nil {
				lm.health.Set(name, m.Domain(), StatusFailed, err)
				failures = append(failures, fmt.Errorf("start module %q: %w", name, err))
				continue
			}
		}

		lm.health.Set(name, m.Domain(), StatusStarted, nil)
		lm.started = append(lm.started, name)
	}

	return joinErrors(failures)
}

// StopAll stops every started module in reverse start order. It always
// runs to completion and aggregates errors.
func (lm *LifecycleManager) StopAll(ctx context.Context) error {
	var errs []error
	for i := len(lm.started) - 1; i >= 0; i-- {
		name := lm.started[i]
		m, ok := lm.reg.Get(name)
		if !ok {
			continue
		}
		if d, ok := m.(Destroyable); ok {
			if err := d.Destroy(ctx); err != nil {
				lm.health.Set(name, m.Domain(), StatusStopError, err)
				errs = append(errs, fmt.Errorf("stop module %q: %w", name, err))
				continue
			}
		}
		lm.health.Set(name, m.Domain(), StatusStopped, nil)
	}
	lm.started = nil

	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	joined := errs[0]
	for _, e := range errs[1:] {
		joined = fmt.Errorf("%w; %w", joined, e)
	}
	return joined
}
