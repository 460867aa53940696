package bus

import (
	"sync"
	"time"
)

// Status is a module's lifecycle status, grounded on the teacher's
// system/core/health.go status constants.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusStarting   Status = "starting"
	StatusStarted    Status = "started"
	StatusStopped    Status = "stopped"
	StatusFailed     Status = "failed"
	StatusStopError  Status = "stop_error"
)

// ReadyStatus tracks readiness separately from liveness — a module can be
// started but not yet ready to serve (e.g. still discovering devices).
type ReadyStatus string

const (
	ReadyStatusReady    ReadyStatus = "ready"
	ReadyStatusNotReady ReadyStatus = "not_ready"
	ReadyStatusUnknown  ReadyStatus = "unknown"
)

// ModuleHealth is the recorded health snapshot for one module.
type ModuleHealth struct {
	Name        string
	Domain      string
	Status      Status
	Err         error
	Ready       ReadyStatus
	ReadyErr    error
	StartedAt   time.Time
	StoppedAt   time.Time
	UpdatedAt   time.Time
}

// HealthMonitor tracks per-module health, grounded on the teacher's
// system/core/health.go HealthMonitor.
type HealthMonitor struct {
	mu     sync.RWMutex
	health map[string]*ModuleHealth
}

// NewHealthMonitor builds an empty HealthMonitor.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{health: make(map[string]*ModuleHealth)}
}

// Set records a status transition for a module.
func (h *HealthMonitor) Set(name, domain string, status Status, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	mh, ok := h.health[name]
	if !ok {
		mh = &ModuleHealth{Name: name, Domain: domain, Ready: ReadyStatusUnknown}
		h.health[name] = mh
	}
	mh.Status = status
	mh.Err = err
	mh.UpdatedAt = time.Now()
	switch status {
	case StatusStarted:
		mh.StartedAt = mh.UpdatedAt
	case StatusStopped, StatusStopError:
		mh.StoppedAt = mh.UpdatedAt
	}
}

// SetReady records a module's readiness.
func (h *HealthMonitor) SetReady(name string, ready ReadyStatus, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mh, ok := h.health[name]
	if !ok {
		mh = &ModuleHealth{Name: name, Ready: ReadyStatusUnknown}
		h.health[name] = mh
	}
	mh.Ready = ready
	mh.ReadyErr = err
	mh.UpdatedAt = time.Now()
}

// Get returns the health snapshot for a module.
func (h *HealthMonitor) Get(name string) (ModuleHealth, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	mh, ok := h.health[name]
	if !ok {
		return ModuleHealth{}, false
	}
	return *mh, true
}

// All returns a snapshot of every module's health.
func (h *HealthMonitor) All() []ModuleHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ModuleHealth, 0, len(h.health))
	for _, mh := range h.health {
		out = append(out, *mh)
	}
	return out
}

// Summary counts modules by status for the supervisor's getSummary().
func (h *HealthMonitor) Summary() (total, started, failed int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total = len(h.health)
	for _, mh := range h.health {
		switch mh.Status {
		case StatusStarted:
			started++
		case StatusFailed, StatusStopError:
			failed++
		}
	}
	return
}
