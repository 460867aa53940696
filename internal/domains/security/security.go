// Package security tracks the household arming mode. Mode changes are
// validated, published on the bus, and recorded with who/when context for
// the dashboard.
package security

import (
	"context"
	"sync"
	"time"

	"github.com/homepilot/control-plane/internal/clock"
	"github.com/homepilot/control-plane/internal/errs"
	"github.com/homepilot/control-plane/internal/notify"
)

// Mode is one of the five arming states.
type Mode string

const (
	ModeHome     Mode = "home"
	ModeAway     Mode = "away"
	ModeNight    Mode = "night"
	ModeVacation Mode = "vacation"
	ModeDisarmed Mode = "disarmed"
)

var validModes = map[Mode]bool{
	ModeHome:     true,
	ModeAway:     true,
	ModeNight:    true,
	ModeVacation: true,
	ModeDisarmed: true,
}

// ValidMode reports whether s names a known mode.
func ValidMode(s string) bool {
	return validModes[Mode(s)]
}

// Publisher is the slice of the event bus the module publishes on.
type Publisher interface {
	PublishEvent(event string, payload any)
}

// Status is the dashboard view of the security state.
type Status struct {
	Mode      Mode      `json:"mode"`
	ChangedAt time.Time `json:"changedAt"`
	ChangedBy string    `json:"changedBy,omitempty"`
}

// Module is the supervised security-mode subsystem.
type Module struct {
	mu       sync.Mutex
	status   Status
	firewall map[string]FirewallRule

	clk      clock.Clock
	bus      Publisher
	notifier *notify.Center
}

// Config wires the security module.
type Config struct {
	Clock    clock.Clock
	Bus      Publisher
	Notifier *notify.Center
}

// New builds the module, starting disarmed.
func New(cfg Config) *Module {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Module{
		status:   Status{Mode: ModeDisarmed, ChangedAt: clk.Now()},
		clk:      clk,
		bus:      cfg.Bus,
		notifier: cfg.Notifier,
	}
}

func (m *Module) Name() string   { return "security" }
func (m *Module) Domain() string { return "safety" }

// Init satisfies the supervisor's lifecycle; the module has no timers.
func (m *Module) Init(ctx context.Context) error { return nil }

// GetStatus returns the current mode.
func (m *Module) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetMode switches the arming mode. Unknown modes are rejected.
func (m *Module) SetMode(mode string, changedBy string) (Status, error) {
	if !ValidMode(mode) {
		return Status{}, errs.Validation("INVALID_MODE", "mode must be one of home, away, night, vacation, disarmed", mode)
	}

	m.mu.Lock()
	previous := m.status.Mode
	m.status = Status{Mode: Mode(mode), ChangedAt: m.clk.Now(), ChangedBy: changedBy}
	status := m.status
	m.mu.Unlock()

	if previous != status.Mode {
		if m.bus != nil {
			m.bus.PublishEvent("security-mode-changed", map[string]any{
				"mode":     string(status.Mode),
				"previous": string(previous),
			})
		}
		if m.notifier != nil && (status.Mode == ModeAway || status.Mode == ModeVacation) {
			m.notifier.Emit(notify.Notification{
				Category: "security",
				Title:    "House armed",
				Message:  "Security mode set to " + mode,
			})
		}
	}
	return status, nil
}
