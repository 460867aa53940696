// Package energy is the whole-home energy monitor: it samples per-device
// power draw, accumulates consumption, and publishes realtime updates.
// Cost estimates use the tariff from the settings store, not a hard-coded
// rate. Built on the shared subsystem envelope.
package energy

import (
	"context"
	"sync"
	"time"

	"github.com/homepilot/control-plane/internal/clock"
	"github.com/homepilot/control-plane/internal/devicemanager"
	"github.com/homepilot/control-plane/internal/errs"
	"github.com/homepilot/control-plane/internal/settings"
	"github.com/homepilot/control-plane/internal/subsystem"
)

// TariffKey is the settings-store key the SEK/kWh tariff is read from.
const TariffKey = "energy.tariff_sek_per_kwh"

// Publisher is the slice of the event bus the monitor publishes on.
type Publisher interface {
	PublishEvent(event string, payload any)
}

// Config wires the energy monitor.
type Config struct {
	Clock         clock.Clock
	Devices       devicemanager.Manager
	History       *errs.History
	Settings      settings.Store
	Bus           Publisher
	Interval      time.Duration
	DefaultTariff float64 // SEK/kWh used when the settings store has none
}

// Snapshot is the current energy picture.
type Snapshot struct {
	Timestamp      time.Time          `json:"timestamp"`
	TotalPowerW    float64            `json:"totalPowerW"`
	PerDeviceW     map[string]float64 `json:"perDeviceW"`
	TotalEnergyKwh float64            `json:"totalEnergyKwh"`
}

// Analytics is the snapshot plus a cost estimate.
type Analytics struct {
	Snapshot
	TariffSEKPerKwh float64 `json:"tariffSekPerKwh"`
	CostSEK         float64 `json:"costSek"`
}

// Module is the supervised energy-monitor subsystem.
type Module struct {
	*subsystem.Envelope

	clk           clock.Clock
	store         settings.Store
	bus           Publisher
	defaultTariff float64

	mu       sync.Mutex
	current  Snapshot
	lastTick time.Time
}

// New builds the energy monitor.
func New(cfg Config) *Module {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	tariff := cfg.DefaultTariff
	if tariff <= 0 {
		tariff = 1.85
	}

	m := &Module{
		clk:           clk,
		store:         cfg.Settings,
		bus:           cfg.Bus,
		defaultTariff: tariff,
	}
	m.current.PerDeviceW = make(map[string]float64)

	m.Envelope = subsystem.NewEnvelope(subsystem.EnvelopeConfig{
		Name:     "energy",
		Domain:   "power",
		Interval: cfg.Interval,
		Clock:    clk,
		History:  cfg.History,
		Sampler: func(ctx context.Context) ([]subsystem.Sample, error) {
			return m.sample(ctx, cfg.Devices)
		},
	})
	return m
}

func (m *Module) sample(ctx context.Context, devices devicemanager.Manager) ([]subsystem.Sample, error) {
	all, err := devices.GetDevices(ctx)
	if err != nil {
		return nil, err
	}

	now := m.clk.Now()
	perDevice := make(map[string]float64)
	total := 0.0
	var samples []subsystem.Sample

	for id, dev := range all {
		v, ok := dev.CapabilityValues["measure_power"]
		if !ok {
			continue
		}
		w, ok := toFloat(v)
		if !ok {
			continue
		}
		perDevice[id] = w
		total += w
		samples = append(samples, subsystem.Sample{Timestamp: now, SourceID: id, Value: w})
	}

	m.mu.Lock()
	if !m.lastTick.IsZero() {
		dt := now.Sub(m.lastTick).Hours()
		if dt > 0 {
			m.current.TotalEnergyKwh += total * dt / 1000
		}
	}
	m.lastTick = now
	m.current.Timestamp = now
	m.current.TotalPowerW = total
	m.current.PerDeviceW = perDevice
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.PublishEvent("energy:update", snapshot)
	}
	return samples, nil
}

func (m *Module) snapshotLocked() Snapshot {
	out := m.current
	out.PerDeviceW = make(map[string]float64, len(m.current.PerDeviceW))
	for k, v := range m.current.PerDeviceW {
		out.PerDeviceW[k] = v
	}
	return out
}

// Snapshot returns the current energy picture.
func (m *Module) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// GetAnalytics returns the snapshot with a cost estimate at the configured
// tariff.
func (m *Module) GetAnalytics() Analytics {
	snapshot := m.Snapshot()

	tariff := m.defaultTariff
	if m.store != nil {
		if v, ok := m.store.Get(TariffKey); ok {
			if f, ok := toFloat(v); ok && f > 0 {
				tariff = f
			}
		}
	}

	return Analytics{
		Snapshot:        snapshot,
		TariffSEKPerKwh: tariff,
		CostSEK:         snapshot.TotalEnergyKwh * tariff,
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
