// Package irrigation waters garden zones: a soil-moisture sampler feeds a
// guard that opens the valve when moisture drops below threshold inside
// the allowed watering window. Built on the shared subsystem envelope.
package irrigation

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/homepilot/control-plane/internal/clock"
	"github.com/homepilot/control-plane/internal/devicemanager"
	"github.com/homepilot/control-plane/internal/errs"
	"github.com/homepilot/control-plane/internal/httpjson"
	"github.com/homepilot/control-plane/internal/subsystem"
)

// Config wires the irrigation module.
type Config struct {
	Clock             clock.Clock
	Devices           devicemanager.Manager
	History           *errs.History
	Interval          time.Duration
	MoistureDeviceID  string // exposes measure_moisture (0..100 %)
	ValveDeviceID     string // onoff capability
	MoistureThreshold float64
	WindowStartHour   int // watering allowed [start, end)
	WindowEndHour     int
}

// Module is the supervised irrigation subsystem.
type Module struct {
	*subsystem.Envelope

	mu        sync.Mutex
	threshold float64
	startHour int
	endHour   int
	clk       clock.Clock
}

// New builds the irrigation module.
func New(cfg Config) *Module {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	threshold := cfg.MoistureThreshold
	if threshold == 0 {
		threshold = 30
	}

	m := &Module{threshold: threshold, startHour: cfg.WindowStartHour, endHour: cfg.WindowEndHour, clk: clk}

	m.Envelope = subsystem.NewEnvelope(subsystem.EnvelopeConfig{
		Name:     "irrigation",
		Domain:   "garden",
		Interval: cfg.Interval,
		Clock:    clk,
		History:  cfg.History,
		Sampler: func(ctx context.Context) ([]subsystem.Sample, error) {
			v, err := cfg.Devices.GetDeviceCapability(ctx, cfg.MoistureDeviceID, "measure_moisture")
			if err != nil {
				return nil, err
			}
			f, ok := v.(float64)
			if !ok {
				return nil, nil
			}
			return []subsystem.Sample{{SourceID: "moisture", Value: f}}, nil
		},
		Guard: m.guard,
		Actuator: func(ctx context.Context, d subsystem.Demand) error {
			return cfg.Devices.SetDeviceCapability(ctx, cfg.ValveDeviceID, "onoff", d.Value)
		},
	})
	return m
}

func (m *Module) guard(s subsystem.Sample) *subsystem.Demand {
	m.mu.Lock()
	threshold, start, end := m.threshold, m.startHour, m.endHour
	m.mu.Unlock()

	hour := m.clk.Now().Hour()
	inWindow := start == end || (start < end && hour >= start && hour < end) ||
		(start > end && (hour >= start || hour < end))

	if s.Value < threshold && inWindow {
		return &subsystem.Demand{Target: "valve", Value: true, Reason: "soil dry"}
	}
	if s.Value >= threshold {
		return &subsystem.Demand{Target: "valve", Value: false, Reason: "soil wet"}
	}
	return nil
}

// SetThreshold adjusts the moisture threshold at runtime.
func (m *Module) SetThreshold(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = v
}

// RegisterRoutes exposes moisture history and the threshold knob.
func (m *Module) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		threshold := m.threshold
		m.mu.Unlock()
		httpjson.Write(w, http.StatusOK, map[string]any{
			"threshold": threshold,
			"samples":   m.Samples().Recent(50),
		})
	}).Methods("GET")
}
