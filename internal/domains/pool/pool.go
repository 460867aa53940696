// Package pool is the pool-chemistry subsystem: it samples pH and free
// chlorine from the pool sensor devices and doses correction chemicals
// when either drifts out of band. Built on the shared subsystem envelope.
package pool

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/homepilot/control-plane/internal/clock"
	"github.com/homepilot/control-plane/internal/devicemanager"
	"github.com/homepilot/control-plane/internal/errs"
	"github.com/homepilot/control-plane/internal/httpjson"
	"github.com/homepilot/control-plane/internal/subsystem"
)

const (
	phMin       = 7.2
	phMax       = 7.6
	chlorineMin = 1.0 // ppm
	chlorineMax = 3.0
)

// Config wires the pool module's collaborators.
type Config struct {
	Clock          clock.Clock
	Devices        devicemanager.Manager
	History        *errs.History
	Interval       time.Duration
	SensorDeviceID string // exposes measure_ph and measure_chlorine
	PumpDeviceID   string // dosing pump, onoff capability
}

// Module is the supervised pool-chemistry subsystem.
type Module struct {
	*subsystem.Envelope
	devices devicemanager.Manager
	sensor  string
}

// New builds the pool module around the shared envelope.
func New(cfg Config) *Module {
	m := &Module{devices: cfg.Devices, sensor: cfg.SensorDeviceID}

	m.Envelope = subsystem.NewEnvelope(subsystem.EnvelopeConfig{
		Name:     "pool",
		Domain:   "water",
		Interval: cfg.Interval,
		Clock:    cfg.Clock,
		History:  cfg.History,
		Sampler:  m.sample,
		Guard:    guardChemistry,
		Actuator: func(ctx context.Context, d subsystem.Demand) error {
			return cfg.Devices.SetDeviceCapability(ctx, cfg.PumpDeviceID, "onoff", d.Value)
		},
	})
	return m
}

func (m *Module) sample(ctx context.Context) ([]subsystem.Sample, error) {
	ph, err := m.devices.GetDeviceCapability(ctx, m.sensor, "measure_ph")
	if err != nil {
		return nil, err
	}
	chlorine, err := m.devices.GetDeviceCapability(ctx, m.sensor, "measure_chlorine")
	if err != nil {
		return nil, err
	}

	samples := make([]subsystem.Sample, 0, 2)
	if v, ok := toFloat(ph); ok {
		samples = append(samples, subsystem.Sample{SourceID: "ph", Value: v})
	}
	if v, ok := toFloat(chlorine); ok {
		samples = append(samples, subsystem.Sample{SourceID: "chlorine", Value: v})
	}
	return samples, nil
}

func guardChemistry(s subsystem.Sample) *subsystem.Demand {
	switch s.SourceID {
	case "ph":
		if s.Value < phMin || s.Value > phMax {
			return &subsystem.Demand{Target: "dosing-pump", Value: true, Reason: "ph out of band"}
		}
	case "chlorine":
		if s.Value < chlorineMin || s.Value > chlorineMax {
			return &subsystem.Demand{Target: "dosing-pump", Value: true, Reason: "chlorine out of band"}
		}
	}
	return nil
}

// RegisterRoutes exposes the recent chemistry readings.
func (m *Module) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		httpjson.Write(w, http.StatusOK, map[string]any{
			"samples": m.Samples().Recent(50),
		})
	}).Methods("GET")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
