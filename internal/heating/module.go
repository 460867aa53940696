package heating

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/homepilot/control-plane/internal/bus"
	"github.com/homepilot/control-plane/internal/clock"
	"github.com/homepilot/control-plane/internal/errs"
	"github.com/homepilot/control-plane/internal/httpjson"
)

// Module adapts the controller to the supervisor's lifecycle: it owns the
// tick timer and contributes the heating HTTP surface.
type Module struct {
	controller *Controller
	clk        clock.Clock

	mu     sync.Mutex
	ticker clock.Ticker
	stopCh chan struct{}
}

// NewModule wraps a controller for supervision.
func NewModule(controller *Controller, clk clock.Clock) *Module {
	return &Module{controller: controller, clk: clk}
}

func (m *Module) Name() string   { return "heating" }
func (m *Module) Domain() string { return "climate" }

// Init starts the periodic control loop.
func (m *Module) Init(ctx context.Context) error {
	m.mu.Lock()
	m.ticker = m.clk.NewTicker(m.controller.tickInterval)
	m.stopCh = make(chan struct{})
	ticker, stopCh := m.ticker, m.stopCh
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C():
				m.controller.Tick(ctx)
			}
		}
	}()
	return nil
}

// Destroy stops the tick loop, releasing the timer.
func (m *Module) Destroy(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	return nil
}

// RegisterEvents wires sensor updates arriving over the bus into the
// controller.
func (m *Module) RegisterEvents(b *bus.Bus) {
	b.Subscribe("sensor-reading", m.Name(), func(payload any) {
		r, ok := payload.(SensorEvent)
		if !ok {
			return
		}
		m.controller.UpdateSensorReadings(r.ZoneID, SensorReadings{
			FloorTemp: r.FloorTemp,
			AirTemp:   r.AirTemp,
			Humidity:  r.Humidity,
		})
	})
	b.Subscribe("outdoor-temperature", m.Name(), func(payload any) {
		if t, ok := payload.(float64); ok {
			m.controller.UpdateOutdoorTemp(t)
		}
	})
}

// SensorEvent is the payload published on "sensor-reading".
type SensorEvent struct {
	ZoneID    string
	FloorTemp *float64
	AirTemp   *float64
	Humidity  *float64
}

// RegisterRoutes contributes the heating HTTP surface.
func (m *Module) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/zones", m.handleListZones).Methods("GET")
	router.HandleFunc("/zones", m.handleAddZone).Methods("POST")
	router.HandleFunc("/zones/{id}", m.handleGetZone).Methods("GET")
	router.HandleFunc("/zones/{id}", m.handleRemoveZone).Methods("DELETE")
	router.HandleFunc("/zones/{id}/temp", m.handleSetTemp).Methods("POST")
	router.HandleFunc("/zones/{id}/mode", m.handleSetMode).Methods("POST")
	router.HandleFunc("/zones/{id}/schedule", m.handleGetSchedule).Methods("GET")
	router.HandleFunc("/zones/{id}/schedule", m.handleSetSchedule).Methods("POST")
	router.HandleFunc("/zones/{id}/calibrate", m.handleCalibrate).Methods("POST")
	router.HandleFunc("/zones/{id}/fault/clear", m.handleClearFault).Methods("POST")
	router.HandleFunc("/summary", m.handleSummary).Methods("GET")
	router.HandleFunc("/statistics", m.handleStatistics).Methods("GET")
	router.HandleFunc("/energy", m.handleEnergyReport).Methods("GET")
	router.HandleFunc("/pid", m.handleSetPID).Methods("POST")
	router.HandleFunc("/mode", m.handleSetAllModes).Methods("POST")
	router.HandleFunc("/holiday", m.handleHoliday).Methods("POST")
	router.HandleFunc("/setback", m.handleSetback).Methods("POST")
	router.HandleFunc("/preheat", m.handlePreHeat).Methods("POST")
}

func (m *Module) handleListZones(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, m.controller.GetAllZoneStatus())
}

func (m *Module) handleAddZone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID            string        `json:"id"`
		Name          string        `json:"name"`
		Type          ZoneType      `json:"type"`
		Material      FloorMaterial `json:"floorMaterial"`
		TargetTemp    float64       `json:"targetTemp"`
		NominalPowerW float64       `json:"nominalPowerW"`
		Bathroom      bool          `json:"bathroom"`
		ActuatorID    string        `json:"actuatorDeviceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, errs.Validation("INVALID_BODY", "invalid JSON body", nil))
		return
	}
	status, err := m.controller.AddZone(req.ID, req.Name, req.Type, req.Material, ZoneOptions{
		TargetTemp:       req.TargetTemp,
		NominalPowerW:    req.NominalPowerW,
		Bathroom:         req.Bathroom,
		ActuatorDeviceID: req.ActuatorID,
	})
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, status)
}

func (m *Module) handleGetZone(w http.ResponseWriter, r *http.Request) {
	status := m.controller.GetZoneStatus(mux.Vars(r)["id"])
	if status == nil {
		httpjson.WriteError(w, errs.NotFound("UNKNOWN_ZONE", "zone not found"))
		return
	}
	httpjson.Write(w, http.StatusOK, status)
}

func (m *Module) handleRemoveZone(w http.ResponseWriter, r *http.Request) {
	if err := m.controller.RemoveZone(mux.Vars(r)["id"]); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"success": true})
}

func (m *Module) handleSetTemp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Temp float64 `json:"temp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, errs.Validation("INVALID_BODY", "invalid JSON body", nil))
		return
	}
	if err := m.controller.SetZoneTemp(mux.Vars(r)["id"], req.Temp); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"success": true})
}

func (m *Module) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode Mode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, errs.Validation("INVALID_BODY", "invalid JSON body", nil))
		return
	}
	if err := m.controller.SetMode(mux.Vars(r)["id"], req.Mode); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"success": true})
}

func (m *Module) handleSetAllModes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode Mode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, errs.Validation("INVALID_BODY", "invalid JSON body", nil))
		return
	}
	if err := m.controller.SetAllZonesMode(req.Mode); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"success": true})
}

func (m *Module) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule := m.controller.GetSchedule(mux.Vars(r)["id"])
	if schedule == nil {
		httpjson.WriteError(w, errs.NotFound("UNKNOWN_ZONE", "zone not found"))
		return
	}
	httpjson.Write(w, http.StatusOK, schedule)
}

func (m *Module) handleSetSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Day     string           `json:"day"`
		Periods []SchedulePeriod `json:"periods"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, errs.Validation("INVALID_BODY", "invalid JSON body", nil))
		return
	}
	if err := m.controller.SetSchedule(mux.Vars(r)["id"], req.Day, req.Periods); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"success": true})
}

func (m *Module) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Offset float64 `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, errs.Validation("INVALID_BODY", "invalid JSON body", nil))
		return
	}
	if err := m.controller.CalibrateSensor(mux.Vars(r)["id"], req.Offset); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"success": true})
}

func (m *Module) handleClearFault(w http.ResponseWriter, r *http.Request) {
	if err := m.controller.ClearFault(mux.Vars(r)["id"]); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"success": true})
}

func (m *Module) handleSummary(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, m.controller.GetSystemSummary())
}

func (m *Module) handleStatistics(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, m.controller.GetStatistics())
}

func (m *Module) handleEnergyReport(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "day"
	}
	report, err := m.controller.GetEnergyReport(period)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, report)
}

func (m *Module) handleSetPID(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kp *float64 `json:"kp"`
		Ki *float64 `json:"ki"`
		Kd *float64 `json:"kd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, errs.Validation("INVALID_BODY", "invalid JSON body", nil))
		return
	}
	httpjson.Write(w, http.StatusOK, m.controller.SetPIDParams(req.Kp, req.Ki, req.Kd))
}

func (m *Module) handleHoliday(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, errs.Validation("INVALID_BODY", "invalid JSON body", nil))
		return
	}
	m.controller.SetHolidayMode(req.Enabled)
	httpjson.Write(w, http.StatusOK, map[string]bool{"success": true})
}

func (m *Module) handleSetback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, errs.Validation("INVALID_BODY", "invalid JSON body", nil))
		return
	}
	if err := m.controller.SetNightSetback(req.Start, req.End); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"success": true})
}

func (m *Module) handlePreHeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time    string `json:"time"`
		Minutes int    `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, errs.Validation("INVALID_BODY", "invalid JSON body", nil))
		return
	}
	if err := m.controller.SetBathroomPreHeat(req.Time, req.Minutes); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"success": true})
}
