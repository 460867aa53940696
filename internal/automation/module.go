package automation

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/homepilot/control-plane/internal/bus"
	"github.com/homepilot/control-plane/internal/errs"
	"github.com/homepilot/control-plane/internal/httpjson"
)

// Module adapts the engine+scheduler pair to the supervisor's lifecycle
// and contributes the automation HTTP surface and bus subscriptions.
type Module struct {
	engine    *Engine
	scheduler *Scheduler
	ectx      EvalContext
}

// NewModule wraps an engine and its scheduler for supervision.
func NewModule(engine *Engine, scheduler *Scheduler, ectx EvalContext) *Module {
	return &Module{engine: engine, scheduler: scheduler, ectx: ectx}
}

func (m *Module) Name() string   { return "automation" }
func (m *Module) Domain() string { return "rules" }

// Init starts the schedule-trigger loop.
func (m *Module) Init(ctx context.Context) error {
	m.scheduler.Start(ctx)
	return nil
}

// Destroy stops the scheduler, releasing its ticker.
func (m *Module) Destroy(ctx context.Context) error {
	m.scheduler.Stop()
	return nil
}

// RegisterEvents subscribes the engine to device changes so device-change
// triggers fire.
func (m *Module) RegisterEvents(b *bus.Bus) {
	b.Subscribe("device-updated", m.Name(), func(payload any) {
		change, ok := payload.(DeviceChange)
		if !ok {
			return
		}
		m.engine.HandleTrigger(context.Background(), TriggerEvent{
			Type:       TriggerDeviceChange,
			DeviceID:   change.DeviceID,
			Capability: change.Capability,
			Value:      change.Value,
		}, m.ectx)
	})
}

// DeviceChange is the payload published on "device-updated".
type DeviceChange struct {
	DeviceID   string `json:"deviceId"`
	Capability string `json:"capability"`
	Value      any    `json:"value"`
}

// RegisterRoutes contributes the automation CRUD surface.
func (m *Module) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("", m.handleList).Methods("GET")
	router.HandleFunc("", m.handleCreate).Methods("POST")
	router.HandleFunc("/{id}", m.handleGet).Methods("GET")
	router.HandleFunc("/{id}", m.handleUpdate).Methods("PUT")
	router.HandleFunc("/{id}", m.handleDelete).Methods("DELETE")
	router.HandleFunc("/{id}/execute", m.handleExecute).Methods("POST")
}

func (m *Module) handleList(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, m.engine.ListAutomations())
}

type createRequest struct {
	Name            string         `json:"name"`
	Enabled         *bool          `json:"enabled"`
	Priority        int            `json:"priority"`
	Triggers        []Trigger      `json:"triggers"`
	Conditions      []Condition    `json:"conditions"`
	ConditionLogic  ConditionLogic `json:"conditionLogic"`
	CustomLogicExpr string         `json:"customLogicExpr"`
	Actions         []Action       `json:"actions"`
	Constraints     Constraints    `json:"constraints"`
}

func (m *Module) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.Write(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	a, err := m.engine.CreateAutomation(Spec{
		Name:            req.Name,
		Enabled:         req.Enabled,
		Priority:        req.Priority,
		Triggers:        req.Triggers,
		Conditions:      req.Conditions,
		ConditionLogic:  req.ConditionLogic,
		CustomLogicExpr: req.CustomLogicExpr,
		Actions:         req.Actions,
		Constraints:     req.Constraints,
	})
	if err != nil {
		httpjson.Write(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	httpjson.Write(w, http.StatusCreated, a)
}

func (m *Module) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a := m.engine.GetAutomation(id)
	if a == nil {
		httpjson.Write(w, http.StatusNotFound, map[string]string{"error": "automation not found"})
		return
	}
	httpjson.Write(w, http.StatusOK, a)
}

func (m *Module) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch struct {
		Name            *string         `json:"name"`
		Enabled         *bool           `json:"enabled"`
		Priority        *int            `json:"priority"`
		Triggers        *[]Trigger      `json:"triggers"`
		Conditions      *[]Condition    `json:"conditions"`
		ConditionLogic  *ConditionLogic `json:"conditionLogic"`
		CustomLogicExpr *string         `json:"customLogicExpr"`
		Actions         *[]Action       `json:"actions"`
		Constraints     *Constraints    `json:"constraints"`
		Status          *Status         `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		httpjson.Write(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	a, err := m.engine.UpdateAutomation(id, Patch{
		Name:            patch.Name,
		Enabled:         patch.Enabled,
		Priority:        patch.Priority,
		Triggers:        patch.Triggers,
		Conditions:      patch.Conditions,
		ConditionLogic:  patch.ConditionLogic,
		CustomLogicExpr: patch.CustomLogicExpr,
		Actions:         patch.Actions,
		Constraints:     patch.Constraints,
		Status:          patch.Status,
	})
	if err != nil {
		status := http.StatusBadRequest
		if se, ok := err.(*errs.ServiceError); ok && se.HTTPStatus != 0 {
			status = se.HTTPStatus
		}
		httpjson.Write(w, status, map[string]string{"error": err.Error()})
		return
	}
	httpjson.Write(w, http.StatusOK, a)
}

func (m *Module) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := m.engine.DeleteAutomation(id); err != nil {
		httpjson.Write(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"success": true})
}

func (m *Module) handleExecute(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if m.engine.GetAutomation(id) == nil {
		httpjson.Write(w, http.StatusNotFound, map[string]string{"error": "automation not found"})
		return
	}
	fired := m.engine.Execute(r.Context(), id, m.ectx)
	httpjson.Write(w, http.StatusOK, map[string]bool{"executed": fired})
}
