package automation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/homepilot/control-plane/internal/clock"
	"github.com/homepilot/control-plane/internal/devicemanager"
	"github.com/homepilot/control-plane/internal/errs"
	"github.com/homepilot/control-plane/internal/notify"
)

const systemName = "automation"

// Publisher is the slice of the event bus the engine needs.
type Publisher interface {
	PublishEvent(event string, payload any)
}

// Engine owns every automation and runs them against incoming trigger
// events. All state behind one mutex; evaluation is CPU-only and never
// suspends (device writes during action execution are the only I/O).
type Engine struct {
	mu          sync.RWMutex
	automations map[string]*Automation

	clk      clock.Clock
	devices  devicemanager.Manager
	notifier *notify.Center
	history  *errs.History
	bus      Publisher
	log      *logrus.Entry
}

// Config wires the engine's collaborators.
type Config struct {
	Clock    clock.Clock
	Devices  devicemanager.Manager
	Notifier *notify.Center
	History  *errs.History
	Bus      Publisher
	Log      *logrus.Entry
}

// NewEngine builds an empty Engine.
func NewEngine(cfg Config) *Engine {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{
		automations: make(map[string]*Automation),
		clk:         clk,
		devices:     cfg.Devices,
		notifier:    cfg.Notifier,
		history:     cfg.History,
		bus:         cfg.Bus,
		log:         cfg.Log,
	}
}

// CreateAutomation validates spec, applies defaults (enabled, priority 5,
// AND logic), and registers the automation.
func (e *Engine) CreateAutomation(spec Spec) (*Automation, error) {
	a := &Automation{
		ID:              GenerateID(),
		Name:            spec.Name,
		Enabled:         true,
		Status:          StatusActive,
		Priority:        5,
		Triggers:        append([]Trigger(nil), spec.Triggers...),
		Conditions:      append([]Condition(nil), spec.Conditions...),
		ConditionLogic:  LogicAND,
		CustomLogicExpr: spec.CustomLogicExpr,
		Actions:         append([]Action(nil), spec.Actions...),
		Constraints:     spec.Constraints,
		Statistics:      Statistics{Created: e.clk.Now()},
	}
	if spec.Enabled != nil {
		a.Enabled = *spec.Enabled
	}
	if spec.Priority != 0 {
		a.Priority = spec.Priority
	}
	if spec.ConditionLogic != "" {
		a.ConditionLogic = spec.ConditionLogic
	}

	if a.Priority < 1 || a.Priority > 10 {
		return nil, errs.Validation("INVALID_PRIORITY", "priority must be between 1 and 10", a.Priority)
	}
	switch a.ConditionLogic {
	case LogicAND, LogicOR:
	case LogicCustom:
		if err := ValidateExpr(a.CustomLogicExpr); err != nil {
			return nil, errs.Validation("INVALID_EXPRESSION", fmt.Sprintf("custom logic does not parse: %v", err), a.CustomLogicExpr)
		}
	default:
		return nil, errs.Validation("INVALID_LOGIC", "conditionLogic must be AND, OR or CUSTOM", a.ConditionLogic)
	}

	e.mu.Lock()
	e.automations[a.ID] = a
	e.mu.Unlock()
	return cloneAutomation(a), nil
}

// Patch carries partial updates for UpdateAutomation; nil fields are untouched.
type Patch struct {
	Name            *string
	Enabled         *bool
	Priority        *int
	Triggers        *[]Trigger
	Conditions      *[]Condition
	ConditionLogic  *ConditionLogic
	CustomLogicExpr *string
	Actions         *[]Action
	Constraints     *Constraints
	Status          *Status
}

// UpdateAutomation applies a partial update. Unknown ids are rejected with
// a typed refusal (mutations reject, observations return empty).
func (e *Engine) UpdateAutomation(id string, patch Patch) (*Automation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.automations[id]
	if !ok {
		return nil, errs.NotFound("UNKNOWN_AUTOMATION", "no automation with id "+id)
	}

	if patch.Priority != nil && (*patch.Priority < 1 || *patch.Priority > 10) {
		return nil, errs.Validation("INVALID_PRIORITY", "priority must be between 1 and 10", *patch.Priority)
	}
	if patch.ConditionLogic != nil && *patch.ConditionLogic == LogicCustom {
		expr := a.CustomLogicExpr
		if patch.CustomLogicExpr != nil {
			expr = *patch.CustomLogicExpr
		}
		if err := ValidateExpr(expr); err != nil {
			return nil, errs.Validation("INVALID_EXPRESSION", fmt.Sprintf("custom logic does not parse: %v", err), expr)
		}
	}

	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Enabled != nil {
		a.Enabled = *patch.Enabled
	}
	if patch.Priority != nil {
		a.Priority = *patch.Priority
	}
	if patch.Triggers != nil {
		a.Triggers = append([]Trigger(nil), (*patch.Triggers)...)
	}
	if patch.Conditions != nil {
		a.Conditions = append([]Condition(nil), (*patch.Conditions)...)
	}
	if patch.ConditionLogic != nil {
		a.ConditionLogic = *patch.ConditionLogic
	}
	if patch.CustomLogicExpr != nil {
		a.CustomLogicExpr = *patch.CustomLogicExpr
	}
	if patch.Actions != nil {
		a.Actions = append([]Action(nil), (*patch.Actions)...)
	}
	if patch.Constraints != nil {
		a.Constraints = *patch.Constraints
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	return cloneAutomation(a), nil
}

// DeleteAutomation removes an automation. Unknown ids are rejected.
func (e *Engine) DeleteAutomation(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.automations[id]; !ok {
		return errs.NotFound("UNKNOWN_AUTOMATION", "no automation with id "+id)
	}
	delete(e.automations, id)
	return nil
}

// GetAutomation returns a copy of the automation, or nil if unknown.
func (e *Engine) GetAutomation(id string) *Automation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.automations[id]
	if !ok {
		return nil
	}
	return cloneAutomation(a)
}

// ListAutomations returns copies of every automation, highest priority
// first, ties broken by creation time.
func (e *Engine) ListAutomations() []*Automation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Automation, 0, len(e.automations))
	for _, a := range e.automations {
		out = append(out, cloneAutomation(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Statistics.Created.Before(out[j].Statistics.Created)
	})
	return out
}

// EvalContext resolves condition leftRefs during evaluation. Lookup
// returns the current value for a ref like "device.lamp-1.onoff".
type EvalContext struct {
	Lookup func(ref string) (any, bool)
}

// EvaluateConditions resolves and evaluates every condition, then combines
// per the automation's logic. Empty conditions evaluate to true.
func (e *Engine) EvaluateConditions(a *Automation, ctx EvalContext) bool {
	if len(a.Conditions) == 0 {
		return true
	}

	results := make([]bool, len(a.Conditions))
	for i, c := range a.Conditions {
		var left any
		if ctx.Lookup != nil {
			left, _ = ctx.Lookup(c.LeftRef)
		}
		results[i] = CompareValues(left, c.Operator, c.RightValue)
	}

	switch a.ConditionLogic {
	case LogicOR:
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	case LogicCustom:
		return EvaluateCustomLogic(a.CustomLogicExpr, results)
	default: // AND
		for _, r := range results {
			if !r {
				return false
			}
		}
		return true
	}
}

// EvaluateCustomLogic substitutes positional indices in expr with the
// literal true/false from results and evaluates via the safe evaluator.
// Any evaluation error returns false.
func EvaluateCustomLogic(expr string, results []bool) bool {
	v, err := SafeBooleanEval(substituteIndices(expr, results))
	if err != nil {
		return false
	}
	return v
}

// CheckConstraints reports whether the automation is allowed to fire now.
// Fails closed: a cooldown still in effect returns false. Only the cooldown
// is enforced; Constraints.DailyLimit is not checked.
func (e *Engine) CheckConstraints(a *Automation) bool {
	now := e.clk.Now()
	if a.Constraints.CooldownMinutes > 0 && !a.Statistics.LastExecuted.IsZero() {
		cooldown := time.Duration(a.Constraints.CooldownMinutes) * time.Minute
		if now.Sub(a.Statistics.LastExecuted) < cooldown {
			return false
		}
	}
	return true
}

// TriggerEvent is what arrives on the bus when something an automation may
// be listening for happens.
type TriggerEvent struct {
	Type       TriggerType
	DeviceID   string
	Capability string
	Value      any
}

// HandleTrigger runs every enabled automation whose trigger matches the
// event, highest priority first. Each firing is independent: one
// automation's failure never blocks another's run.
func (e *Engine) HandleTrigger(ctx context.Context, evt TriggerEvent, ectx EvalContext) int {
	fired := 0
	for _, a := range e.ListAutomations() {
		if !a.Enabled || a.Status == StatusRejected {
			continue
		}
		if !triggerMatches(a.Triggers, evt) {
			continue
		}
		if e.Execute(ctx, a.ID, ectx) {
			fired++
		}
	}
	return fired
}

// Execute runs one automation end to end: constraints, conditions, then
// actions in declared order. Returns whether the automation fired.
func (e *Engine) Execute(ctx context.Context, id string, ectx EvalContext) bool {
	e.mu.RLock()
	a, ok := e.automations[id]
	var snapshot *Automation
	if ok {
		snapshot = cloneAutomation(a)
	}
	e.mu.RUnlock()
	if !ok {
		return false
	}

	if !e.CheckConstraints(snapshot) {
		return false
	}
	if !e.EvaluateConditions(snapshot, ectx) {
		return false
	}

	for i, action := range snapshot.Actions {
		if err := e.runAction(ctx, action); err != nil {
			if e.history != nil {
				e.history.Record(systemName, fmt.Sprintf("action %d of %s failed: %v", i, id, err), errs.SeverityMedium)
			}
			if e.log != nil {
				e.log.WithFields(logrus.Fields{"automation": id, "action": i}).WithError(err).Warn("automation action failed")
			}
		}
	}

	// Cooldown starts at the end of the run.
	e.mu.Lock()
	if live, ok := e.automations[id]; ok {
		live.Statistics.ExecutionCount++
		live.Statistics.LastExecuted = e.clk.Now()
	}
	e.mu.Unlock()
	return true
}

func (e *Engine) runAction(ctx context.Context, action Action) error {
	switch action.Type {
	case ActionSetCapability:
		if e.devices == nil {
			return fmt.Errorf("no device manager configured")
		}
		return e.devices.SetDeviceCapability(ctx, action.DeviceID, action.Capability, action.Value)
	case ActionRunScene:
		if e.devices == nil {
			return fmt.Errorf("no device manager configured")
		}
		if err := e.devices.TriggerFlow(ctx, action.SceneID); err != nil {
			return err
		}
		if e.bus != nil {
			e.bus.PublishEvent("scene-activated", action.SceneID)
		}
		return nil
	case ActionNotify:
		if e.notifier == nil {
			return fmt.Errorf("no notifier configured")
		}
		e.notifier.Emit(notify.Notification{
			Category: systemName,
			Title:    action.Title,
			Message:  action.Message,
		})
		return nil
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// DisableForLogicFault marks an automation disabled after a logic fault,
// records the fault at HIGH severity, and emits a notification so the user
// learns their rule was parked rather than silently skipped.
func (e *Engine) DisableForLogicFault(id string, cause error) {
	e.mu.Lock()
	a, ok := e.automations[id]
	if ok {
		a.Enabled = false
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	if e.history != nil {
		e.history.Record(systemName, fmt.Sprintf("automation %s disabled: %v", id, cause), errs.SeverityHigh)
	}
	if e.notifier != nil {
		e.notifier.Emit(notify.Notification{
			Priority: notify.PriorityHigh,
			Category: systemName,
			Title:    "Automation disabled",
			Message:  fmt.Sprintf("%s was disabled after a rule error: %v", id, cause),
		})
	}
}

func triggerMatches(triggers []Trigger, evt TriggerEvent) bool {
	for _, t := range triggers {
		if t.Type != evt.Type {
			continue
		}
		switch t.Type {
		case TriggerDeviceChange:
			if t.DeviceID != "" && t.DeviceID != evt.DeviceID {
				continue
			}
			if t.Capability != "" && t.Capability != evt.Capability {
				continue
			}
			return true
		default:
			return true
		}
	}
	return false
}

func cloneAutomation(a *Automation) *Automation {
	c := *a
	c.Triggers = append([]Trigger(nil), a.Triggers...)
	c.Conditions = append([]Condition(nil), a.Conditions...)
	c.Actions = append([]Action(nil), a.Actions...)
	return &c
}

// DeviceRef builds the leftRef form the default Lookup resolves.
func DeviceRef(deviceID, capability string) string {
	return strings.Join([]string{"device", deviceID, capability}, ".")
}
