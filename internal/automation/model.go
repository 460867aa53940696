// Package automation implements the user-programmable rule engine: a safe
// boolean-expression evaluator plus a condition/action runtime with
// cooldown, priority, and execution telemetry. Expressions are evaluated by
// a restricted-grammar interpreter; there is no path from user input to
// host-code execution.
package automation

import (
	"time"

	"github.com/google/uuid"
)

// ConditionLogic selects how an automation's condition results combine.
type ConditionLogic string

const (
	LogicAND    ConditionLogic = "AND"
	LogicOR     ConditionLogic = "OR"
	LogicCustom ConditionLogic = "CUSTOM"
)

// Status tracks an automation through its lifecycle. Rejected automations
// are kept (for learner feedback) until explicitly removed.
type Status string

const (
	StatusActive   Status = "active"
	StatusRejected Status = "rejected"
)

// TriggerType names the event source an automation listens on.
type TriggerType string

const (
	TriggerDeviceChange TriggerType = "device_change"
	TriggerSchedule     TriggerType = "schedule"
	TriggerManual       TriggerType = "manual"
)

// Trigger is one event descriptor on an automation.
type Trigger struct {
	Type       TriggerType `json:"type"`
	DeviceID   string      `json:"deviceId,omitempty"`
	Capability string      `json:"capability,omitempty"`
	Cron       string      `json:"cron,omitempty"` // schedule triggers: 5-field cron expression
}

// Condition is one {leftRef, operator, rightValue} record. LeftRef is
// resolved against the evaluation context (e.g. "device.lamp-1.onoff").
type Condition struct {
	LeftRef    string `json:"leftRef"`
	Operator   string `json:"operator"`
	RightValue any    `json:"rightValue"`
}

// ActionType names what an action does when the automation fires.
type ActionType string

const (
	ActionSetCapability ActionType = "set_capability"
	ActionRunScene      ActionType = "run_scene"
	ActionNotify        ActionType = "notify"
)

// Action is one step run when an automation fires. Steps run sequentially
// in declared order; a failing step is recorded and the rest still run.
type Action struct {
	Type       ActionType `json:"type"`
	DeviceID   string     `json:"deviceId,omitempty"`
	Capability string     `json:"capability,omitempty"`
	Value      any        `json:"value,omitempty"`
	SceneID    string     `json:"sceneId,omitempty"`
	Title      string     `json:"title,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// Constraints bound how often an automation may fire.
type Constraints struct {
	CooldownMinutes int `json:"cooldownMinutes"`
	DailyLimit      int `json:"dailyLimit,omitempty"` // 0 = unlimited
}

// Statistics is the execution telemetry kept per automation.
type Statistics struct {
	ExecutionCount int       `json:"executionCount"`
	LastExecuted   time.Time `json:"lastExecuted"`
	Created        time.Time `json:"created"`
	UserApprovals  int       `json:"userApprovals"`
	UserRejections int       `json:"userRejections"`
}

// Automation is one user-defined rule.
type Automation struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Enabled         bool           `json:"enabled"`
	Status          Status         `json:"status"`
	Priority        int            `json:"priority"` // 1..10, higher runs first
	Triggers        []Trigger      `json:"triggers"`
	Conditions      []Condition    `json:"conditions"`
	ConditionLogic  ConditionLogic `json:"conditionLogic"`
	CustomLogicExpr string         `json:"customLogicExpr,omitempty"`
	Actions         []Action       `json:"actions"`
	Constraints     Constraints    `json:"constraints"`
	Statistics      Statistics     `json:"statistics"`
}

// Spec is the creation payload for an automation. Zero values take the
// documented defaults (enabled, priority 5, AND logic).
type Spec struct {
	Name            string
	Enabled         *bool
	Priority        int
	Triggers        []Trigger
	Conditions      []Condition
	ConditionLogic  ConditionLogic
	CustomLogicExpr string
	Actions         []Action
	Constraints     Constraints
}

// GenerateID returns a fresh automation id.
func GenerateID() string {
	return "auto_" + uuid.New().String()
}
