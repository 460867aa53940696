package security

import (
	"github.com/google/uuid"

	"github.com/homepilot/control-plane/internal/errs"
)

// FirewallRule is one network rule in the household firewall table. The
// core only manages the rule set; enforcement lives in the router
// integration behind the device manager.
type FirewallRule struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Action   string `json:"action"` // allow | deny
	SourceIP string `json:"sourceIp"`
	Port     int    `json:"port,omitempty"` // 0 = any
}

// AddFirewallRule registers a rule, assigning an id if absent.
func (m *Module) AddFirewallRule(rule FirewallRule) (FirewallRule, error) {
	if rule.Action != "allow" && rule.Action != "deny" {
		return FirewallRule{}, errs.Validation("INVALID_ACTION", "action must be allow or deny", rule.Action)
	}
	if rule.ID == "" {
		rule.ID = "fw_" + uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.firewall == nil {
		m.firewall = make(map[string]FirewallRule)
	}
	m.firewall[rule.ID] = rule
	return rule, nil
}

// RemoveFirewallRule deletes a rule. Unknown ids are rejected, so
// add-then-remove is the identity on the rule set.
func (m *Module) RemoveFirewallRule(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.firewall[id]; !ok {
		return errs.NotFound("UNKNOWN_RULE", "no firewall rule with id "+id)
	}
	delete(m.firewall, id)
	return nil
}

// FirewallRules returns a copy of the current rule set.
func (m *Module) FirewallRules() []FirewallRule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FirewallRule, 0, len(m.firewall))
	for _, r := range m.firewall {
		out = append(out, r)
	}
	return out
}
