package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type busSpy struct {
	events []string
}

func (b *busSpy) PublishEvent(event string, payload any) {
	b.events = append(b.events, event)
}

func TestSetModeValidation(t *testing.T) {
	m := New(Config{})

	_, err := m.SetMode("fortress", "tester")
	assert.Error(t, err)

	s, err := m.SetMode("home", "tester")
	require.NoError(t, err)
	assert.Equal(t, ModeHome, s.Mode)
	assert.Equal(t, "tester", s.ChangedBy)
	assert.Equal(t, ModeHome, m.GetStatus().Mode)
}

func TestSetModePublishesOnChange(t *testing.T) {
	spy := &busSpy{}
	m := New(Config{Bus: spy})

	_, err := m.SetMode("away", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"security-mode-changed"}, spy.events)

	// Re-setting the same mode is quiet.
	_, err = m.SetMode("away", "")
	require.NoError(t, err)
	assert.Len(t, spy.events, 1)
}

func TestDefaultsToDisarmed(t *testing.T) {
	m := New(Config{})
	assert.Equal(t, ModeDisarmed, m.GetStatus().Mode)
}

func TestFirewallAddRemoveIsIdentity(t *testing.T) {
	m := New(Config{})
	require.Empty(t, m.FirewallRules())

	rule, err := m.AddFirewallRule(FirewallRule{Name: "block guest tv", Action: "deny", SourceIP: "192.168.2.40"})
	require.NoError(t, err)
	require.NotEmpty(t, rule.ID)
	require.Len(t, m.FirewallRules(), 1)

	require.NoError(t, m.RemoveFirewallRule(rule.ID))
	assert.Empty(t, m.FirewallRules())

	assert.Error(t, m.RemoveFirewallRule(rule.ID))
}

func TestFirewallRejectsBadAction(t *testing.T) {
	m := New(Config{})
	_, err := m.AddFirewallRule(FirewallRule{Name: "x", Action: "drop"})
	assert.Error(t, err)
}
