package bus

import (
	"testing"

	"github.com/homepilot/control-plane/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPublishEventDeliversInOrderDespiteSubscriberFailure reproduces the
// scenario of three subscribers A, B, C registered in order, where B panics:
// A and C must both run, in order, and B's failure must be recorded under
// system=B — attributed to the failing subscriber, not the topic — without
// interrupting delivery to C.
func TestPublishEventDeliversInOrderDespiteSubscriberFailure(t *testing.T) {
	history := errs.NewHistory(nil)
	b := NewBus(history)

	var calls []string
	b.Subscribe("device-updated", "A", func(payload any) { calls = append(calls, "A") })
	b.Subscribe("device-updated", "B", func(payload any) {
		calls = append(calls, "B")
		panic("subscriber B exploded")
	})
	b.Subscribe("device-updated", "C", func(payload any) { calls = append(calls, "C") })

	b.PublishEvent("device-updated", map[string]any{"deviceId": "lamp-1"})

	assert.Equal(t, []string{"A", "B", "C"}, calls)
	assert.Equal(t, 1, history.Len())
	recent := history.Recent(1)
	assert.Equal(t, "B", recent[0].System)
}

type fakeModule struct {
	name, domain string
	deps         []string
}

func (m *fakeModule) Name() string        { return m.name }
func (m *fakeModule) Domain() string      { return m.domain }
func (m *fakeModule) DependsOn() []string { return m.deps }

func TestResolveOrderRespectsDependencies(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeModule{name: "heating", domain: "climate"}))
	require.NoError(t, reg.Register(&fakeModule{name: "automation", domain: "rules", deps: []string{"heating"}}))
	require.NoError(t, reg.Register(&fakeModule{name: "gateway", domain: "http", deps: []string{"automation", "heating"}}))

	order, err := ResolveOrder(reg)
	require.NoError(t, err)

	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["heating"], pos["automation"])
	assert.Less(t, pos["automation"], pos["gateway"])
}

func TestResolveOrderDetectsCycle(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeModule{name: "a", deps: []string{"b"}}))
	require.NoError(t, reg.Register(&fakeModule{name: "b", deps: []string{"a"}}))

	_, err := ResolveOrder(reg)
	require.Error(t, err)
}
