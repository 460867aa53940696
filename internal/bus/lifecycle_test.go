package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/homepilot/control-plane/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingModule owns a ticker from an injected clock and stops it on Destroy,
// the pattern every ticking subsystem (heating, perfmon) follows.
type tickingModule struct {
	name   string
	ticker clock.Ticker
	clk    clock.Clock
	failInit bool
}

func (m *tickingModule) Name() string   { return m.name }
func (m *tickingModule) Domain() string { return "test" }

func (m *tickingModule) Init(ctx context.Context) error {
	if m.failInit {
		return errors.New("init failed")
	}
	m.ticker = m.clk.NewTicker(time.Second)
	return nil
}

func (m *tickingModule) Destroy(ctx context.Context) error {
	if m.ticker != nil {
		m.ticker.Stop()
	}
	return nil
}

func TestLifecycleStartAllThenStopAllLeavesNoLiveTimers(t *testing.T) {
	fake := clock.NewFake(time.Now())
	reg := NewRegistry()
	health := NewHealthMonitor()
	lm := NewLifecycleManager(reg, health)

	require.NoError(t, reg.Register(&tickingModule{name: "heating", clk: fake}))
	require.NoError(t, reg.Register(&tickingModule{name: "perfmon", clk: fake}))

	require.NoError(t, lm.StartAll(context.Background()))
	assert.Equal(t, 2, fake.LiveTimers())

	hHeating, _ := health.Get("heating")
	assert.Equal(t, StatusStarted, hHeating.Status)

	require.NoError(t, lm.StopAll(context.Background()))
	assert.Equal(t, 0, fake.LiveTimers(), "destroy hooks must stop every ticker they started")
}

func TestLifecycleInitFailureDoesNotBlockPeers(t *testing.T) {
	fake := clock.NewFake(time.Now())
	reg := NewRegistry()
	health := NewHealthMonitor()
	lm := NewLifecycleManager(reg, health)

	require.NoError(t, reg.Register(&tickingModule{name: "heating", clk: fake}))
	require.NoError(t, reg.Register(&tickingModule{name: "automation", clk: fake, failInit: true}))
	require.NoError(t, reg.Register(&tickingModule{name: "perfmon", clk: fake}))

	err := lm.StartAll(context.Background())
	require.Error(t, err, "aggregated failure is still reported")

	hHeating, _ := health.Get("heating")
	assert.Equal(t, StatusStarted, hHeating.Status)
	hAutomation, _ := health.Get("automation")
	assert.Equal(t, StatusFailed, hAutomation.Status)
	hPerfmon, _ := health.Get("perfmon")
	assert.Equal(t, StatusStarted, hPerfmon.Status, "a failed peer must not block later modules")

	require.NoError(t, lm.StopAll(context.Background()))
	assert.Equal(t, 0, fake.LiveTimers())
}
