package energy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homepilot/control-plane/internal/clock"
	"github.com/homepilot/control-plane/internal/devicemanager"
	"github.com/homepilot/control-plane/internal/settings"
)

type fixedManager struct {
	devices map[string]devicemanager.Device
}

func (f *fixedManager) GetDevices(ctx context.Context) (map[string]devicemanager.Device, error) {
	return f.devices, nil
}
func (f *fixedManager) GetZones(ctx context.Context) (map[string]devicemanager.Zone, error) {
	return nil, nil
}
func (f *fixedManager) GetDeviceCapability(ctx context.Context, id, cap string) (any, error) {
	return nil, nil
}
func (f *fixedManager) SetDeviceCapability(ctx context.Context, id, cap string, v any) error {
	return nil
}
func (f *fixedManager) TriggerFlow(ctx context.Context, flowID string) error { return nil }

type busSpy struct {
	events []string
}

func (b *busSpy) PublishEvent(event string, payload any) {
	b.events = append(b.events, event)
}

func newFixture(clk clock.Clock, store settings.Store, bus Publisher) *Module {
	devices := &fixedManager{devices: map[string]devicemanager.Device{
		"heater": {ID: "heater", CapabilityValues: map[string]any{"measure_power": 1500.0}},
		"lamp":   {ID: "lamp", CapabilityValues: map[string]any{"measure_power": 40.0}},
		"sensor": {ID: "sensor", CapabilityValues: map[string]any{"measure_temperature": 21.0}},
	}}
	return New(Config{Clock: clk, Devices: devices, Settings: store, Bus: bus, DefaultTariff: 2.0})
}

func TestSnapshotAggregatesPower(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	spy := &busSpy{}
	m := newFixture(clk, nil, spy)

	m.TickOnce(context.Background())

	s := m.Snapshot()
	assert.Equal(t, 1540.0, s.TotalPowerW)
	assert.Equal(t, 1500.0, s.PerDeviceW["heater"])
	assert.NotContains(t, s.PerDeviceW, "sensor")
	assert.Equal(t, []string{"energy:update"}, spy.events)
}

func TestEnergyAccumulatesBetweenTicks(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	m := newFixture(clk, nil, nil)

	m.TickOnce(context.Background())
	clk.Advance(time.Hour)
	m.TickOnce(context.Background())

	// 1540 W for one hour = 1.54 kWh.
	assert.InDelta(t, 1.54, m.Snapshot().TotalEnergyKwh, 1e-9)
}

func TestAnalyticsUsesConfiguredTariff(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	store := settings.NewMemory()
	m := newFixture(clk, store, nil)

	m.TickOnce(context.Background())
	clk.Advance(time.Hour)
	m.TickOnce(context.Background())

	a := m.GetAnalytics()
	assert.Equal(t, 2.0, a.TariffSEKPerKwh)
	assert.InDelta(t, 3.08, a.CostSEK, 1e-9)

	store.Set(TariffKey, 1.0)
	a = m.GetAnalytics()
	require.Equal(t, 1.0, a.TariffSEKPerKwh)
	assert.InDelta(t, 1.54, a.CostSEK, 1e-9)
}
