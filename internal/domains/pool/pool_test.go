package pool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homepilot/control-plane/internal/clock"
	"github.com/homepilot/control-plane/internal/devicemanager"
	"github.com/homepilot/control-plane/internal/errs"
	"github.com/homepilot/control-plane/internal/subsystem"
)

// probeManager serves capability reads for the chemistry probe and records
// dosing-pump writes.
type probeManager struct {
	mu     sync.Mutex
	values map[string]any
	writes []string
	fail   bool
}

func (p *probeManager) GetDevices(ctx context.Context) (map[string]devicemanager.Device, error) {
	return nil, nil
}
func (p *probeManager) GetZones(ctx context.Context) (map[string]devicemanager.Zone, error) {
	return nil, nil
}
func (p *probeManager) GetDeviceCapability(ctx context.Context, id, cap string) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return nil, fmt.Errorf("probe timeout")
	}
	return p.values[cap], nil
}
func (p *probeManager) SetDeviceCapability(ctx context.Context, id, cap string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, fmt.Sprintf("%s.%s=%v", id, cap, v))
	return nil
}
func (p *probeManager) TriggerFlow(ctx context.Context, flowID string) error { return nil }

func newPool(devices *probeManager, history *errs.History) *Module {
	return New(Config{
		Clock:          clock.NewFake(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)),
		Devices:        devices,
		History:        history,
		SensorDeviceID: "pool-sensor",
		PumpDeviceID:   "pool-dosing-pump",
	})
}

func TestGuardChemistryBands(t *testing.T) {
	tests := []struct {
		name   string
		sample subsystem.Sample
		dose   bool
	}{
		{"ph in band", subsystem.Sample{SourceID: "ph", Value: 7.4}, false},
		{"ph at lower bound", subsystem.Sample{SourceID: "ph", Value: 7.2}, false},
		{"ph below band", subsystem.Sample{SourceID: "ph", Value: 7.1}, true},
		{"ph above band", subsystem.Sample{SourceID: "ph", Value: 7.7}, true},
		{"chlorine in band", subsystem.Sample{SourceID: "chlorine", Value: 1.8}, false},
		{"chlorine below band", subsystem.Sample{SourceID: "chlorine", Value: 0.6}, true},
		{"chlorine above band", subsystem.Sample{SourceID: "chlorine", Value: 3.4}, true},
		{"unknown source ignored", subsystem.Sample{SourceID: "salinity", Value: 99}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			demand := guardChemistry(tt.sample)
			if tt.dose {
				require.NotNil(t, demand)
				assert.Equal(t, "dosing-pump", demand.Target)
				assert.Equal(t, true, demand.Value)
			} else {
				assert.Nil(t, demand)
			}
		})
	}
}

func TestTickSamplesBothSensorsAndDoses(t *testing.T) {
	devices := &probeManager{values: map[string]any{
		"measure_ph":       6.9,
		"measure_chlorine": 0.5,
	}}
	m := newPool(devices, nil)

	m.TickOnce(context.Background())

	// Both readings land in the ring and both out-of-band values dose.
	assert.Equal(t, 2, m.Samples().Len())
	assert.Equal(t, []string{
		"pool-dosing-pump.onoff=true",
		"pool-dosing-pump.onoff=true",
	}, devices.writes)
}

func TestTickHealthyWaterLeavesPumpAlone(t *testing.T) {
	devices := &probeManager{values: map[string]any{
		"measure_ph":       7.4,
		"measure_chlorine": 1.8,
	}}
	m := newPool(devices, nil)

	m.TickOnce(context.Background())

	assert.Equal(t, 2, m.Samples().Len())
	assert.Empty(t, devices.writes)
}

func TestTickRecordsProbeFailure(t *testing.T) {
	history := errs.NewHistory(nil)
	m := newPool(&probeManager{fail: true}, history)

	m.TickOnce(context.Background())

	assert.Equal(t, 1, history.Len())
	assert.Zero(t, m.Samples().Len())
}
