package devicemanager

import (
	"context"
	"sync"
)

// Demo is a fixed in-memory Manager used as the fallback source when the
// real upstream is unreachable (spec.md §7 "graceful-degraded demo data"),
// and useful on its own for local development.
type Demo struct {
	mu      sync.Mutex
	devices map[string]Device
	zones   map[string]Zone
}

// NewDemo seeds a small, representative device/zone layout.
func NewDemo() *Demo {
	zones := map[string]Zone{
		"living-room": {ID: "living-room", DisplayName: "Living Room", Icon: "sofa"},
		"bathroom":    {ID: "bathroom", DisplayName: "Bathroom", Icon: "bath"},
		"garden":      {ID: "garden", DisplayName: "Garden", Icon: "tree"},
	}
	devices := map[string]Device{
		"lamp-1": {
			ID: "lamp-1", Name: "Floor Lamp", ZoneID: "living-room", Class: "light",
			Capabilities:     []string{"onoff", "dim"},
			CapabilityValues: map[string]any{"onoff": false, "dim": 0.0},
		},
		"thermostat-bathroom": {
			ID: "thermostat-bathroom", Name: "Bathroom Thermostat", ZoneID: "bathroom", Class: "thermostat",
			Capabilities:     []string{"target_temperature", "measure_temperature"},
			CapabilityValues: map[string]any{"target_temperature": 22.0, "measure_temperature": 21.4},
		},
		"floor-actuator-bathroom": {
			ID: "floor-actuator-bathroom", Name: "Bathroom Floor Heating", ZoneID: "bathroom", Class: "socket",
			Capabilities:     []string{"dim", "measure_power"},
			CapabilityValues: map[string]any{"dim": 0.0, "measure_power": 0.0},
		},
		"pool-sensor": {
			ID: "pool-sensor", Name: "Pool Chemistry Probe", ZoneID: "garden", Class: "sensor",
			Capabilities:     []string{"measure_ph", "measure_chlorine"},
			CapabilityValues: map[string]any{"measure_ph": 7.4, "measure_chlorine": 1.8},
		},
		"pool-dosing-pump": {
			ID: "pool-dosing-pump", Name: "Pool Dosing Pump", ZoneID: "garden", Class: "socket",
			Capabilities:     []string{"onoff", "measure_power"},
			CapabilityValues: map[string]any{"onoff": false, "measure_power": 0.0},
		},
		"soil-sensor": {
			ID: "soil-sensor", Name: "Garden Soil Sensor", ZoneID: "garden", Class: "sensor",
			Capabilities:     []string{"measure_moisture"},
			CapabilityValues: map[string]any{"measure_moisture": 44.0},
		},
		"irrigation-valve": {
			ID: "irrigation-valve", Name: "Irrigation Valve", ZoneID: "garden", Class: "socket",
			Capabilities:     []string{"onoff"},
			CapabilityValues: map[string]any{"onoff": false},
		},
		"heat-pump": {
			ID: "heat-pump", Name: "Heat Pump", ZoneID: "living-room", Class: "thermostat",
			Capabilities:     []string{"measure_power", "target_temperature"},
			CapabilityValues: map[string]any{"measure_power": 640.0, "target_temperature": 21.0},
		},
	}
	return &Demo{devices: devices, zones: zones}
}

func (d *Demo) GetDevices(ctx context.Context) (map[string]Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]Device, len(d.devices))
	for k, v := range d.devices {
		out[k] = v
	}
	return out, nil
}

func (d *Demo) GetZones(ctx context.Context) (map[string]Zone, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]Zone, len(d.zones))
	for k, v := range d.zones {
		out[k] = v
	}
	return out, nil
}

func (d *Demo) GetDeviceCapability(ctx context.Context, deviceID, capability string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, ok := d.devices[deviceID]
	if !ok {
		return nil, ErrUnknownDevice
	}
	if !dev.HasCapability(capability) {
		return nil, ErrUnknownCapability
	}
	return dev.CapabilityValues[capability], nil
}

func (d *Demo) SetDeviceCapability(ctx context.Context, deviceID, capability string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, ok := d.devices[deviceID]
	if !ok {
		return ErrUnknownDevice
	}
	if !dev.HasCapability(capability) {
		return ErrUnknownCapability
	}
	dev.CapabilityValues[capability] = value
	d.devices[deviceID] = dev
	return nil
}

func (d *Demo) TriggerFlow(ctx context.Context, flowID string) error {
	return nil
}
