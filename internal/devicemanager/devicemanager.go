// Package devicemanager models the external device manager collaborator
// (spec.md §3/§6): the core never owns a device, it only borrows references
// through this interface. A read-through cache adapter owns the cache and
// serializes per-device mutations, and a demo implementation backs the
// gateway when the real adapter errors, so requests degrade to stale/demo
// data instead of failing outright (spec.md §7).
package devicemanager

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Device is one controllable endpoint exposed by the external device manager.
type Device struct {
	ID               string
	Name             string
	ZoneID           string
	Class            string // light, thermostat, sensor, socket, ...
	Capabilities     []string
	CapabilityValues map[string]any
}

// HasCapability reports whether the device declares the named capability.
func (d Device) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Zone is a logical room grouping, read-only from the core's viewpoint.
type Zone struct {
	ID          string
	DisplayName string
	Icon        string
}

// Manager is the external collaborator interface (spec.md §6). Every call
// is cancellable and must respect ctx's deadline.
type Manager interface {
	GetDevices(ctx context.Context) (map[string]Device, error)
	GetZones(ctx context.Context) (map[string]Zone, error)
	GetDeviceCapability(ctx context.Context, deviceID, capability string) (any, error)
	SetDeviceCapability(ctx context.Context, deviceID, capability string, value any) error
	TriggerFlow(ctx context.Context, flowID string) error
}

// ErrUnknownCapability is returned when a capability isn't declared on a device.
var ErrUnknownCapability = fmt.Errorf("capability not declared on device")

// ErrUnknownDevice is returned for an id the manager has no record of.
var ErrUnknownDevice = fmt.Errorf("unknown device")

// CacheAdapter is a read-through cache in front of an upstream Manager. It
// owns its cache and serializes mutations so two concurrent
// SetDeviceCapability calls for the same device can't interleave, grounded
// on the "owns the cache, serializes mutations" design note (spec.md §9,
// replacing shared mutable maps reached into by multiple subsystems).
type CacheAdapter struct {
	upstream Manager
	timeout  time.Duration

	mu      sync.Mutex
	devices map[string]Device
	zones   map[string]Zone
	loaded  bool
}

// NewCacheAdapter wraps upstream with a read-through cache. timeout bounds
// every call made to upstream.
func NewCacheAdapter(upstream Manager, timeout time.Duration) *CacheAdapter {
	return &CacheAdapter{upstream: upstream, timeout: timeout}
}

func (c *CacheAdapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// Refresh resyncs the cache from upstream, replacing (never merging) the
// device/zone maps — matching the "replaced on resync" lifecycle invariant.
func (c *CacheAdapter) Refresh(ctx context.Context) error {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()

	devices, err := c.upstream.GetDevices(cctx)
	if err != nil {
		return err
	}
	zones, err := c.upstream.GetZones(cctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.devices = devices
	c.zones = zones
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// GetDevices returns the cached device map, refreshing first if never loaded.
func (c *CacheAdapter) GetDevices(ctx context.Context) (map[string]Device, error) {
	c.mu.Lock()
	loaded := c.loaded
	c.mu.Unlock()
	if !loaded {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Device, len(c.devices))
	for k, v := range c.devices {
		out[k] = v
	}
	return out, nil
}

// GetZones returns the cached zone map, refreshing first if never loaded.
func (c *CacheAdapter) GetZones(ctx context.Context) (map[string]Zone, error) {
	c.mu.Lock()
	loaded := c.loaded
	c.mu.Unlock()
	if !loaded {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Zone, len(c.zones))
	for k, v := range c.zones {
		out[k] = v
	}
	return out, nil
}

// GetDeviceCapability reads a capability value live from upstream under
// the call timeout; the cache is not consulted.
func (c *CacheAdapter) GetDeviceCapability(ctx context.Context, deviceID, capability string) (any, error) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.upstream.GetDeviceCapability(cctx, deviceID, capability)
}

// SetDeviceCapability serializes the upstream write behind the adapter's
// lock and updates the cached value on success.
func (c *CacheAdapter) SetDeviceCapability(ctx context.Context, deviceID, capability string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dev, ok := c.devices[deviceID]
	if !ok {
		return ErrUnknownDevice
	}
	if !dev.HasCapability(capability) {
		return ErrUnknownCapability
	}

	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.upstream.SetDeviceCapability(cctx, deviceID, capability, value); err != nil {
		return err
	}

	if dev.CapabilityValues == nil {
		dev.CapabilityValues = make(map[string]any)
	}
	dev.CapabilityValues[capability] = value
	c.devices[deviceID] = dev
	return nil
}

// TriggerFlow forwards a flow trigger to upstream under the call timeout.
func (c *CacheAdapter) TriggerFlow(ctx context.Context, flowID string) error {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.upstream.TriggerFlow(cctx, flowID)
}
