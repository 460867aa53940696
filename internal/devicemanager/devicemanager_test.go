package devicemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheAdapterRefreshReplacesNotMerges(t *testing.T) {
	demo := NewDemo()
	c := NewCacheAdapter(demo, time.Second)

	devices, err := c.GetDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	require.NoError(t, c.Refresh(context.Background()))
	devices, err = c.GetDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestSetDeviceCapabilityRejectsUndeclaredCapability(t *testing.T) {
	demo := NewDemo()
	c := NewCacheAdapter(demo, time.Second)
	_, err := c.GetDevices(context.Background())
	require.NoError(t, err)

	err = c.SetDeviceCapability(context.Background(), "lamp-1", "target_temperature", 20.0)
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestSetDeviceCapabilityUpdatesCacheOnSuccess(t *testing.T) {
	demo := NewDemo()
	c := NewCacheAdapter(demo, time.Second)
	_, err := c.GetDevices(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.SetDeviceCapability(context.Background(), "lamp-1", "onoff", true))

	v, err := c.GetDeviceCapability(context.Background(), "lamp-1", "onoff")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestSetDeviceCapabilityUnknownDevice(t *testing.T) {
	demo := NewDemo()
	c := NewCacheAdapter(demo, time.Second)
	_, err := c.GetDevices(context.Background())
	require.NoError(t, err)

	err = c.SetDeviceCapability(context.Background(), "does-not-exist", "onoff", true)
	assert.ErrorIs(t, err, ErrUnknownDevice)
}
