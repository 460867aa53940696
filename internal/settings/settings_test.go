package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemorySetGetKeys(t *testing.T) {
	m := NewMemory()

	_, ok := m.Get("night_setback_enabled")
	assert.False(t, ok)

	m.Set("night_setback_enabled", true)
	v, ok := m.Get("night_setback_enabled")
	assert.True(t, ok)
	assert.Equal(t, true, v)

	m.Set("energy_tariff_sek", 1.92)
	assert.ElementsMatch(t, []string{"night_setback_enabled", "energy_tariff_sek"}, m.Keys())
}

func TestMemorySetOverwrites(t *testing.T) {
	m := NewMemory()
	m.Set("k", "v1")
	m.Set("k", "v2")
	v, _ := m.Get("k")
	assert.Equal(t, "v2", v)
}
