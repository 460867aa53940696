package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitFillsDefaults(t *testing.T) {
	c := NewCenter(nil)

	n := c.Emit(Notification{Category: "heating", Title: "Fault", Message: "sensor stale"})

	require.NotEmpty(t, n.ID)
	assert.Contains(t, n.ID, "notif_")
	assert.False(t, n.Timestamp.IsZero())
	assert.Equal(t, PriorityNormal, n.Priority)
}

func TestHistoryBoundedAndNewestFirst(t *testing.T) {
	c := NewCenter(nil)

	for i := 0; i < historyCapacity+50; i++ {
		c.Emit(Notification{Category: "test", Timestamp: time.Unix(int64(i), 0)})
	}

	assert.Equal(t, historyCapacity, c.Len())

	recent := c.Recent(2)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Timestamp.After(recent[1].Timestamp))
}

func TestRecentCappedAtSize(t *testing.T) {
	c := NewCenter(nil)
	c.Emit(Notification{Category: "a"})
	c.Emit(Notification{Category: "b"})

	recent := c.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Category)
	assert.Equal(t, "a", recent[1].Category)
}
