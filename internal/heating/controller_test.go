package heating

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homepilot/control-plane/internal/clock"
)

func ptr(f float64) *float64 { return &f }

func newTestController(t *testing.T, clk clock.Clock) *Controller {
	t.Helper()
	return NewController(Config{Clock: clk, TickInterval: 30 * time.Second})
}

func addZone(t *testing.T, c *Controller, id string, material FloorMaterial, target float64) {
	t.Helper()
	_, err := c.AddZone(id, id, TypeElectric, material, ZoneOptions{TargetTemp: target, NominalPowerW: 1000})
	require.NoError(t, err)
}

func setTemps(c *Controller, id string, air, floor float64) {
	c.UpdateSensorReadings(id, SensorReadings{AirTemp: ptr(air), FloorTemp: ptr(floor)})
}

func TestAddZoneValidation(t *testing.T) {
	c := newTestController(t, clock.Real{})

	_, err := c.AddZone("z1", "Zone", "steam", MaterialWood, ZoneOptions{})
	assert.Error(t, err)

	_, err = c.AddZone("z1", "Zone", TypeElectric, "carpet", ZoneOptions{})
	assert.Error(t, err)

	_, err = c.AddZone("z1", "Zone", TypeElectric, MaterialWood, ZoneOptions{})
	require.NoError(t, err)

	_, err = c.AddZone("z1", "Zone", TypeElectric, MaterialWood, ZoneOptions{})
	assert.Error(t, err, "duplicate id")
}

func TestSetZoneTempBounds(t *testing.T) {
	c := newTestController(t, clock.Real{})
	addZone(t, c, "z1", MaterialTile, 21)

	require.NoError(t, c.SetZoneTemp("z1", 5))
	require.NoError(t, c.SetZoneTemp("z1", 35))
	assert.Error(t, c.SetZoneTemp("z1", 4.999))
	assert.Error(t, c.SetZoneTemp("z1", 35.001))

	require.NoError(t, c.SetZoneTemp("z1", 23.5))
	assert.Equal(t, 23.5, c.GetZoneStatus("z1").TargetTemp)

	assert.Error(t, c.SetZoneTemp("missing", 21))
}

func TestUnknownSensorIDsSilentlyDropped(t *testing.T) {
	c := newTestController(t, clock.Real{})
	// Must not panic or error.
	c.UpdateSensorReadings("ghost", SensorReadings{AirTemp: ptr(21)})
}

func TestTickProducesHeatAndTelemetry(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 24)
	setTemps(c, "z1", 20, 21)

	c.Tick(context.Background())

	s := c.GetZoneStatus("z1")
	assert.Greater(t, s.Output, 0.0)
	assert.LessOrEqual(t, s.Output, 100.0)
	assert.True(t, s.HeatingActive)
	assert.Equal(t, StateHeating, s.State)
	assert.Equal(t, int64(1), s.CycleCount)
	assert.Equal(t, 30.0, s.RuntimeSeconds)
	assert.Greater(t, s.EnergyTodayKwh, 0.0)

	// A second tick from the same demand does not re-count the cycle.
	clk.Advance(30 * time.Second)
	setTemps(c, "z1", 20, 21)
	c.Tick(context.Background())
	assert.Equal(t, int64(1), c.GetZoneStatus("z1").CycleCount)
}

func TestTickDeadband(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 21)

	// Within ±0.05 K of setpoint: no output, PID state untouched.
	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(21.02)})
	c.Tick(context.Background())

	s := c.GetZoneStatus("z1")
	assert.Zero(t, s.Output)
	assert.False(t, s.HeatingActive)
	assert.Zero(t, s.PID.Integral)
}

func TestFloorProtectionScenario(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "wood", MaterialWood, 24)

	// Floor inside the protection band: output reduced below full power.
	setTemps(c, "wood", 20, 26.5)
	c.Tick(context.Background())
	s := c.GetZoneStatus("wood")
	assert.Greater(t, s.Output, 0.0)
	assert.Less(t, s.Output, 100.0)

	// Floor above the wood maximum: output 0 and OVER_TEMP fault.
	clk.Advance(30 * time.Second)
	setTemps(c, "wood", 20, 27.1)
	c.Tick(context.Background())
	s = c.GetZoneStatus("wood")
	assert.Zero(t, s.Output)
	assert.Equal(t, FaultOverTemp, s.FaultCode)
	assert.Equal(t, StateFault, s.State)

	// Fault is sticky until cleared, even after the floor cools.
	clk.Advance(30 * time.Second)
	setTemps(c, "wood", 20, 25)
	c.Tick(context.Background())
	assert.Zero(t, c.GetZoneStatus("wood").Output)

	require.NoError(t, c.ClearFault("wood"))
	clk.Advance(30 * time.Second)
	setTemps(c, "wood", 20, 25)
	c.Tick(context.Background())
	assert.Greater(t, c.GetZoneStatus("wood").Output, 0.0)
}

func TestIntegralAntiWindupBound(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialStone, 30)

	limit := 100 / DefaultPIDParams.Ki
	for i := 0; i < 50; i++ {
		setTemps(c, "z1", 10, 15)
		c.Tick(context.Background())
		clk.Advance(30 * time.Second)

		s := c.GetZoneStatus("z1")
		assert.LessOrEqual(t, s.PID.Integral, limit)
		assert.GreaterOrEqual(t, s.PID.Integral, -limit)
		assert.GreaterOrEqual(t, s.Output, 0.0)
		assert.LessOrEqual(t, s.Output, 100.0)
	}
}

func TestFrostModeUsesAbsoluteSetpoint(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 24)
	require.NoError(t, c.SetMode("z1", ModeFrost))

	// Mode queued: applies at the start of the next tick.
	setTemps(c, "z1", 20, 20)
	c.Tick(context.Background())

	s := c.GetZoneStatus("z1")
	assert.Equal(t, ModeFrost, s.Mode)
	// 20 °C is far above the 5 °C frost setpoint: no demand.
	assert.Zero(t, s.Output)
}

func TestEcoModeLowersSetpoint(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 22)
	require.NoError(t, c.SetMode("z1", ModeEco))

	// Current 21 sits above the eco setpoint of 20: no demand.
	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(21)})
	c.Tick(context.Background())
	assert.Zero(t, c.GetZoneStatus("z1").Output)
}

func TestNightSetback(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 23, 30, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 22)
	require.NoError(t, c.SetNightSetback("22:00", "06:00"))

	// 21 °C is above the setback setpoint of 20: idle overnight.
	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(21)})
	c.Tick(context.Background())
	assert.Zero(t, c.GetZoneStatus("z1").Output)

	// Same reading during the day heats.
	clk2 := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c2 := newTestController(t, clk2)
	addZone(t, c2, "z1", MaterialTile, 22)
	require.NoError(t, c2.SetNightSetback("22:00", "06:00"))
	c2.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(21)})
	c2.Tick(context.Background())
	assert.Greater(t, c2.GetZoneStatus("z1").Output, 0.0)
}

func TestHolidayModeClampsSetpoint(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 24)
	c.SetHolidayMode(true)

	// 17 °C exceeds the 16 °C holiday ceiling: no demand.
	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(17)})
	c.Tick(context.Background())
	assert.Zero(t, c.GetZoneStatus("z1").Output)

	// 14 °C is below the ceiling: still heats while away.
	clk.Advance(30 * time.Second)
	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(14)})
	c.Tick(context.Background())
	assert.Greater(t, c.GetZoneStatus("z1").Output, 0.0)
}

func TestSummerShutdown(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 24)

	c.UpdateOutdoorTemp(22)
	c.UpdateOutdoorTemp(21)

	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(18)})
	c.Tick(context.Background())
	assert.Zero(t, c.GetZoneStatus("z1").Output)
}

func TestOpenWindowDetection(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 24)

	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(21)})
	clk.Advance(2 * time.Minute)
	// 2.5 K drop in two minutes reads as an open window.
	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(18.5)})

	c.Tick(context.Background())
	s := c.GetZoneStatus("z1")
	assert.Zero(t, s.Output)
	assert.False(t, s.HeatingActive)
	assert.Empty(t, s.FaultCode, "open window is not a fault")

	// After the hold expires the loop resumes.
	clk.Advance(31 * time.Minute)
	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(18.5)})
	c.Tick(context.Background())
	assert.Greater(t, c.GetZoneStatus("z1").Output, 0.0)
}

func TestSensorStaleFault(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 24)

	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(20)})
	clk.Advance(11 * time.Minute)
	c.Tick(context.Background())

	s := c.GetZoneStatus("z1")
	assert.Equal(t, FaultSensorStale, s.FaultCode)
	assert.Zero(t, s.Output)
}

func TestCalibrationAppliesToSubsequentSamples(t *testing.T) {
	c := newTestController(t, clock.Real{})
	addZone(t, c, "z1", MaterialTile, 24)

	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(20)})
	require.NoError(t, c.CalibrateSensor("z1", 0.5))
	assert.InDelta(t, 20.5, c.GetZoneStatus("z1").AirTemp, 1e-9)

	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(20)})
	assert.InDelta(t, 20.5, c.GetZoneStatus("z1").AirTemp, 1e-9)
}

func TestScheduleOverridesTarget(t *testing.T) {
	// Thursday 2026-01-15.
	clk := clock.NewFake(time.Date(2026, 1, 15, 7, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 18)

	require.NoError(t, c.SetSchedule("z1", "thursday", []SchedulePeriod{
		{Start: "06:00", End: "09:00", TargetTemp: 23},
	}))

	// Base target 18 would be satisfied at 20 °C; the schedule demands 23.
	c.UpdateSensorReadings("z1", SensorReadings{AirTemp: ptr(20)})
	c.Tick(context.Background())
	assert.Greater(t, c.GetZoneStatus("z1").Output, 0.0)
}

func TestScheduleLatestDefinedPeriodWins(t *testing.T) {
	now := time.Date(2026, 1, 15, 7, 0, 0, 0, time.UTC) // Thursday
	schedule := map[string][]SchedulePeriod{
		"thursday": {
			{Start: "06:00", End: "09:00", TargetTemp: 21},
			{Start: "06:30", End: "08:00", TargetTemp: 25},
		},
	}
	target, ok := scheduledTarget(schedule, now)
	require.True(t, ok)
	assert.Equal(t, 25.0, target)

	// Period boundaries are half-open [start, end).
	_, ok = scheduledTarget(schedule, time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestScheduleValidation(t *testing.T) {
	c := newTestController(t, clock.Real{})
	addZone(t, c, "z1", MaterialTile, 21)

	assert.Error(t, c.SetSchedule("z1", "someday", nil))
	assert.Error(t, c.SetSchedule("z1", "monday", []SchedulePeriod{{Start: "25:00", End: "09:00", TargetTemp: 21}}))
	assert.Error(t, c.SetSchedule("z1", "monday", []SchedulePeriod{{Start: "06:00", End: "09:00", TargetTemp: 40}}))
	assert.Error(t, c.SetSchedule("missing", "monday", nil))

	require.NoError(t, c.SetSchedule("z1", "Monday", []SchedulePeriod{{Start: "06:00", End: "09:00", TargetTemp: 22}}))
	got := c.GetSchedule("z1")
	require.Len(t, got["monday"], 1)
	assert.Equal(t, 22.0, got["monday"][0].TargetTemp)
}

func TestEnergyReportPeriods(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 24)

	for i := 0; i < 10; i++ {
		setTemps(c, "z1", 18, 19)
		c.Tick(context.Background())
		clk.Advance(30 * time.Second)
	}

	for _, period := range []string{"day", "week", "month", "total"} {
		report, err := c.GetEnergyReport(period)
		require.NoError(t, err)
		assert.Equal(t, period, report.Period)
		assert.Greater(t, report.TotalKwh, 0.0)
	}

	_, err := c.GetEnergyReport("fortnight")
	assert.Error(t, err)
}

func TestRemoveZone(t *testing.T) {
	c := newTestController(t, clock.Real{})
	addZone(t, c, "z1", MaterialTile, 21)

	require.NoError(t, c.RemoveZone("z1"))
	assert.Nil(t, c.GetZoneStatus("z1"))
	assert.Error(t, c.RemoveZone("z1"))
}

func TestSetPIDParamsPartial(t *testing.T) {
	c := newTestController(t, clock.Real{})

	got := c.SetPIDParams(ptr(30), nil, nil)
	assert.Equal(t, 30.0, got.Kp)
	assert.Equal(t, DefaultPIDParams.Ki, got.Ki)
	assert.Equal(t, DefaultPIDParams.Kd, got.Kd)
}

func TestSystemSummary(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 24)
	addZone(t, c, "z2", MaterialWood, 20)

	setTemps(c, "z1", 18, 19)
	c.UpdateSensorReadings("z2", SensorReadings{AirTemp: ptr(21)})
	c.Tick(context.Background())

	s := c.GetSystemSummary()
	assert.Equal(t, 2, s.ZoneCount)
	assert.Equal(t, 1, s.ActiveZones)
	assert.Zero(t, s.FaultedZones)
}

func TestStatisticsTotals(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	c := newTestController(t, clk)
	addZone(t, c, "z1", MaterialTile, 24)

	setTemps(c, "z1", 18, 19)
	c.Tick(context.Background())

	stats := c.GetStatistics()
	require.Len(t, stats, 1)
	assert.Equal(t, "z1", stats[0].ZoneID)
	assert.Equal(t, int64(1), stats[0].CycleCount)
	assert.Equal(t, stats[0].EnergyTodayKwh, stats[0].EnergyTotalKwh)
}
