package heating

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/homepilot/control-plane/internal/clock"
	"github.com/homepilot/control-plane/internal/devicemanager"
	"github.com/homepilot/control-plane/internal/errs"
	"github.com/homepilot/control-plane/internal/notify"
)

const systemName = "heating"

const (
	minTargetTemp = 5.0
	maxTargetTemp = 35.0

	ecoDelta           = -2.0
	frostSetpoint      = 5.0
	nightSetbackDelta  = 2.0
	holidayMaxSetpoint = 16.0

	deadband = 0.05

	summerShutdownAvg   = 18.0
	outdoorSampleWindow = 24 * time.Hour
	sensorStaleAfter    = 10 * time.Minute
	floorProtectionBand = 1.0

	// Open-window heuristic: a fast air-temperature drop pauses heating
	// for a recovery window instead of fighting the draft.
	windowDropDelta    = 1.5
	windowDropInterval = 5 * time.Minute
	windowHoldFor      = 30 * time.Minute

	defaultTargetTemp    = 21.0
	defaultNominalPowerW = 800.0
)

// Publisher is the slice of the event bus the controller publishes on.
type Publisher interface {
	PublishEvent(event string, payload any)
}

// Config wires the controller's collaborators.
type Config struct {
	Clock        clock.Clock
	Devices      devicemanager.Manager
	History      *errs.History
	Notifier     *notify.Center
	Bus          Publisher
	Log          *logrus.Entry
	TickInterval time.Duration // dt fallback for a zone's first tick
}

type nightSetback struct {
	enabled    bool
	start, end int // minutes since midnight
}

type preHeat struct {
	enabled bool
	start   int // minutes since midnight
	minutes int
}

type outdoorSample struct {
	at   time.Time
	temp float64
}

// Controller owns every heating zone. All operations and the periodic tick
// are serialised behind one mutex; the PID math itself never suspends.
type Controller struct {
	mu    sync.Mutex
	zones map[string]*zone

	params  PIDParams
	holiday bool
	setback nightSetback
	preheat preHeat
	outdoor []outdoorSample

	clk          clock.Clock
	devices      devicemanager.Manager
	history      *errs.History
	notifier     *notify.Center
	bus          Publisher
	log          *logrus.Entry
	tickInterval time.Duration
}

// NewController builds a Controller with default PID tuning.
func NewController(cfg Config) *Controller {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Controller{
		zones:        make(map[string]*zone),
		params:       DefaultPIDParams,
		clk:          clk,
		devices:      cfg.Devices,
		history:      cfg.History,
		notifier:     cfg.Notifier,
		bus:          cfg.Bus,
		log:          cfg.Log,
		tickInterval: interval,
	}
}

// AddZone registers a new zone. Unknown type or material is rejected.
func (c *Controller) AddZone(id, name string, zoneType ZoneType, material FloorMaterial, opts ZoneOptions) (ZoneStatus, error) {
	if zoneType != TypeElectric && zoneType != TypeWater {
		return ZoneStatus{}, errs.Validation("INVALID_ZONE_TYPE", fmt.Sprintf("unknown zone type %q", zoneType), nil)
	}
	if _, ok := materialMax[material]; !ok {
		return ZoneStatus{}, errs.Validation("INVALID_MATERIAL", fmt.Sprintf("unknown floor material %q", material), nil)
	}

	target := opts.TargetTemp
	if target == 0 {
		target = defaultTargetTemp
	}
	if target < minTargetTemp || target > maxTargetTemp {
		return ZoneStatus{}, errs.Validation("INVALID_TARGET", "target temperature out of range", target)
	}
	power := opts.NominalPowerW
	if power == 0 {
		power = defaultNominalPowerW
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.zones[id]; exists {
		return ZoneStatus{}, errs.Validation("DUPLICATE_ZONE", "zone already exists: "+id, nil)
	}

	z := &zone{
		ID:               id,
		DisplayName:      name,
		Type:             zoneType,
		Material:         material,
		TargetTemp:       target,
		Mode:             ModeComfort,
		Enabled:          true,
		Schedule:         make(map[string][]SchedulePeriod),
		NominalPowerW:    power,
		Bathroom:         opts.Bathroom,
		ActuatorDeviceID: opts.ActuatorDeviceID,
		dailyEnergy:      make(map[string]float64),
		energyDayStamp:   c.clk.Now().Format("2006-01-02"),
	}
	c.zones[id] = z
	return z.status(), nil
}

// RemoveZone deletes a zone. Unknown ids are rejected.
func (c *Controller) RemoveZone(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.zones[id]; !ok {
		return errs.NotFound("UNKNOWN_ZONE", "no zone with id "+id)
	}
	delete(c.zones, id)
	return nil
}

// SetZoneTemp sets the zone's base target. Values outside [5, 35] are rejected.
func (c *Controller) SetZoneTemp(id string, temp float64) error {
	if temp < minTargetTemp || temp > maxTargetTemp {
		return errs.Validation("INVALID_TARGET", fmt.Sprintf("target %.3f outside [%g, %g]", temp, minTargetTemp, maxTargetTemp), temp)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zones[id]
	if !ok {
		return errs.NotFound("UNKNOWN_ZONE", "no zone with id "+id)
	}
	z.TargetTemp = temp
	return nil
}

// SetMode queues a mode change for the zone; it applies on the next tick,
// never mid-tick.
func (c *Controller) SetMode(id string, mode Mode) error {
	if mode != ModeComfort && mode != ModeEco && mode != ModeFrost {
		return errs.Validation("INVALID_MODE", fmt.Sprintf("unknown mode %q", mode), nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zones[id]
	if !ok {
		return errs.NotFound("UNKNOWN_ZONE", "no zone with id "+id)
	}
	m := mode
	z.pendingMode = &m
	return nil
}

// SetAllZonesMode queues a mode change for every zone.
func (c *Controller) SetAllZonesMode(mode Mode) error {
	if mode != ModeComfort && mode != ModeEco && mode != ModeFrost {
		return errs.Validation("INVALID_MODE", fmt.Sprintf("unknown mode %q", mode), nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, z := range c.zones {
		m := mode
		z.pendingMode = &m
	}
	return nil
}

// SetEnabled switches a zone's loop on or off.
func (c *Controller) SetEnabled(id string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zones[id]
	if !ok {
		return errs.NotFound("UNKNOWN_ZONE", "no zone with id "+id)
	}
	z.Enabled = enabled
	if !enabled {
		z.HeatingActive = false
		z.lastOutput = 0
	}
	return nil
}

// SensorReadings carries a partial sensor update; nil fields are untouched.
type SensorReadings struct {
	FloorTemp *float64
	AirTemp   *float64
	Humidity  *float64
}

// UpdateSensorReadings applies new samples to a zone. Unknown ids are
// silently dropped — sensors outlive zone configuration in the field.
// The calibration offset applies to every incoming temperature sample.
func (c *Controller) UpdateSensorReadings(id string, r SensorReadings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zones[id]
	if !ok {
		return
	}
	now := c.clk.Now()

	if r.FloorTemp != nil {
		z.FloorTemp = *r.FloorTemp + z.calibrationOffset
	}
	if r.AirTemp != nil {
		air := *r.AirTemp + z.calibrationOffset

		// Open-window heuristic: a sharp drop within the detection interval.
		if !z.prevAirTempAt.IsZero() && now.Sub(z.prevAirTempAt) <= windowDropInterval &&
			z.prevAirTemp-air >= windowDropDelta {
			z.openWindowUntil = now.Add(windowHoldFor)
		}
		z.prevAirTemp = air
		z.prevAirTempAt = now
		z.AirTemp = air
	}
	if r.Humidity != nil {
		z.Humidity = *r.Humidity
	}

	// Sensor fusion: air leads, floor damps.
	switch {
	case z.AirTemp != 0 && z.FloorTemp != 0:
		z.CurrentTemp = 0.7*z.AirTemp + 0.3*z.FloorTemp
	case z.AirTemp != 0:
		z.CurrentTemp = z.AirTemp
	case z.FloorTemp != 0:
		z.CurrentTemp = z.FloorTemp
	}

	z.lastSensorUpdate = now
}

// CalibrateSensor sets a persistent offset applied to all subsequent
// samples, and shifts the current readings immediately.
func (c *Controller) CalibrateSensor(id string, offset float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zones[id]
	if !ok {
		return errs.NotFound("UNKNOWN_ZONE", "no zone with id "+id)
	}
	delta := offset - z.calibrationOffset
	z.calibrationOffset = offset
	if z.CurrentTemp != 0 {
		z.CurrentTemp += delta
	}
	if z.FloorTemp != 0 {
		z.FloorTemp += delta
	}
	if z.AirTemp != 0 {
		z.AirTemp += delta
	}
	return nil
}

// SetPIDParams applies a partial gains update shared by every zone.
func (c *Controller) SetPIDParams(kp, ki, kd *float64) PIDParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kp != nil {
		c.params.Kp = *kp
	}
	if ki != nil {
		c.params.Ki = *ki
	}
	if kd != nil {
		c.params.Kd = *kd
	}
	return c.params
}

// SetHolidayMode caps every zone's setpoint while the house is empty.
func (c *Controller) SetHolidayMode(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holiday = on
}

// SetNightSetback configures the nightly −2 K window. Times are "HH:MM"
// or "HHMM"; the window may span midnight.
func (c *Controller) SetNightSetback(start, end string) error {
	s, err := parseHHMM(start)
	if err != nil {
		return errs.Validation("INVALID_TIME", "bad setback start: "+err.Error(), start)
	}
	e, err := parseHHMM(end)
	if err != nil {
		return errs.Validation("INVALID_TIME", "bad setback end: "+err.Error(), end)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setback = nightSetback{enabled: true, start: s, end: e}
	return nil
}

// ClearNightSetback disables the setback window.
func (c *Controller) ClearNightSetback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setback = nightSetback{}
}

// SetBathroomPreHeat schedules a daily comfort window for bathroom zones.
func (c *Controller) SetBathroomPreHeat(timeHHMM string, minutes int) error {
	s, err := parseHHMM(timeHHMM)
	if err != nil {
		return errs.Validation("INVALID_TIME", "bad pre-heat time: "+err.Error(), timeHHMM)
	}
	if minutes <= 0 {
		return errs.Validation("INVALID_DURATION", "pre-heat minutes must be positive", minutes)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preheat = preHeat{enabled: true, start: s, minutes: minutes}
	return nil
}

// UpdateOutdoorTemp records an outdoor sample for the summer-shutdown
// 24-hour average.
func (c *Controller) UpdateOutdoorTemp(temp float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.outdoor = append(c.outdoor, outdoorSample{at: now, temp: temp})

	cutoff := now.Add(-outdoorSampleWindow)
	trimmed := c.outdoor[:0]
	for _, s := range c.outdoor {
		if !s.at.Before(cutoff) {
			trimmed = append(trimmed, s)
		}
	}
	c.outdoor = trimmed
}

// ClearFault returns a faulted zone to IDLE. Unknown ids are rejected.
func (c *Controller) ClearFault(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zones[id]
	if !ok {
		return errs.NotFound("UNKNOWN_ZONE", "no zone with id "+id)
	}
	z.Fault = ""
	return nil
}

// GetZoneStatus returns a snapshot, or nil for an unknown id.
func (c *Controller) GetZoneStatus(id string) *ZoneStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zones[id]
	if !ok {
		return nil
	}
	s := z.status()
	return &s
}

// GetAllZoneStatus returns snapshots of every zone.
func (c *Controller) GetAllZoneStatus() []ZoneStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ZoneStatus, 0, len(c.zones))
	for _, z := range c.zones {
		out = append(out, z.status())
	}
	return out
}

// summerShutdownLocked reports whether the outdoor 24 h average exceeds the
// threshold. No samples means no shutdown.
func (c *Controller) summerShutdownLocked() bool {
	if len(c.outdoor) == 0 {
		return false
	}
	sum := 0.0
	for _, s := range c.outdoor {
		sum += s.temp
	}
	return sum/float64(len(c.outdoor)) > summerShutdownAvg
}

// Tick advances every enabled zone's control loop once.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	now := c.clk.Now()
	summer := c.summerShutdownLocked()

	type actuatorWrite struct {
		deviceID string
		output   float64
	}
	var writes []actuatorWrite

	for _, z := range c.zones {
		if z.pendingMode != nil {
			z.Mode = *z.pendingMode
			z.pendingMode = nil
		}
		if !z.Enabled {
			continue
		}

		c.rollEnergyDayLocked(z, now)

		output := c.computeOutputLocked(z, now, summer)
		c.applyOutputLocked(z, now, output)

		if z.ActuatorDeviceID != "" {
			writes = append(writes, actuatorWrite{deviceID: z.ActuatorDeviceID, output: output})
		}
	}
	c.mu.Unlock()

	// Actuator I/O happens outside the state lock; a write failure is
	// recorded but never halts the loop.
	for _, w := range writes {
		if c.devices == nil {
			break
		}
		if err := c.devices.SetDeviceCapability(ctx, w.deviceID, "dim", w.output/100.0); err != nil {
			if c.history != nil {
				c.history.Record(systemName, fmt.Sprintf("actuator write to %s failed: %v", w.deviceID, err), errs.SeverityHigh)
			}
			if c.log != nil {
				c.log.WithField("device", w.deviceID).WithError(err).Warn("actuator write failed")
			}
		}
	}
}

// computeOutputLocked runs the setpoint resolution, guards and PID advance
// for one zone and returns the output in [0, 100].
func (c *Controller) computeOutputLocked(z *zone, now time.Time, summer bool) float64 {
	// Standing faults pin the output at 0 until cleared.
	if z.Fault != "" {
		return 0
	}

	// Sensor silence raises SENSOR_STALE and stops the loop.
	if !z.lastSensorUpdate.IsZero() && now.Sub(z.lastSensorUpdate) > sensorStaleAfter {
		c.raiseFaultLocked(z, FaultSensorStale)
		return 0
	}

	if summer {
		return 0
	}
	if now.Before(z.openWindowUntil) {
		return 0
	}

	setpoint := c.effectiveSetpointLocked(z, now)
	errVal := setpoint - z.CurrentTemp
	if errVal < deadband && errVal > -deadband {
		return 0
	}

	dt := c.tickInterval.Seconds()
	if !z.PID.LastUpdate.IsZero() {
		if elapsed := now.Sub(z.PID.LastUpdate).Seconds(); elapsed > 0 {
			dt = elapsed
		}
	}

	z.PID.Integral += errVal * dt
	if c.params.Ki > 0 {
		limit := 100 / c.params.Ki
		if z.PID.Integral > limit {
			z.PID.Integral = limit
		} else if z.PID.Integral < -limit {
			z.PID.Integral = -limit
		}
	}

	derivative := 0.0
	if dt > 0 {
		derivative = (errVal - z.PID.LastError) / dt
	}
	z.PID.LastError = errVal
	z.PID.LastUpdate = now

	output := c.params.Kp*errVal + c.params.Ki*z.PID.Integral + c.params.Kd*derivative
	if output < 0 {
		output = 0
	}
	if output > 100 {
		output = 100
	}

	// Floor protection: taper toward 0 inside the protection band, hard
	// fault above the material ceiling.
	max := materialMax[z.Material]
	if z.FloorTemp > max {
		c.raiseFaultLocked(z, FaultOverTemp)
		return 0
	}
	if z.FloorTemp > max-floorProtectionBand {
		output *= (max - z.FloorTemp) / floorProtectionBand
	}

	return output
}

// effectiveSetpointLocked resolves the setpoint for one zone at one instant.
func (c *Controller) effectiveSetpointLocked(z *zone, now time.Time) float64 {
	setpoint := z.TargetTemp

	// An active schedule period overrides the base target; the
	// latest-defined overlapping period wins.
	if t, ok := scheduledTarget(z.Schedule, now); ok {
		setpoint = t
	}

	preheatActive := c.preheat.enabled && z.Bathroom && inWindow(minutesOfDay(now), c.preheat.start, c.preheat.start+c.preheat.minutes)

	if !preheatActive {
		switch z.Mode {
		case ModeEco:
			setpoint += ecoDelta
		case ModeFrost:
			setpoint = frostSetpoint
		}
		if c.setback.enabled && inWindow(minutesOfDay(now), c.setback.start, c.setback.end) {
			setpoint -= nightSetbackDelta
		}
	}

	if c.holiday && setpoint > holidayMaxSetpoint {
		setpoint = holidayMaxSetpoint
	}
	return setpoint
}

// applyOutputLocked records the output's side effects: state flags, cycle
// counting, runtime and energy accumulation.
func (c *Controller) applyOutputLocked(z *zone, now time.Time, output float64) {
	dt := c.tickInterval.Seconds()

	active := output > 0
	if active && !z.HeatingActive {
		z.CycleCount++
	}
	if active {
		z.RuntimeSeconds += dt
		z.EnergyTodayKwh += (output / 100.0) * z.NominalPowerW * dt / 3_600_000
	}
	z.HeatingActive = active
	z.lastOutput = output
}

func (c *Controller) rollEnergyDayLocked(z *zone, now time.Time) {
	day := now.Format("2006-01-02")
	if z.energyDayStamp == day {
		return
	}
	if z.energyDayStamp != "" {
		z.dailyEnergy[z.energyDayStamp] = z.EnergyTodayKwh
	}
	z.energyDayStamp = day
	z.EnergyTodayKwh = 0
}

func (c *Controller) raiseFaultLocked(z *zone, code FaultCode) {
	if z.Fault == code {
		return
	}
	z.Fault = code
	z.HeatingActive = false
	z.lastOutput = 0

	if c.history != nil {
		c.history.Record(systemName, fmt.Sprintf("zone %s fault: %s", z.ID, code), errs.SeverityHigh)
	}
	if c.notifier != nil {
		c.notifier.Emit(notify.Notification{
			Priority: notify.PriorityHigh,
			Category: systemName,
			Title:    "Heating zone fault",
			Message:  fmt.Sprintf("%s entered fault %s", z.DisplayName, code),
		})
	}
	if c.bus != nil {
		c.bus.PublishEvent("zone-fault", map[string]any{"zoneId": z.ID, "fault": string(code)})
	}
}

func parseHHMM(s string) (int, error) {
	var h, m int
	var err error
	switch len(s) {
	case 5: // HH:MM
		_, err = fmt.Sscanf(s, "%02d:%02d", &h, &m)
	case 4: // HHMM
		_, err = fmt.Sscanf(s, "%02d%02d", &h, &m)
	default:
		return 0, fmt.Errorf("want HH:MM or HHMM, got %q", s)
	}
	if err != nil {
		return 0, fmt.Errorf("want HH:MM or HHMM, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return h*60 + m, nil
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// inWindow tests a half-open [start, end) window in minutes-of-day,
// handling windows that span midnight.
func inWindow(now, start, end int) bool {
	start %= 24 * 60
	end %= 24 * 60
	if start == end {
		return false
	}
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}
