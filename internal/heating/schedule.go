package heating

import (
	"strings"
	"time"

	"github.com/homepilot/control-plane/internal/errs"
)

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// SetSchedule replaces one day's ordered period list for a zone. Periods
// are half-open [start, end); overlaps resolve to the latest-defined one.
func (c *Controller) SetSchedule(id, dayName string, periods []SchedulePeriod) error {
	day := strings.ToLower(dayName)
	if _, ok := dayNames[day]; !ok {
		return errs.Validation("INVALID_DAY", "unknown day name: "+dayName, nil)
	}
	for _, p := range periods {
		if _, err := parseHHMM(p.Start); err != nil {
			return errs.Validation("INVALID_PERIOD", "bad period start: "+err.Error(), p)
		}
		if _, err := parseHHMM(p.End); err != nil {
			return errs.Validation("INVALID_PERIOD", "bad period end: "+err.Error(), p)
		}
		if p.TargetTemp < minTargetTemp || p.TargetTemp > maxTargetTemp {
			return errs.Validation("INVALID_PERIOD", "period target out of range", p)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zones[id]
	if !ok {
		return errs.NotFound("UNKNOWN_ZONE", "no zone with id "+id)
	}
	z.Schedule[day] = append([]SchedulePeriod(nil), periods...)
	return nil
}

// GetSchedule returns a copy of the zone's full 7-day schedule, or nil for
// an unknown id.
func (c *Controller) GetSchedule(id string) map[string][]SchedulePeriod {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zones[id]
	if !ok {
		return nil
	}
	out := make(map[string][]SchedulePeriod, len(z.Schedule))
	for day, periods := range z.Schedule {
		out[day] = append([]SchedulePeriod(nil), periods...)
	}
	return out
}

// scheduledTarget resolves the active period's target for the current
// instant. Scanning in order and keeping the last hit makes the
// latest-defined overlapping period win.
func scheduledTarget(schedule map[string][]SchedulePeriod, now time.Time) (float64, bool) {
	var periods []SchedulePeriod
	for name, wd := range dayNames {
		if wd == now.Weekday() {
			periods = schedule[name]
			break
		}
	}

	minutes := minutesOfDay(now)
	target, found := 0.0, false
	for _, p := range periods {
		start, err := parseHHMM(p.Start)
		if err != nil {
			continue
		}
		end, err := parseHHMM(p.End)
		if err != nil {
			continue
		}
		if minutes >= start && minutes < end {
			target, found = p.TargetTemp, true
		}
	}
	return target, found
}
