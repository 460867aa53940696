package heating

import (
	"time"

	"github.com/homepilot/control-plane/internal/errs"
)

// SystemSummary is the aggregate view for the dashboard.
type SystemSummary struct {
	ZoneCount    int     `json:"zoneCount"`
	ActiveZones  int     `json:"activeZones"`
	FaultedZones int     `json:"faultedZones"`
	AvgCurrent   float64 `json:"avgCurrentTemp"`
	AvgTarget    float64 `json:"avgTargetTemp"`
	HolidayMode  bool    `json:"holidayMode"`
}

// GetSystemSummary aggregates across every zone.
func (c *Controller) GetSystemSummary() SystemSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := SystemSummary{ZoneCount: len(c.zones), HolidayMode: c.holiday}
	if len(c.zones) == 0 {
		return s
	}
	sumCurrent, sumTarget := 0.0, 0.0
	for _, z := range c.zones {
		if z.HeatingActive {
			s.ActiveZones++
		}
		if z.Fault != "" {
			s.FaultedZones++
		}
		sumCurrent += z.CurrentTemp
		sumTarget += z.TargetTemp
	}
	s.AvgCurrent = sumCurrent / float64(len(c.zones))
	s.AvgTarget = sumTarget / float64(len(c.zones))
	return s
}

// ZoneStatistics is the per-zone telemetry slice of GetStatistics.
type ZoneStatistics struct {
	ZoneID         string  `json:"zoneId"`
	CycleCount     int64   `json:"cycleCount"`
	RuntimeSeconds float64 `json:"runtimeSeconds"`
	EnergyTodayKwh float64 `json:"energyTodayKwh"`
	EnergyTotalKwh float64 `json:"energyTotalKwh"`
}

// GetStatistics returns runtime/cycle/energy telemetry per zone.
func (c *Controller) GetStatistics() []ZoneStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ZoneStatistics, 0, len(c.zones))
	for _, z := range c.zones {
		total := z.EnergyTodayKwh
		for _, kwh := range z.dailyEnergy {
			total += kwh
		}
		out = append(out, ZoneStatistics{
			ZoneID:         z.ID,
			CycleCount:     z.CycleCount,
			RuntimeSeconds: z.RuntimeSeconds,
			EnergyTodayKwh: z.EnergyTodayKwh,
			EnergyTotalKwh: total,
		})
	}
	return out
}

// EnergyReport sums zone energy over a reporting period.
type EnergyReport struct {
	Period  string             `json:"period"`
	TotalKwh float64           `json:"totalKwh"`
	PerZone map[string]float64 `json:"perZone"`
}

// GetEnergyReport aggregates energy for period ∈ {day, week, month, total}.
func (c *Controller) GetEnergyReport(period string) (EnergyReport, error) {
	var since time.Time
	now := c.clk.Now()
	switch period {
	case "day":
		since = now.AddDate(0, 0, -1)
	case "week":
		since = now.AddDate(0, 0, -7)
	case "month":
		since = now.AddDate(0, -1, 0)
	case "total":
		// zero time: everything counts
	default:
		return EnergyReport{}, errs.Validation("INVALID_PERIOD", "period must be day, week, month or total", period)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	report := EnergyReport{Period: period, PerZone: make(map[string]float64)}
	for _, z := range c.zones {
		kwh := z.EnergyTodayKwh
		for day, dayKwh := range z.dailyEnergy {
			if since.IsZero() {
				kwh += dayKwh
				continue
			}
			d, err := time.Parse("2006-01-02", day)
			if err != nil {
				continue
			}
			if !d.Before(since.Truncate(24 * time.Hour)) {
				kwh += dayKwh
			}
		}
		report.PerZone[z.ID] = kwh
		report.TotalKwh += kwh
	}
	return report, nil
}
