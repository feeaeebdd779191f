package models

import (
	"fmt"
	"time"
)

// TimePeriod selects a reporting window ending now.
type TimePeriod string

const (
	PeriodSevenDays  TimePeriod = "7d"
	PeriodThirtyDays TimePeriod = "30d"
	PeriodAllTime    TimePeriod = "all"
)

// ParsePeriod parses "7d", "30d" or "all". Empty input means seven days.
func ParsePeriod(s string) (TimePeriod, error) {
	switch TimePeriod(s) {
	case "", PeriodSevenDays:
		return PeriodSevenDays, nil
	case PeriodThirtyDays:
		return PeriodThirtyDays, nil
	case PeriodAllTime:
		return PeriodAllTime, nil
	default:
		return "", fmt.Errorf("unknown period %q (want 7d, 30d or all)", s)
	}
}

// Start returns the beginning of the window ending at now.
func (p TimePeriod) Start(now time.Time) time.Time {
	switch p {
	case PeriodThirtyDays:
		return now.AddDate(0, 0, -30)
	case PeriodAllTime:
		return now.AddDate(-100, 0, 0)
	default:
		return now.AddDate(0, 0, -7)
	}
}

// Range returns [start, now] for the period.
func (p TimePeriod) Range(now time.Time) (time.Time, time.Time) {
	return p.Start(now), now
}
