// Package units converts costs between billing periods.
package units

import (
	"fmt"
	"strings"
)

// Period is the billing period a cost amount covers.
type Period string

const (
	PeriodHourly  Period = "hourly"
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// HoursPerMonth is the standard billing assumption.
const HoursPerMonth = 730.0

// DaysPerMonth matches the 30-day month used for monthly seasonality.
const DaysPerMonth = 30.0

// ParsePeriod accepts hourly/daily/monthly and the short forms h/d/mo.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hourly", "hour", "h":
		return PeriodHourly, nil
	case "daily", "day", "d", "":
		return PeriodDaily, nil
	case "monthly", "month", "mo":
		return PeriodMonthly, nil
	}
	return "", fmt.Errorf("unknown cost period %q", s)
}

// ToMonthly converts an amount for period p to a monthly amount.
func ToMonthly(value float64, p Period) float64 {
	switch p {
	case PeriodHourly:
		return value * HoursPerMonth
	case PeriodDaily:
		return value * DaysPerMonth
	default:
		return value
	}
}

// ToDaily converts an amount for period p to a daily amount.
func ToDaily(value float64, p Period) float64 {
	switch p {
	case PeriodHourly:
		return value * 24
	case PeriodMonthly:
		return value / DaysPerMonth
	default:
		return value
	}
}
