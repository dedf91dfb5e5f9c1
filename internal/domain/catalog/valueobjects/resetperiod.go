package valueobjects

import (
	"fmt"
	"time"

	"github.com/orris-inc/entitlements/internal/shared/biztime"
)

// ResetPeriod bounds a usage window.
type ResetPeriod string

const (
	ResetNever   ResetPeriod = "never"
	ResetDaily   ResetPeriod = "daily"
	ResetMonthly ResetPeriod = "monthly"
	ResetYearly  ResetPeriod = "yearly"
)

func (p ResetPeriod) String() string {
	return string(p)
}

func (p ResetPeriod) IsValid() bool {
	switch p {
	case ResetNever, ResetDaily, ResetMonthly, ResetYearly:
		return true
	}
	return false
}

func ParseResetPeriod(s string) (ResetPeriod, error) {
	p := ResetPeriod(s)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid reset period: %s", s)
	}
	return p, nil
}

// WindowEnd returns the valid_until of a window opened at now, or nil for
// windows that never expire.
func (p ResetPeriod) WindowEnd(now time.Time) *time.Time {
	var end time.Time
	switch p {
	case ResetDaily:
		end = biztime.EndOfDayUTC(now)
	case ResetMonthly:
		end = biztime.EndOfMonthUTC(now)
	case ResetYearly:
		end = biztime.EndOfYearUTC(now)
	default:
		return nil
	}
	return &end
}
