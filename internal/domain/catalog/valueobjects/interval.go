package valueobjects

import (
	"fmt"
	"time"
)

// BillingInterval is the unit a plan bills in.
type BillingInterval string

const (
	IntervalDaily   BillingInterval = "daily"
	IntervalWeekly  BillingInterval = "weekly"
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

var validIntervals = map[BillingInterval]bool{
	IntervalDaily:   true,
	IntervalWeekly:  true,
	IntervalMonthly: true,
	IntervalYearly:  true,
}

func (i BillingInterval) String() string {
	return string(i)
}

func (i BillingInterval) IsValid() bool {
	return validIntervals[i]
}

// ParseBillingInterval converts a string into a BillingInterval.
func ParseBillingInterval(s string) (BillingInterval, error) {
	i := BillingInterval(s)
	if !i.IsValid() {
		return "", fmt.Errorf("invalid billing interval: %s", s)
	}
	return i, nil
}

// AddTo advances t by count intervals.
func (i BillingInterval) AddTo(t time.Time, count int) time.Time {
	if count < 1 {
		count = 1
	}
	switch i {
	case IntervalDaily:
		return t.AddDate(0, 0, count)
	case IntervalWeekly:
		return t.AddDate(0, 0, 7*count)
	case IntervalYearly:
		return t.AddDate(count, 0, 0)
	default:
		return t.AddDate(0, count, 0)
	}
}
