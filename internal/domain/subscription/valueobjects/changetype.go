package valueobjects

import "github.com/shopspring/decimal"

// ChangeType classifies a plan change by price direction.
type ChangeType string

const (
	ChangeUpgrade   ChangeType = "upgrade"
	ChangeDowngrade ChangeType = "downgrade"
	ChangeSwitch    ChangeType = "switch"
)

func (c ChangeType) String() string {
	return string(c)
}

func (c ChangeType) IsValid() bool {
	return c == ChangeUpgrade || c == ChangeDowngrade || c == ChangeSwitch
}

// DetermineChangeType compares the two plan prices.
func DetermineChangeType(oldPrice, newPrice decimal.Decimal) ChangeType {
	switch newPrice.Cmp(oldPrice) {
	case 1:
		return ChangeUpgrade
	case -1:
		return ChangeDowngrade
	default:
		return ChangeSwitch
	}
}

// ProrationMode selects how a plan change amount is computed.
type ProrationMode string

const (
	ProrationTimeBased ProrationMode = "time_based"
	ProrationImmediate ProrationMode = "immediate"
	ProrationNone      ProrationMode = "none"
)
