package entitlement

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidLimit       = errors.New("invalid limit")
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")
	ErrWindowExists       = errors.New("usage window already exists")
	ErrModuleNotInPlan    = errors.New("module is not enabled for the subscription plan")
	ErrModuleNotActivated = errors.New("module is not activated for the subscription")
	ErrFeatureNotInPlan   = errors.New("feature is not included in the subscription plan")
)

func ErrLimitExceeded(featureSlug string, used, requested, limit int64) error {
	return fmt.Errorf("%w: %s used=%d requested=%d limit=%d", ErrUsageLimitExceeded, featureSlug, used, requested, limit)
}
