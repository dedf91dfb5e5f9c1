package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrPlanNotFound        = errors.New("plan not found")
	ErrFeatureNotFound     = errors.New("feature not found")
	ErrModuleNotFound      = errors.New("module not found")
	ErrPlanInUse           = errors.New("plan is referenced by subscriptions")
	ErrSlugExists          = errors.New("slug already exists")
	ErrSlugImmutable       = errors.New("slug cannot be changed")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrInvalidFeatureValue = errors.New("invalid feature value")
)

func ErrPlanSlugNotFound(slug string) error {
	return fmt.Errorf("%w: %s", ErrPlanNotFound, slug)
}

func ErrFeatureSlugNotFound(slug string) error {
	return fmt.Errorf("%w: %s", ErrFeatureNotFound, slug)
}

func ErrModuleSlugNotFound(slug string) error {
	return fmt.Errorf("%w: %s", ErrModuleNotFound, slug)
}
