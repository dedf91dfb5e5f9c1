package valueobjects

import "fmt"

// FeatureType decides whether a feature is a plain gate or carries a usage counter.
type FeatureType string

const (
	FeatureTypeBoolean    FeatureType = "boolean"
	FeatureTypeLimit      FeatureType = "limit"
	FeatureTypeConsumable FeatureType = "consumable"
)

func (t FeatureType) String() string {
	return string(t)
}

func (t FeatureType) IsValid() bool {
	return t == FeatureTypeBoolean || t == FeatureTypeLimit || t == FeatureTypeConsumable
}

// IsBoolean reports whether the feature ignores usage counters.
func (t FeatureType) IsBoolean() bool {
	return t == FeatureTypeBoolean
}

// IsMetered reports whether consumption is tracked in usage windows.
func (t FeatureType) IsMetered() bool {
	return t == FeatureTypeLimit || t == FeatureTypeConsumable
}

func ParseFeatureType(s string) (FeatureType, error) {
	t := FeatureType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid feature type: %s", s)
	}
	return t, nil
}
