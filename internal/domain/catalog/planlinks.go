package catalog

// PlanFeature links a feature to a plan. A nil Value defers to the feature's
// default value.
type PlanFeature struct {
	ID        uint
	UUID      string
	PlanID    uint
	FeatureID uint
	Value     *int64
	Metadata  map[string]interface{}
}

// PlanModule makes a module available on a plan. Availability does not imply
// activation.
type PlanModule struct {
	ID        uint
	UUID      string
	PlanID    uint
	ModuleID  uint
	IsEnabled bool
	Metadata  map[string]interface{}
}
