package models

// All lists every persistence model in dependency order.
func All() []interface{} {
	return []interface{}{
		&ModuleModel{},
		&FeatureModel{},
		&PlanModel{},
		&PlanFeatureModel{},
		&PlanModuleModel{},
		&SubscriptionModel{},
		&SubscriptionUsageModel{},
		&SubscriptionLimitModel{},
		&ModuleActivationModel{},
		&SubscriptionChangeModel{},
	}
}
