package constants

const (
	HeaderXRequestID = "X-Request-ID"

	// ContextKeySubscriber holds the subscription.SubscriberRef set by an
	// upstream authentication middleware.
	ContextKeySubscriber = "subscriber"

	// DefaultSubscriptionName is the slot used when a subscriber does not name one.
	DefaultSubscriptionName = "default"

	ErrMsgInternalServerError = "Internal server error occurred"
)

// Table names.
const (
	TablePlans               = "plans"
	TableFeatures            = "features"
	TableModules             = "modules"
	TablePlanFeatures        = "plan_feature"
	TablePlanModules         = "plan_module"
	TableSubscriptions       = "subscriptions"
	TableSubscriptionUsage   = "subscription_usage"
	TableSubscriptionLimits  = "subscription_limits"
	TableModuleActivations   = "module_activations"
	TableSubscriptionChanges = "subscription_changes"
)
