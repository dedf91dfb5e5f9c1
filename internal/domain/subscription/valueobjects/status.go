package valueobjects

type SubscriptionStatus string

const (
	StatusOnTrial   SubscriptionStatus = "on_trial"
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusPaused    SubscriptionStatus = "paused"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

// CanUseService reports whether entitlements are granted in this status.
func (s SubscriptionStatus) CanUseService() bool {
	return s == StatusActive || s == StatusOnTrial
}

func (s SubscriptionStatus) CanPause() bool {
	return s == StatusActive || s == StatusOnTrial
}

func (s SubscriptionStatus) IsCancelled() bool {
	return s == StatusCancelled
}

func (s SubscriptionStatus) IsExpired() bool {
	return s == StatusExpired
}

var ValidStatuses = map[SubscriptionStatus]bool{
	StatusOnTrial:   true,
	StatusActive:    true,
	StatusPastDue:   true,
	StatusPaused:    true,
	StatusCancelled: true,
	StatusExpired:   true,
}
