package handlers

import (
	"time"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
)

// SubscriptionResponse is the public view of a subscription.
type SubscriptionResponse struct {
	subscription.Snapshot
	Usable    bool      `json:"usable"`
	OnTrial   bool      `json:"on_trial"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

func toSubscriptionResponse(sub *subscription.Subscription, now time.Time) *SubscriptionResponse {
	if sub == nil {
		return nil
	}
	return &SubscriptionResponse{
		Snapshot:  sub.Snapshot(),
		Usable:    sub.IsUsable(),
		OnTrial:   sub.OnTrial(now),
		Version:   sub.Version(),
		CreatedAt: sub.CreatedAt(),
	}
}

func toSubscriptionResponses(subs []*subscription.Subscription, now time.Time) []*SubscriptionResponse {
	out := make([]*SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toSubscriptionResponse(sub, now))
	}
	return out
}

func toChangeResponses(changes []*subscription.Change) []subscription.ChangeSnapshot {
	out := make([]subscription.ChangeSnapshot, 0, len(changes))
	for _, change := range changes {
		out = append(out, change.Snapshot())
	}
	return out
}

// FeatureAccessResponse answers a single feature question.
type FeatureAccessResponse struct {
	Feature   string `json:"feature"`
	HasAccess bool   `json:"has_access"`
	Value     int64  `json:"value"`
	Remaining int64  `json:"remaining"`
}

// ConsumeResponse reports the outcome of a consume call.
type ConsumeResponse struct {
	Feature   string `json:"feature"`
	Consumed  bool   `json:"consumed"`
	Remaining int64  `json:"remaining"`
}

// UsageWindowResponse is one usage window of a feature.
type UsageWindowResponse struct {
	Used       int64      `json:"used"`
	Limit      int64      `json:"limit"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toUsageWindowResponses(windows []*entitlement.Usage) []UsageWindowResponse {
	out := make([]UsageWindowResponse, 0, len(windows))
	for _, w := range windows {
		out = append(out, UsageWindowResponse{
			Used:       w.Used(),
			Limit:      w.Limit(),
			ValidUntil: w.ValidUntil(),
			ResetAt:    w.ResetAt(),
			CreatedAt:  w.CreatedAt(),
		})
	}
	return out
}

// ModuleAccessResponse answers a single module question.
type ModuleAccessResponse struct {
	Module    string `json:"module"`
	HasAccess bool   `json:"has_access"`
}

func toModuleSnapshots(modules []*catalog.Module) []catalog.ModuleSnapshot {
	out := make([]catalog.ModuleSnapshot, 0, len(modules))
	for _, m := range modules {
		out = append(out, m.Snapshot())
	}
	return out
}

// PlanResponse is the public view of a plan. Features maps each feature slug
// to its value on the plan; nil means the feature default applies.
type PlanResponse struct {
	catalog.PlanSnapshot
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	TrialDays   int               `json:"trial_days"`
	GraceDays   int               `json:"grace_days"`
	Tier        *string           `json:"tier,omitempty"`
	Features    map[string]*int64 `json:"features,omitempty"`
	Modules     []string          `json:"modules,omitempty"`
}

func toPlanResponse(plan *catalog.Plan) *PlanResponse {
	return &PlanResponse{
		PlanSnapshot: plan.Snapshot(),
		Name:         plan.Name(),
		Description:  plan.Description(),
		TrialDays:    plan.TrialDays(),
		GraceDays:    plan.GraceDays(),
		Tier:         plan.Tier(),
	}
}
