package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appsubscription "github.com/orris-inc/entitlements/internal/application/subscription"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/shared/biztime"
	"github.com/orris-inc/entitlements/internal/shared/constants"
	"github.com/orris-inc/entitlements/internal/shared/errors"
	"github.com/orris-inc/entitlements/internal/shared/logger"
	"github.com/orris-inc/entitlements/internal/shared/utils"
)

// SubscriberHandler serves /subscribers/:type/:id. Feature and module routes
// read the slot from the "subscription" query parameter.
type SubscriberHandler struct {
	lifecycle subscriptionLifecycle
	features  featureEntitlements
	modules   moduleEntitlements
	logger    logger.Interface
}

func NewSubscriberHandler(
	lifecycle subscriptionLifecycle,
	features featureEntitlements,
	modules moduleEntitlements,
	logger logger.Interface,
) *SubscriberHandler {
	return &SubscriberHandler{
		lifecycle: lifecycle,
		features:  features,
		modules:   modules,
		logger:    logger,
	}
}

type CreateSubscriptionRequest struct {
	Plan      string                 `json:"plan" binding:"required"`
	Name      string                 `json:"name" binding:"omitempty,max=50"`
	TrialDays *int                   `json:"trial_days" binding:"omitempty,gte=0"`
	EndsAt    *time.Time             `json:"ends_at"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type CancelSubscriptionRequest struct {
	Immediate bool `json:"immediate"`
}

type ChangePlanRequest struct {
	Plan         string     `json:"plan" binding:"required"`
	Immediate    bool       `json:"immediate"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

type ConsumeRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

func subscriberFromPath(c *gin.Context) (subscription.SubscriberRef, bool) {
	ref, err := subscription.NewSubscriberRef(c.Param("type"), c.Param("id"))
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid subscriber", err.Error()))
		return subscription.SubscriberRef{}, false
	}
	return ref, true
}

func slotFromQuery(c *gin.Context) string {
	if name := c.Query("subscription"); name != "" {
		return name
	}
	return constants.DefaultSubscriptionName
}

// current resolves the subscription in the slot and writes a 404 when the
// slot is empty.
func (h *SubscriberHandler) current(c *gin.Context, name string) (*subscription.Subscription, bool) {
	owner, ok := subscriberFromPath(c)
	if !ok {
		return nil, false
	}
	sub, err := h.lifecycle.Current(c.Request.Context(), owner, name)
	if err != nil {
		h.logger.Errorw("failed to resolve subscription", "subscriber", owner.String(), "name", name, "error", err)
		utils.ErrorResponseWithError(c, err)
		return nil, false
	}
	if sub == nil {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("subscription not found", owner.String()+"/"+name))
		return nil, false
	}
	return sub, true
}

// ListSubscriptions handles GET /subscribers/:type/:id/subscriptions
func (h *SubscriberHandler) ListSubscriptions(c *gin.Context) {
	owner, ok := subscriberFromPath(c)
	if !ok {
		return
	}
	subs, err := h.lifecycle.List(c.Request.Context(), owner)
	if err != nil {
		h.logger.Errorw("failed to list subscriptions", "subscriber", owner.String(), "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", toSubscriptionResponses(subs, biztime.NowUTC()))
}

// CreateSubscription handles POST /subscribers/:type/:id/subscriptions
func (h *SubscriberHandler) CreateSubscription(c *gin.Context) {
	owner, ok := subscriberFromPath(c)
	if !ok {
		return
	}
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	sub, err := h.lifecycle.Create(c.Request.Context(), owner, req.Plan, appsubscription.CreateOptions{
		Name:      req.Name,
		TrialDays: req.TrialDays,
		EndsAt:    req.EndsAt,
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.logger.Warnw("failed to create subscription", "subscriber", owner.String(), "plan", req.Plan, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "subscription created", toSubscriptionResponse(sub, biztime.NowUTC()))
}

// GetSubscription handles GET /subscribers/:type/:id/subscriptions/:name
func (h *SubscriberHandler) GetSubscription(c *gin.Context) {
	sub, ok := h.current(c, c.Param("name"))
	if !ok {
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", toSubscriptionResponse(sub, biztime.NowUTC()))
}

// CancelSubscription handles POST /subscribers/:type/:id/subscriptions/:name/cancel
func (h *SubscriberHandler) CancelSubscription(c *gin.Context) {
	var req CancelSubscriptionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request body", err.Error()))
			return
		}
	}
	sub, ok := h.current(c, c.Param("name"))
	if !ok {
		return
	}

	sub, err := h.lifecycle.Cancel(c.Request.Context(), sub.ID(), req.Immediate)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "subscription cancelled", toSubscriptionResponse(sub, biztime.NowUTC()))
}

// ResumeSubscription handles POST /subscribers/:type/:id/subscriptions/:name/resume
func (h *SubscriberHandler) ResumeSubscription(c *gin.Context) {
	sub, ok := h.current(c, c.Param("name"))
	if !ok {
		return
	}
	sub, err := h.lifecycle.Resume(c.Request.Context(), sub.ID())
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "subscription resumed", toSubscriptionResponse(sub, biztime.NowUTC()))
}

// ChangePlan handles POST /subscribers/:type/:id/subscriptions/:name/change-plan
func (h *SubscriberHandler) ChangePlan(c *gin.Context) {
	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}
	sub, ok := h.current(c, c.Param("name"))
	if !ok {
		return
	}

	change, err := h.lifecycle.ChangePlan(c.Request.Context(), sub.ID(), req.Plan, req.Immediate, req.ScheduledFor)
	if err != nil {
		h.logger.Warnw("failed to change plan", "subscription_id", sub.ID(), "plan", req.Plan, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "plan change recorded", change.Snapshot())
}

// ListChanges handles GET /subscribers/:type/:id/subscriptions/:name/changes
func (h *SubscriberHandler) ListChanges(c *gin.Context) {
	sub, ok := h.current(c, c.Param("name"))
	if !ok {
		return
	}
	changes, err := h.lifecycle.Changes(c.Request.Context(), sub.ID())
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", toChangeResponses(changes))
}

// ListFeatures handles GET /subscribers/:type/:id/features
func (h *SubscriberHandler) ListFeatures(c *gin.Context) {
	sub, ok := h.current(c, slotFromQuery(c))
	if !ok {
		return
	}
	summary, err := h.features.Summary(c.Request.Context(), sub)
	if err != nil {
		h.logger.Errorw("failed to summarize features", "subscription_id", sub.ID(), "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", summary)
}

// GetFeature handles GET /subscribers/:type/:id/features/:feature
// A feature outside the plan answers has_access=false rather than 404.
func (h *SubscriberHandler) GetFeature(c *gin.Context) {
	sub, ok := h.current(c, slotFromQuery(c))
	if !ok {
		return
	}
	ctx := c.Request.Context()
	feature := c.Param("feature")

	resp := FeatureAccessResponse{
		Feature:   feature,
		HasAccess: h.features.HasAccess(ctx, sub, feature),
	}
	if resp.HasAccess {
		var err error
		if resp.Value, err = h.features.FeatureValue(ctx, sub, feature); err != nil {
			utils.ErrorResponseWithError(c, err)
			return
		}
		if resp.Remaining, err = h.features.Remaining(ctx, sub, feature); err != nil {
			utils.ErrorResponseWithError(c, err)
			return
		}
	}
	utils.SuccessResponse(c, http.StatusOK, "", resp)
}

// ConsumeFeature handles POST /subscribers/:type/:id/features/:feature/consume
// A refused consume is not an error: the body reports consumed=false.
func (h *SubscriberHandler) ConsumeFeature(c *gin.Context) {
	var req ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}
	sub, ok := h.current(c, slotFromQuery(c))
	if !ok {
		return
	}
	ctx := c.Request.Context()
	feature := c.Param("feature")

	consumed, err := h.features.Consume(ctx, sub, feature, req.Amount)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	remaining, err := h.features.Remaining(ctx, sub, feature)
	if err != nil {
		remaining = 0
	}
	utils.SuccessResponse(c, http.StatusOK, "", ConsumeResponse{
		Feature:   feature,
		Consumed:  consumed,
		Remaining: remaining,
	})
}

// FeatureHistory handles GET /subscribers/:type/:id/features/:feature/history
func (h *SubscriberHandler) FeatureHistory(c *gin.Context) {
	sub, ok := h.current(c, slotFromQuery(c))
	if !ok {
		return
	}
	windows, err := h.features.History(c.Request.Context(), sub, c.Param("feature"))
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", toUsageWindowResponses(windows))
}

// ListModules handles GET /subscribers/:type/:id/modules
func (h *SubscriberHandler) ListModules(c *gin.Context) {
	sub, ok := h.current(c, slotFromQuery(c))
	if !ok {
		return
	}
	modules, err := h.modules.ActiveModules(c.Request.Context(), sub)
	if err != nil {
		h.logger.Errorw("failed to list active modules", "subscription_id", sub.ID(), "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", toModuleSnapshots(modules))
}

// GetModule handles GET /subscribers/:type/:id/modules/:module
func (h *SubscriberHandler) GetModule(c *gin.Context) {
	sub, ok := h.current(c, slotFromQuery(c))
	if !ok {
		return
	}
	module := c.Param("module")
	utils.SuccessResponse(c, http.StatusOK, "", ModuleAccessResponse{
		Module:    module,
		HasAccess: h.modules.HasAccess(c.Request.Context(), sub, module),
	})
}
