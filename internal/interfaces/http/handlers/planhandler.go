package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	"github.com/orris-inc/entitlements/internal/shared/errors"
	"github.com/orris-inc/entitlements/internal/shared/logger"
	"github.com/orris-inc/entitlements/internal/shared/utils"
)

type PlanHandler struct {
	plans    planLister
	features featureLookup
	modules  moduleLookup
	logger   logger.Interface
}

func NewPlanHandler(plans planLister, features featureLookup, modules moduleLookup, logger logger.Interface) *PlanHandler {
	return &PlanHandler{
		plans:    plans,
		features: features,
		modules:  modules,
		logger:   logger,
	}
}

// ListPlans handles GET /plans
// Inactive plans are listed only with ?all=true.
func (h *PlanHandler) ListPlans(c *gin.Context) {
	plans, err := h.plans.List(c.Request.Context(), c.Query("all") != "true")
	if err != nil {
		h.logger.Errorw("failed to list plans", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	out := make([]*PlanResponse, 0, len(plans))
	for _, plan := range plans {
		out = append(out, toPlanResponse(plan))
	}
	utils.SuccessResponse(c, http.StatusOK, "", out)
}

// GetPlan handles GET /plans/:slug
func (h *PlanHandler) GetPlan(c *gin.Context) {
	ctx := c.Request.Context()
	plan, err := h.plans.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	if plan == nil {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("plan not found", c.Param("slug")).WithCause(catalog.ErrPlanNotFound))
		return
	}

	resp := toPlanResponse(plan)

	featureLinks, err := h.plans.ListFeatures(ctx, plan.ID())
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	values := make(map[uint]*int64, len(featureLinks))
	featureIDs := make([]uint, 0, len(featureLinks))
	for _, link := range featureLinks {
		values[link.FeatureID] = link.Value
		featureIDs = append(featureIDs, link.FeatureID)
	}
	features, err := h.features.GetByIDs(ctx, featureIDs)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	resp.Features = make(map[string]*int64, len(features))
	for _, f := range features {
		resp.Features[f.Slug()] = values[f.ID()]
	}

	moduleLinks, err := h.plans.ListModules(ctx, plan.ID())
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	moduleIDs := make([]uint, 0, len(moduleLinks))
	for _, link := range moduleLinks {
		if link.IsEnabled {
			moduleIDs = append(moduleIDs, link.ModuleID)
		}
	}
	modules, err := h.modules.GetByIDs(ctx, moduleIDs)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	for _, m := range modules {
		resp.Modules = append(resp.Modules, m.Slug())
	}

	utils.SuccessResponse(c, http.StatusOK, "", resp)
}
