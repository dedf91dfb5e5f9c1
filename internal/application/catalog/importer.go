package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	vo "github.com/orris-inc/entitlements/internal/domain/catalog/valueobjects"
	"github.com/orris-inc/entitlements/internal/shared/config"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/errors"
	"github.com/orris-inc/entitlements/internal/shared/logger"
	"github.com/orris-inc/entitlements/internal/shared/utils"
)

// Document is the YAML layout of a catalog file. Modules are imported first,
// then features, then plans with their links.
type Document struct {
	Modules  []ModuleSpec  `yaml:"modules" validate:"dive"`
	Features []FeatureSpec `yaml:"features" validate:"dive"`
	Plans    []PlanSpec    `yaml:"plans" validate:"dive"`
}

type ModuleSpec struct {
	Slug        string `yaml:"slug" validate:"required,slug"`
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	Parent      string `yaml:"parent" validate:"omitempty,slug"`
	SortOrder   int    `yaml:"sort_order"`
}

type FeatureSpec struct {
	Slug         string `yaml:"slug" validate:"required,slug"`
	Name         string `yaml:"name" validate:"required"`
	Description  string `yaml:"description"`
	Type         string `yaml:"type" validate:"required,oneof=boolean limit consumable"`
	Module       string `yaml:"module" validate:"omitempty,slug"`
	DefaultValue *int64 `yaml:"default_value" validate:"omitempty,gte=0"`
	ResetPeriod  string `yaml:"reset_period" validate:"omitempty,oneof=never daily monthly yearly"`
}

type PlanSpec struct {
	Slug          string `yaml:"slug" validate:"required,slug"`
	Name          string `yaml:"name" validate:"required"`
	Description   string `yaml:"description"`
	Price         string `yaml:"price" validate:"required"`
	Currency      string `yaml:"currency" validate:"omitempty,len=3"`
	Interval      string `yaml:"interval" validate:"omitempty,oneof=daily weekly monthly yearly"`
	IntervalCount int    `yaml:"interval_count" validate:"gte=0"`
	TrialDays     *int   `yaml:"trial_days" validate:"omitempty,gte=0"`
	GraceDays     *int   `yaml:"grace_days" validate:"omitempty,gte=0"`
	Tier          string `yaml:"tier"`
	Active        *bool  `yaml:"active"`
	// Features maps feature slugs to the plan value; null defers to the
	// feature default.
	Features map[string]*int64 `yaml:"features"`
	Modules  []string          `yaml:"modules" validate:"dive,slug"`
}

// Result counts what an import touched.
type Result struct {
	ModulesCreated  int `json:"modules_created"`
	ModulesUpdated  int `json:"modules_updated"`
	FeaturesCreated int `json:"features_created"`
	FeaturesUpdated int `json:"features_updated"`
	PlansCreated    int `json:"plans_created"`
	PlansUpdated    int `json:"plans_updated"`
}

// Defaults fill in what a catalog entry leaves out. A value written in the
// document, zero included, always wins.
type Defaults struct {
	Currency     string
	TrialDays    int
	GraceDays    int
	FeatureValue int64
}

// DefaultsFromConfig takes the catalog defaults from the subscription options.
func DefaultsFromConfig(cfg config.SubscriptionConfig) Defaults {
	return Defaults{
		Currency:     cfg.DefaultCurrency,
		TrialDays:    cfg.DefaultTrialDays,
		GraceDays:    cfg.DefaultGraceDays,
		FeatureValue: cfg.DefaultFeatureValue,
	}
}

// Importer loads a catalog document into the store. Records are matched by
// slug, so running the same file twice changes nothing.
type Importer struct {
	plans     catalog.PlanRepository
	features  catalog.FeatureRepository
	modules   catalog.ModuleRepository
	txManager db.Transactor
	defaults  Defaults
	logger    logger.Interface
}

func NewImporter(
	plans catalog.PlanRepository,
	features catalog.FeatureRepository,
	modules catalog.ModuleRepository,
	txManager db.Transactor,
	defaults Defaults,
	logger logger.Interface,
) *Importer {
	return &Importer{
		plans:     plans,
		features:  features,
		modules:   modules,
		txManager: txManager,
		defaults:  defaults,
		logger:    logger,
	}
}

// Parse decodes and validates a catalog document.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, errors.NewValidationError("invalid catalog document", err.Error())
	}
	if err := utils.ValidateStruct(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Import applies the document in a single transaction.
func (i *Importer) Import(ctx context.Context, doc *Document) (Result, error) {
	var result Result
	err := i.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		for _, spec := range doc.Modules {
			if err := i.importModule(txCtx, spec, &result); err != nil {
				return err
			}
		}
		for _, spec := range doc.Features {
			if err := i.importFeature(txCtx, spec, &result); err != nil {
				return err
			}
		}
		for _, spec := range doc.Plans {
			if err := i.importPlan(txCtx, spec, &result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		i.logger.Errorw("catalog import failed", "error", err)
		return Result{}, err
	}

	i.logger.Infow("catalog imported",
		"modules_created", result.ModulesCreated,
		"modules_updated", result.ModulesUpdated,
		"features_created", result.FeaturesCreated,
		"features_updated", result.FeaturesUpdated,
		"plans_created", result.PlansCreated,
		"plans_updated", result.PlansUpdated,
	)
	return result, nil
}

func (i *Importer) importModule(ctx context.Context, spec ModuleSpec, result *Result) error {
	parentID, err := i.moduleID(ctx, spec.Parent)
	if err != nil {
		return err
	}

	existing, err := i.modules.GetBySlug(ctx, spec.Slug)
	if err != nil {
		return fmt.Errorf("failed to get module %s: %w", spec.Slug, err)
	}
	if existing != nil {
		if err := existing.SetParent(parentID); err != nil {
			return errors.NewValidationError("invalid module", fmt.Sprintf("%s: %v", spec.Slug, err))
		}
		if err := i.modules.Update(ctx, existing); err != nil {
			return fmt.Errorf("failed to update module %s: %w", spec.Slug, err)
		}
		result.ModulesUpdated++
		return nil
	}

	module, err := catalog.NewModule(catalog.ModuleParams{
		ParentID:    parentID,
		Name:        spec.Name,
		Slug:        spec.Slug,
		Description: spec.Description,
		SortOrder:   spec.SortOrder,
	})
	if err != nil {
		return errors.NewValidationError("invalid module", fmt.Sprintf("%s: %v", spec.Slug, err))
	}
	if err := i.modules.Create(ctx, module); err != nil {
		return fmt.Errorf("failed to create module %s: %w", spec.Slug, err)
	}
	result.ModulesCreated++
	return nil
}

func (i *Importer) importFeature(ctx context.Context, spec FeatureSpec, result *Result) error {
	moduleID, err := i.moduleID(ctx, spec.Module)
	if err != nil {
		return err
	}
	reset := vo.ResetNever
	if spec.ResetPeriod != "" {
		reset = vo.ResetPeriod(spec.ResetPeriod)
	}
	params := catalog.FeatureParams{
		ModuleID:     moduleID,
		Name:         spec.Name,
		Slug:         spec.Slug,
		Description:  spec.Description,
		Type:         vo.FeatureType(spec.Type),
		DefaultValue: valueOr(spec.DefaultValue, i.defaults.FeatureValue),
		ResetPeriod:  reset,
	}

	existing, err := i.features.GetBySlug(ctx, spec.Slug)
	if err != nil {
		return fmt.Errorf("failed to get feature %s: %w", spec.Slug, err)
	}
	if existing != nil {
		if err := existing.Update(params); err != nil {
			return errors.NewValidationError("invalid feature", fmt.Sprintf("%s: %v", spec.Slug, err))
		}
		if err := i.features.Update(ctx, existing); err != nil {
			return fmt.Errorf("failed to update feature %s: %w", spec.Slug, err)
		}
		result.FeaturesUpdated++
		return nil
	}

	feature, err := catalog.NewFeature(params)
	if err != nil {
		return errors.NewValidationError("invalid feature", fmt.Sprintf("%s: %v", spec.Slug, err))
	}
	if err := i.features.Create(ctx, feature); err != nil {
		return fmt.Errorf("failed to create feature %s: %w", spec.Slug, err)
	}
	result.FeaturesCreated++
	return nil
}

func (i *Importer) importPlan(ctx context.Context, spec PlanSpec, result *Result) error {
	price, err := decimal.NewFromString(spec.Price)
	if err != nil {
		return errors.NewValidationError("invalid plan price", fmt.Sprintf("%s: %s", spec.Slug, spec.Price))
	}
	params := catalog.PlanParams{
		Name:          spec.Name,
		Slug:          spec.Slug,
		Description:   spec.Description,
		Price:         price,
		Currency:      spec.Currency,
		Interval:      vo.BillingInterval(spec.Interval),
		IntervalCount: spec.IntervalCount,
		TrialDays:     valueOr(spec.TrialDays, i.defaults.TrialDays),
		GraceDays:     valueOr(spec.GraceDays, i.defaults.GraceDays),
	}
	if params.Currency == "" {
		params.Currency = i.defaults.Currency
	}
	if params.Interval == "" {
		params.Interval = vo.IntervalMonthly
	}
	if params.IntervalCount == 0 {
		params.IntervalCount = 1
	}
	if spec.Tier != "" {
		tier := spec.Tier
		params.Tier = &tier
	}

	plan, err := i.plans.GetBySlug(ctx, spec.Slug)
	if err != nil {
		return fmt.Errorf("failed to get plan %s: %w", spec.Slug, err)
	}
	if plan != nil {
		if err := plan.Update(params); err != nil {
			return errors.NewValidationError("invalid plan", fmt.Sprintf("%s: %v", spec.Slug, err))
		}
		result.PlansUpdated++
	} else {
		plan, err = catalog.NewPlan(params)
		if err != nil {
			return errors.NewValidationError("invalid plan", fmt.Sprintf("%s: %v", spec.Slug, err))
		}
		result.PlansCreated++
	}
	if spec.Active != nil && !*spec.Active {
		plan.Deactivate()
	} else {
		plan.Activate()
	}

	if plan.ID() == 0 {
		err = i.plans.Create(ctx, plan)
	} else {
		err = i.plans.Update(ctx, plan)
	}
	if err != nil {
		return fmt.Errorf("failed to save plan %s: %w", spec.Slug, err)
	}

	for slug, value := range spec.Features {
		feature, err := i.features.GetBySlug(ctx, slug)
		if err != nil {
			return fmt.Errorf("failed to get feature %s: %w", slug, err)
		}
		if feature == nil {
			return errors.NewNotFoundError("feature not found", fmt.Sprintf("plan=%s feature=%s", spec.Slug, slug)).
				WithCause(catalog.ErrFeatureNotFound)
		}
		if err := i.plans.UpsertFeature(ctx, &catalog.PlanFeature{PlanID: plan.ID(), FeatureID: feature.ID(), Value: value}); err != nil {
			return fmt.Errorf("failed to link feature %s to plan %s: %w", slug, spec.Slug, err)
		}
	}

	for _, slug := range spec.Modules {
		moduleID, err := i.moduleID(ctx, slug)
		if err != nil {
			return err
		}
		if err := i.plans.UpsertModule(ctx, &catalog.PlanModule{PlanID: plan.ID(), ModuleID: *moduleID, IsEnabled: true}); err != nil {
			return fmt.Errorf("failed to enable module %s on plan %s: %w", slug, spec.Slug, err)
		}
	}
	return nil
}

// moduleID resolves an optional module slug. Empty means no module.
func (i *Importer) moduleID(ctx context.Context, slug string) (*uint, error) {
	if slug == "" {
		return nil, nil
	}
	module, err := i.modules.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get module %s: %w", slug, err)
	}
	if module == nil {
		return nil, errors.NewNotFoundError("module not found", slug).WithCause(catalog.ErrModuleSlugNotFound(slug))
	}
	id := module.ID()
	return &id, nil
}

func valueOr[T any](v *T, fallback T) T {
	if v != nil {
		return *v
	}
	return fallback
}
