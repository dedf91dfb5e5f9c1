package catalog

import "context"

// PlanRepository persists plans and their feature/module links.
// Lookups return (nil, nil) when the record does not exist.
type PlanRepository interface {
	Create(ctx context.Context, plan *Plan) error
	Update(ctx context.Context, plan *Plan) error
	GetByID(ctx context.Context, id uint) (*Plan, error)
	GetBySlug(ctx context.Context, slug string) (*Plan, error)
	List(ctx context.Context, activeOnly bool) ([]*Plan, error)
	// Delete soft-deletes the plan. Fails with ErrPlanInUse while live
	// subscriptions reference it.
	Delete(ctx context.Context, id uint) error

	UpsertFeature(ctx context.Context, link *PlanFeature) error
	RemoveFeature(ctx context.Context, planID, featureID uint) error
	GetFeature(ctx context.Context, planID, featureID uint) (*PlanFeature, error)
	ListFeatures(ctx context.Context, planID uint) ([]*PlanFeature, error)

	UpsertModule(ctx context.Context, link *PlanModule) error
	GetModule(ctx context.Context, planID, moduleID uint) (*PlanModule, error)
	ListModules(ctx context.Context, planID uint) ([]*PlanModule, error)
}

type FeatureRepository interface {
	Create(ctx context.Context, feature *Feature) error
	Update(ctx context.Context, feature *Feature) error
	GetByID(ctx context.Context, id uint) (*Feature, error)
	GetBySlug(ctx context.Context, slug string) (*Feature, error)
	GetByIDs(ctx context.Context, ids []uint) ([]*Feature, error)
	ListByModule(ctx context.Context, moduleID uint) ([]*Feature, error)
	List(ctx context.Context) ([]*Feature, error)
	Delete(ctx context.Context, id uint) error
}

type ModuleRepository interface {
	Create(ctx context.Context, module *Module) error
	Update(ctx context.Context, module *Module) error
	GetByID(ctx context.Context, id uint) (*Module, error)
	GetBySlug(ctx context.Context, slug string) (*Module, error)
	GetByIDs(ctx context.Context, ids []uint) ([]*Module, error)
	List(ctx context.Context) ([]*Module, error)
	// Delete removes the module and its descendants. Features owned by a
	// removed module are detached, not deleted.
	Delete(ctx context.Context, id uint) error
}
