package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	vo "github.com/orris-inc/entitlements/internal/domain/catalog/valueobjects"
	"github.com/orris-inc/entitlements/internal/shared/id"
)

// Plan is a purchasable bundle of feature overrides and module enablements.
type Plan struct {
	id            uint
	uuid          string
	name          string
	slug          string
	description   string
	price         decimal.Decimal
	currency      string
	interval      vo.BillingInterval
	intervalCount int
	trialDays     int
	graceDays     int
	isActive      bool
	tier          *string
	metadata      map[string]interface{}
	createdAt     time.Time
	updatedAt     time.Time
}

// PlanParams carries the mutable attributes of a plan.
type PlanParams struct {
	Name          string
	Slug          string
	Description   string
	Price         decimal.Decimal
	Currency      string
	Interval      vo.BillingInterval
	IntervalCount int
	TrialDays     int
	GraceDays     int
	Tier          *string
	Metadata      map[string]interface{}
}

func (p PlanParams) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("plan name is required")
	}
	if strings.TrimSpace(p.Slug) == "" {
		return fmt.Errorf("plan slug is required")
	}
	if p.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if len(p.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code: %q", p.Currency)
	}
	if !p.Interval.IsValid() {
		return fmt.Errorf("invalid billing interval: %s", p.Interval)
	}
	if p.IntervalCount < 1 {
		return fmt.Errorf("interval count must be at least 1")
	}
	if p.TrialDays < 0 || p.GraceDays < 0 {
		return fmt.Errorf("trial and grace days cannot be negative")
	}
	return nil
}

// NewPlan creates an active plan.
func NewPlan(params PlanParams) (*Plan, error) {
	if params.IntervalCount == 0 {
		params.IntervalCount = 1
	}
	params.Currency = strings.ToUpper(params.Currency)
	if err := params.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Plan{
		uuid:      id.New(),
		isActive:  true,
		createdAt: now,
		updatedAt: now,
	}
	p.apply(params)
	return p, nil
}

// ReconstructPlan rebuilds a plan from persistence.
func ReconstructPlan(
	id uint,
	uuid string,
	params PlanParams,
	isActive bool,
	createdAt, updatedAt time.Time,
) (*Plan, error) {
	if id == 0 {
		return nil, fmt.Errorf("plan ID cannot be zero")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	p := &Plan{
		id:        id,
		uuid:      uuid,
		isActive:  isActive,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
	p.apply(params)
	return p, nil
}

func (p *Plan) apply(params PlanParams) {
	p.name = params.Name
	p.slug = params.Slug
	p.description = params.Description
	p.price = params.Price
	p.currency = params.Currency
	p.interval = params.Interval
	p.intervalCount = params.IntervalCount
	p.trialDays = params.TrialDays
	p.graceDays = params.GraceDays
	p.tier = params.Tier
	p.metadata = params.Metadata
	if p.metadata == nil {
		p.metadata = make(map[string]interface{})
	}
}

func (p *Plan) ID() uint { return p.id }
func (p *Plan) UUID() string { return p.uuid }
func (p *Plan) Name() string { return p.name }
func (p *Plan) Slug() string { return p.slug }
func (p *Plan) Description() string { return p.description }
func (p *Plan) Price() decimal.Decimal { return p.price }
func (p *Plan) Currency() string { return p.currency }
func (p *Plan) Interval() vo.BillingInterval { return p.interval }
func (p *Plan) IntervalCount() int { return p.intervalCount }
func (p *Plan) TrialDays() int { return p.trialDays }
func (p *Plan) GraceDays() int { return p.graceDays }
func (p *Plan) IsActive() bool { return p.isActive }
func (p *Plan) Tier() *string { return p.tier }
func (p *Plan) Metadata() map[string]interface{} { return p.metadata }
func (p *Plan) CreatedAt() time.Time { return p.createdAt }
func (p *Plan) UpdatedAt() time.Time { return p.updatedAt }

// SetID sets the plan ID (only for persistence layer use)
func (p *Plan) SetID(id uint) error {
	if p.id != 0 {
		return fmt.Errorf("plan ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("plan ID cannot be zero")
	}
	p.id = id
	return nil
}

// Update replaces the plan's attributes. The slug is the business key and
// cannot change.
func (p *Plan) Update(params PlanParams) error {
	if params.Slug != "" && params.Slug != p.slug {
		return ErrSlugImmutable
	}
	params.Slug = p.slug
	params.Currency = strings.ToUpper(params.Currency)
	if err := params.validate(); err != nil {
		return err
	}
	p.apply(params)
	p.updatedAt = time.Now().UTC()
	return nil
}

func (p *Plan) Activate() {
	p.isActive = true
	p.updatedAt = time.Now().UTC()
}

func (p *Plan) Deactivate() {
	p.isActive = false
	p.updatedAt = time.Now().UTC()
}

// PeriodEnd returns the end of one billing period starting at start.
func (p *Plan) PeriodEnd(start time.Time) time.Time {
	return p.interval.AddTo(start, p.intervalCount)
}

func (p *Plan) Snapshot() PlanSnapshot {
	return PlanSnapshot{
		ID:            p.id,
		UUID:          p.uuid,
		Slug:          p.slug,
		Price:         p.price.StringFixed(2),
		Currency:      p.currency,
		Interval:      p.interval.String(),
		IntervalCount: p.intervalCount,
	}
}

// PlanSnapshot is an immutable copy of a plan.
type PlanSnapshot struct {
	ID            uint   `json:"id"`
	UUID          string `json:"uuid"`
	Slug          string `json:"slug"`
	Price         string `json:"price"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval"`
	IntervalCount int    `json:"interval_count"`
}
