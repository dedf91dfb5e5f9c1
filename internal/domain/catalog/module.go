package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/orris-inc/entitlements/internal/shared/id"
)

// Module groups features. Modules form a tree through parentID; plans enable
// modules and subscriptions activate them.
type Module struct {
	id          uint
	uuid        string
	parentID    *uint
	name        string
	slug        string
	description string
	isActive    bool
	sortOrder   int
	metadata    map[string]interface{}
	createdAt   time.Time
	updatedAt   time.Time
}

type ModuleParams struct {
	ParentID    *uint
	Name        string
	Slug        string
	Description string
	SortOrder   int
	Metadata    map[string]interface{}
}

func (p ModuleParams) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("module name is required")
	}
	if strings.TrimSpace(p.Slug) == "" {
		return fmt.Errorf("module slug is required")
	}
	return nil
}

func NewModule(params ModuleParams) (*Module, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	m := &Module{
		uuid:      id.New(),
		isActive:  true,
		createdAt: now,
		updatedAt: now,
	}
	m.apply(params)
	return m, nil
}

func ReconstructModule(
	id uint,
	uuid string,
	params ModuleParams,
	isActive bool,
	createdAt, updatedAt time.Time,
) (*Module, error) {
	if id == 0 {
		return nil, fmt.Errorf("module ID cannot be zero")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	m := &Module{
		id:        id,
		uuid:      uuid,
		isActive:  isActive,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
	m.apply(params)
	return m, nil
}

func (m *Module) apply(params ModuleParams) {
	m.parentID = params.ParentID
	m.name = params.Name
	m.slug = params.Slug
	m.description = params.Description
	m.sortOrder = params.SortOrder
	m.metadata = params.Metadata
	if m.metadata == nil {
		m.metadata = make(map[string]interface{})
	}
}

func (m *Module) ID() uint { return m.id }
func (m *Module) UUID() string { return m.uuid }
func (m *Module) ParentID() *uint { return m.parentID }
func (m *Module) Name() string { return m.name }
func (m *Module) Slug() string { return m.slug }
func (m *Module) Description() string { return m.description }
func (m *Module) IsActive() bool { return m.isActive }
func (m *Module) SortOrder() int { return m.sortOrder }
func (m *Module) Metadata() map[string]interface{} { return m.metadata }
func (m *Module) CreatedAt() time.Time { return m.createdAt }
func (m *Module) UpdatedAt() time.Time { return m.updatedAt }

func (m *Module) SetID(id uint) error {
	if m.id != 0 {
		return fmt.Errorf("module ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("module ID cannot be zero")
	}
	m.id = id
	return nil
}

// SetParent moves the module under parentID. A module cannot be its own parent.
func (m *Module) SetParent(parentID *uint) error {
	if parentID != nil && m.id != 0 && *parentID == m.id {
		return fmt.Errorf("module cannot be its own parent")
	}
	m.parentID = parentID
	m.updatedAt = time.Now().UTC()
	return nil
}

func (m *Module) Activate() {
	m.isActive = true
	m.updatedAt = time.Now().UTC()
}

func (m *Module) Deactivate() {
	m.isActive = false
	m.updatedAt = time.Now().UTC()
}

func (m *Module) Snapshot() ModuleSnapshot {
	return ModuleSnapshot{
		ID:       m.id,
		UUID:     m.uuid,
		Slug:     m.slug,
		ParentID: m.parentID,
	}
}

// ModuleSnapshot is an immutable copy of a module.
type ModuleSnapshot struct {
	ID       uint   `json:"id"`
	UUID     string `json:"uuid"`
	Slug     string `json:"slug"`
	ParentID *uint  `json:"parent_id,omitempty"`
}
