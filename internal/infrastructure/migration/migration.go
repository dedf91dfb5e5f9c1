// Package migration creates and evolves the entitlement schema.
package migration

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// Strategy is one way of applying the schema.
type Strategy interface {
	Name() string
	Up(db *gorm.DB) error
	Down(db *gorm.DB, steps int) error
	Version(db *gorm.DB) (int64, error)
	Status(db *gorm.DB) error
}

// Manager runs migrations with the strategy that fits the database driver.
type Manager struct {
	strategy Strategy
	logger   logger.Interface
}

// NewManager picks goose scripts for MySQL and GORM AutoMigrate for SQLite.
func NewManager(driver string, log logger.Interface) (*Manager, error) {
	var strategy Strategy
	switch driver {
	case "", "mysql":
		strategy = NewGooseStrategy(log)
	case "sqlite":
		strategy = NewGormAutoMigrateStrategy(log)
	default:
		return nil, fmt.Errorf("no migration strategy for driver %q", driver)
	}
	return NewManagerWithStrategy(strategy, log), nil
}

func NewManagerWithStrategy(strategy Strategy, log logger.Interface) *Manager {
	return &Manager{
		strategy: strategy,
		logger:   log.With("component", "migration.manager"),
	}
}

func (m *Manager) Strategy() Strategy {
	return m.strategy
}

// Up brings the schema to the latest version.
func (m *Manager) Up(db *gorm.DB) error {
	m.logger.Infow("starting database migration", "strategy", m.strategy.Name())

	if err := m.strategy.Up(db); err != nil {
		m.logger.Errorw("migration failed", "strategy", m.strategy.Name(), "error", err)
		return fmt.Errorf("migration failed with strategy %s: %w", m.strategy.Name(), err)
	}

	m.logger.Infow("database migration completed successfully", "strategy", m.strategy.Name())
	return nil
}

// Down rolls back the given number of versions.
func (m *Manager) Down(db *gorm.DB, steps int) error {
	if steps < 1 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	if err := m.strategy.Down(db, steps); err != nil {
		m.logger.Errorw("down migration failed", "strategy", m.strategy.Name(), "error", err)
		return fmt.Errorf("down migration failed with strategy %s: %w", m.strategy.Name(), err)
	}
	return nil
}

func (m *Manager) Version(db *gorm.DB) (int64, error) {
	return m.strategy.Version(db)
}

func (m *Manager) Status(db *gorm.DB) error {
	return m.strategy.Status(db)
}
