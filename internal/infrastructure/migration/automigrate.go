package migration

import (
	"fmt"
	"slices"

	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/models"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// GormAutoMigrateStrategy derives the schema from the persistence models. It
// backs SQLite, where the MySQL scripts do not apply. Versions are not
// tracked: the schema is either complete (1) or not (0).
type GormAutoMigrateStrategy struct {
	logger logger.Interface
}

func NewGormAutoMigrateStrategy(log logger.Interface) *GormAutoMigrateStrategy {
	return &GormAutoMigrateStrategy{logger: log.With("component", "migration.gorm")}
}

func (s *GormAutoMigrateStrategy) Name() string {
	return "gorm_auto_migrate"
}

func (s *GormAutoMigrateStrategy) Up(db *gorm.DB) error {
	all := models.All()
	s.logger.Infow("starting GORM auto migration", "models_count", len(all))

	if err := db.AutoMigrate(all...); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	s.logger.Infow("GORM auto migration completed successfully")
	return nil
}

// Down drops every entitlement table. Steps is ignored since there is only
// one schema version.
func (s *GormAutoMigrateStrategy) Down(db *gorm.DB, _ int) error {
	all := models.All()
	slices.Reverse(all)
	if err := db.Migrator().DropTable(all...); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	s.logger.Infow("dropped entitlement tables", "count", len(all))
	return nil
}

func (s *GormAutoMigrateStrategy) Version(db *gorm.DB) (int64, error) {
	for _, model := range models.All() {
		if !db.Migrator().HasTable(model) {
			return 0, nil
		}
	}
	return 1, nil
}

func (s *GormAutoMigrateStrategy) Status(db *gorm.DB) error {
	stmt := &gorm.Statement{DB: db}
	for _, model := range models.All() {
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("failed to parse model: %w", err)
		}
		s.logger.Infow("table status",
			"table", stmt.Schema.Table,
			"exists", db.Migrator().HasTable(model))
	}
	return nil
}
