package migrate

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/infrastructure/database"
	"github.com/orris-inc/entitlements/internal/infrastructure/migration"
	"github.com/orris-inc/entitlements/internal/interfaces/cli/bootstrap"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

var (
	opts  bootstrap.Options
	steps int
)

// NewCommand returns the migrate command group: up, down and status.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the entitlement schema",
		Long: `Apply or roll back schema changes. MySQL databases are migrated with the
embedded goose scripts, SQLite databases directly from the persistence models.`,
	}
	opts.BindFlags(cmd)

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last applied versions",
		RunE: withManager(func(_ *cobra.Command, m *migration.Manager, db *gorm.DB, log logger.Interface) error {
			log.Infow("rolling back", "steps", steps, "strategy", m.Strategy().Name())
			return m.Down(db, steps)
		}),
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of versions to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending version",
			RunE: withManager(func(_ *cobra.Command, m *migration.Manager, db *gorm.DB, _ logger.Interface) error {
				return m.Up(db)
			}),
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Print the schema version",
			RunE:  withManager(printStatus),
		},
	)
	return cmd
}

type action func(cmd *cobra.Command, m *migration.Manager, db *gorm.DB, log logger.Interface) error

// withManager loads config, opens the database and hands both to fn. The
// connection is closed when fn returns.
func withManager(fn action) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		rt, err := bootstrap.Load(opts)
		if err != nil {
			return err
		}
		if err := rt.OpenDatabase(); err != nil {
			return err
		}
		defer database.Close()

		m, err := migration.NewManager(rt.Config.Database.Driver, rt.Logger)
		if err != nil {
			return err
		}
		if err := fn(cmd, m, database.Get(), rt.Logger); err != nil {
			return fmt.Errorf("migrate %s: %w", cmd.Name(), err)
		}
		return nil
	}
}

func printStatus(cmd *cobra.Command, m *migration.Manager, db *gorm.DB, _ logger.Interface) error {
	version, err := m.Version(db)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "environment: %s\n", opts.Env)
	fmt.Fprintf(out, "strategy:    %s\n", m.Strategy().Name())
	fmt.Fprintf(out, "version:     %d\n", version)
	return m.Status(db)
}
