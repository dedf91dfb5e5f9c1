package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orris-inc/entitlements/internal/infrastructure/database"
	"github.com/orris-inc/entitlements/internal/interfaces/cli/bootstrap"
)

var (
	opts bootstrap.Options
	once bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the scheduled maintenance jobs",
		Long: `Run plan changes, trial ends, expiries and usage resets without serving HTTP.
Use this with "server --jobs=false" so only one process runs the jobs.`,
		RunE: run,
	}

	opts.BindFlags(cmd)
	cmd.Flags().BoolVar(&once, "once", false, "Run every job once and exit")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap.Load(opts)
	if err != nil {
		return err
	}
	log := rt.Logger

	if err := rt.OpenDatabase(); err != nil {
		return err
	}
	defer database.Close()

	container, err := rt.NewContainer()
	if err != nil {
		return err
	}

	if once {
		if err := container.Start(false); err != nil {
			return err
		}
		defer container.Shutdown(context.Background())

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
		defer cancel()

		processed, err := container.RunMaintenance(ctx)
		for name, n := range processed {
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d\n", name, n)
		}
		if err != nil {
			return fmt.Errorf("maintenance failed: %w", err)
		}
		return nil
	}

	if err := container.Start(true); err != nil {
		return err
	}
	log.Infow("worker started", "environment", rt.Env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Infow("shutting down worker", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	container.Shutdown(ctx)

	log.Infow("worker exited gracefully")
	return nil
}
