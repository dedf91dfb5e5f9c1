package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/orris-inc/entitlements/internal/interfaces/cli/catalog"
	"github.com/orris-inc/entitlements/internal/interfaces/cli/migrate"
	"github.com/orris-inc/entitlements/internal/interfaces/cli/server"
	"github.com/orris-inc/entitlements/internal/interfaces/cli/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "entitlements",
		Short:        "Subscription entitlement engine",
		Long:         `Plans, features, modules and usage limits for subscribers, served over HTTP with a scheduled maintenance worker.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		worker.NewCommand(),
		migrate.NewCommand(),
		catalog.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
