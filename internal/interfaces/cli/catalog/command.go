package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appcatalog "github.com/orris-inc/entitlements/internal/application/catalog"
	"github.com/orris-inc/entitlements/internal/infrastructure/database"
	"github.com/orris-inc/entitlements/internal/interfaces/cli/bootstrap"
)

var opts bootstrap.Options

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the plan catalog",
		Long:  `Load modules, features and plans from a YAML catalog file. Imports match existing rows by slug.`,
	}

	opts.BindFlags(cmd)

	cmd.AddCommand(
		newValidateCommand(),
		newImportCommand(),
	)

	return cmd
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a catalog file without touching the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d modules, %d features, %d plans\n",
				args[0], len(doc.Modules), len(doc.Features), len(doc.Plans))
			return nil
		},
	}
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create or update the catalog from a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	doc, err := readDocument(args[0])
	if err != nil {
		return err
	}

	rt, err := bootstrap.Load(opts)
	if err != nil {
		return err
	}
	if err := rt.OpenDatabase(); err != nil {
		return err
	}
	defer database.Close()

	container, err := rt.NewContainer()
	if err != nil {
		return err
	}

	result, err := container.Importer().Import(cmd.Context(), doc)
	if err != nil {
		rt.Logger.Errorw("catalog import failed", "file", args[0], "error", err)
		return fmt.Errorf("catalog import failed: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func readDocument(path string) (*appcatalog.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	doc, err := appcatalog.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return doc, nil
}
