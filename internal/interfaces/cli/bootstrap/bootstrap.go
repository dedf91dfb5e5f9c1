// Package bootstrap loads configuration and opens shared resources for the
// CLI commands.
package bootstrap

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orris-inc/entitlements/internal/infrastructure/config"
	"github.com/orris-inc/entitlements/internal/infrastructure/database"
	httpRouter "github.com/orris-inc/entitlements/internal/interfaces/http"
	"github.com/orris-inc/entitlements/internal/shared/biztime"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// Options are the flags every command shares.
type Options struct {
	Env        string
	ConfigPath string
	Verbose    bool
}

// BindFlags registers the shared flags on cmd.
func (o *Options) BindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&o.Env, "env", "e", "development", "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&o.ConfigPath, "config", "c", "", "Directory holding config.yaml (default: ./configs)")
	cmd.PersistentFlags().BoolVarP(&o.Verbose, "verbose", "v", false, "Show source locations for every log level")
}

// Runtime is the loaded configuration plus the process logger.
type Runtime struct {
	Env    string
	Config *config.Config
	Logger logger.Interface
}

// Load reads the configuration, then initializes the logger and the business
// timezone.
func Load(opts Options) (*Runtime, error) {
	var paths []string
	if opts.ConfigPath != "" {
		paths = append(paths, opts.ConfigPath)
	}

	cfg, err := config.Load(GinMode(opts.Env), paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, opts.Verbose); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := biztime.Init(cfg.Server.Timezone); err != nil {
		return nil, fmt.Errorf("failed to initialize business timezone: %w", err)
	}

	return &Runtime{
		Env:    opts.Env,
		Config: cfg,
		Logger: logger.NewLogger(),
	}, nil
}

// OpenDatabase opens the configured database. Call database.Close when done.
func (r *Runtime) OpenDatabase() error {
	if err := database.Init(&r.Config.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// NewContainer opens Redis when it is enabled and wires the application on
// the open database.
func (r *Runtime) NewContainer() (*httpRouter.Container, error) {
	if !r.Config.Redis.Enabled {
		r.Logger.Infow("redis disabled, domain events stay in-process")
		return httpRouter.NewContainer(r.Config, database.Get(), nil, r.Logger)
	}

	client, err := httpRouter.ConnectRedis(r.Config, r.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	container, err := httpRouter.NewContainer(r.Config, database.Get(), client, r.Logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return container, nil
}

// GinMode maps an environment name to a gin mode.
func GinMode(environment string) string {
	switch environment {
	case "production", "prod", "release":
		return "release"
	case "test", "testing":
		return "test"
	default:
		return "debug"
	}
}
