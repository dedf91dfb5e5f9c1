package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "github.com/orris-inc/entitlements/internal/shared/config"
	"github.com/orris-inc/entitlements/internal/shared/errors"
	"github.com/orris-inc/entitlements/internal/shared/utils"
)

// EnvPrefix prefixes every environment override, e.g. ENTITLEMENTS_DATABASE_DRIVER.
const EnvPrefix = "ENTITLEMENTS"

type Config struct {
	Server       sharedConfig.ServerConfig       `mapstructure:"server"`
	Database     sharedConfig.DatabaseConfig     `mapstructure:"database"`
	Logger       sharedConfig.LoggerConfig       `mapstructure:"logger"`
	Redis        sharedConfig.RedisConfig        `mapstructure:"redis"`
	Subscription sharedConfig.SubscriptionConfig `mapstructure:"subscription"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads configs/config.yaml (searched in the given paths, or the usual
// relative locations), applies ENTITLEMENTS_* overrides and validates the
// result. A missing file is not an error; an invalid value is.
func Load(env string, paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./configs", "../configs", "../../configs"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, errors.NewConfigurationError("failed to read config file", err.Error())
		}
	}

	if env != "" && env != "default" {
		v.Set("server.mode", env)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigurationError("failed to unmarshal config", err.Error())
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Validate checks every section. Any failure is a configuration error.
func (c *Config) Validate() error {
	sections := []interface{}{&c.Server, &c.Database, &c.Logger, &c.Redis, &c.Subscription}
	for _, section := range sections {
		if err := utils.ValidateStruct(section); err != nil {
			details := err.Error()
			if appErr := errors.GetAppError(err); appErr != nil {
				details = appErr.Details
			}
			return errors.NewConfigurationError("invalid configuration", details)
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		return errors.NewConfigurationError("invalid configuration", "database.path is required for sqlite")
	}
	if len(strings.Fields(c.Subscription.UsageResetSchedule)) < 5 {
		return errors.NewConfigurationError("invalid configuration",
			fmt.Sprintf("subscription.usage_reset_schedule is not a cron expression: %q", c.Subscription.UsageResetSchedule))
	}
	return nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.timezone", "UTC")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "entitlements")
	v.SetDefault("database.path", "entitlements.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "entitlements:events")

	defaults := sharedConfig.DefaultSubscriptionConfig()
	v.SetDefault("subscription.default_currency", defaults.DefaultCurrency)
	v.SetDefault("subscription.default_trial_days", defaults.DefaultTrialDays)
	v.SetDefault("subscription.default_grace_days", defaults.DefaultGraceDays)
	v.SetDefault("subscription.proration_behavior", defaults.ProrationBehavior)
	v.SetDefault("subscription.usage_reset_schedule", defaults.UsageResetSchedule)
	v.SetDefault("subscription.overage_policy", defaults.OveragePolicy)
	v.SetDefault("subscription.overage_fee_multiplier", defaults.OverageFeeMultiplier)
	v.SetDefault("subscription.feature_inheritance_on_plan_change", defaults.FeatureInheritanceOnPlanChange)
	v.SetDefault("subscription.module_inheritance_on_plan_change", defaults.ModuleInheritanceOnPlanChange)
	v.SetDefault("subscription.default_feature_value", defaults.DefaultFeatureValue)
	v.SetDefault("subscription.limit_enforcement", defaults.LimitEnforcement)
	v.SetDefault("subscription.module_activation_rule", defaults.ModuleActivationRule)
	v.SetDefault("subscription.trial_ending_notification_days", defaults.TrialEndingNotificationDays)
}
