package config

import "fmt"

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Mode     string `mapstructure:"mode" validate:"oneof=debug release test"`
	Timezone string `mapstructure:"timezone"`

	// AllowedOrigins lists the CORS origins; empty rejects cross-origin calls.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects the gorm dialector. Driver "sqlite" uses Path and
// ignores the network settings.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" validate:"oneof=mysql sqlite"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	Path            string `mapstructure:"path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&collation=utf8mb4_general_ci&parseTime=true&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=console json"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Channel  string `mapstructure:"channel"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Proration behaviors.
const (
	ProrationTimeBased = "time_based"
	ProrationImmediate = "immediate"
	ProrationNone      = "none"
)

// Overage policies.
const (
	OveragePolicyBlock        = "block"
	OveragePolicyAllow        = "allow"
	OveragePolicyAllowWithFee = "allow_with_fee"
	OveragePolicyNotify       = "notify"
)

// Limit enforcement modes.
const (
	LimitEnforcementStrict   = "strict"
	LimitEnforcementSoft     = "soft"
	LimitEnforcementFlexible = "flexible"
)

// Module activation rules.
const (
	ModuleActivationAuto      = "auto"
	ModuleActivationManual    = "manual"
	ModuleActivationPlanBased = "plan_based"
)

// SubscriptionConfig carries the recognized entitlement options.
// Unknown enum values and negative numbers are rejected at load time.
type SubscriptionConfig struct {
	DefaultCurrency                string  `mapstructure:"default_currency" validate:"required,len=3,alpha"`
	DefaultTrialDays               int     `mapstructure:"default_trial_days" validate:"gte=0"`
	DefaultGraceDays               int     `mapstructure:"default_grace_days" validate:"gte=0"`
	ProrationBehavior              string  `mapstructure:"proration_behavior" validate:"oneof=time_based immediate none"`
	UsageResetSchedule             string  `mapstructure:"usage_reset_schedule" validate:"required"`
	OveragePolicy                  string  `mapstructure:"overage_policy" validate:"oneof=block allow allow_with_fee notify"`
	OverageFeeMultiplier           float64 `mapstructure:"overage_fee_multiplier" validate:"gte=0"`
	FeatureInheritanceOnPlanChange bool    `mapstructure:"feature_inheritance_on_plan_change"`
	ModuleInheritanceOnPlanChange  bool    `mapstructure:"module_inheritance_on_plan_change"`
	DefaultFeatureValue            int64   `mapstructure:"default_feature_value" validate:"gte=0"`
	LimitEnforcement               string  `mapstructure:"limit_enforcement" validate:"oneof=strict soft flexible"`
	ModuleActivationRule           string  `mapstructure:"module_activation_rule" validate:"oneof=auto manual plan_based"`
	TrialEndingNotificationDays    int     `mapstructure:"trial_ending_notification_days" validate:"gte=0"`
}

// DefaultSubscriptionConfig returns the option set used when nothing is configured.
func DefaultSubscriptionConfig() SubscriptionConfig {
	return SubscriptionConfig{
		DefaultCurrency:                "USD",
		ProrationBehavior:              ProrationTimeBased,
		UsageResetSchedule:             "0 0 * * *",
		OveragePolicy:                  OveragePolicyBlock,
		OverageFeeMultiplier:           1.5,
		FeatureInheritanceOnPlanChange: true,
		ModuleInheritanceOnPlanChange:  true,
		LimitEnforcement:               LimitEnforcementStrict,
		ModuleActivationRule:           ModuleActivationPlanBased,
		TrialEndingNotificationDays:    7,
	}
}

// AllowsOverage reports whether consumption beyond a hard limit is permitted.
func (c SubscriptionConfig) AllowsOverage() bool {
	if c.LimitEnforcement == LimitEnforcementSoft || c.LimitEnforcement == LimitEnforcementFlexible {
		return true
	}
	switch c.OveragePolicy {
	case OveragePolicyAllow, OveragePolicyAllowWithFee, OveragePolicyNotify:
		return true
	}
	return false
}

// AutoActivatesModules reports whether plan modules are activated on subscribe.
func (c SubscriptionConfig) AutoActivatesModules() bool {
	return c.ModuleActivationRule != ModuleActivationManual
}
