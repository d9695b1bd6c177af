package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/batisback/loyverse-daily-sync/internal/engine"
	"github.com/batisback/loyverse-daily-sync/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig         `mapstructure:"app"`
	Logging   logging.Config    `mapstructure:"logging"`
	Database  DatabaseConfig    `mapstructure:"database"`
	Scheduler SchedulerConfig   `mapstructure:"scheduler"`
	Loyverse  LoyverseConfig    `mapstructure:"loyverse"`
	Stores    map[string]string `mapstructure:"stores"`
	Detection DetectionConfig   `mapstructure:"detection"`
	Alerting  AlertingConfig    `mapstructure:"alerting"`
	Export    ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs the daily sync cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// LoyverseConfig captures Loyverse API connectivity.
type LoyverseConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	PageLimit      int           `mapstructure:"page_limit"`
	PullDays       int           `mapstructure:"pull_days"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// DetectionConfig exposes every tunable constant of the anomaly engine.
// The defaults are empirically tuned, not derived; treat them as knobs.
type DetectionConfig struct {
	BaselineDays   int     `mapstructure:"baseline_days"`
	AnalysisDays   int     `mapstructure:"analysis_days"`
	Sensitivity    float64 `mapstructure:"sensitivity"`
	HardFloorRatio float64 `mapstructure:"hard_floor_ratio"`
	MinRunLength   int     `mapstructure:"min_run_length"`
	RatioThreshold float64 `mapstructure:"ratio_threshold"`
	RatioSentinel  float64 `mapstructure:"ratio_sentinel"`
	UTCOffsetHours int     `mapstructure:"utc_offset_hours"`
	ProductA       string  `mapstructure:"product_a"`
	ProductB       string  `mapstructure:"product_b"`
}

// Params threads the detection constants into the engine.
func (d DetectionConfig) Params() engine.Params {
	return engine.Params{
		BaselineDays:   d.BaselineDays,
		AnalysisDays:   d.AnalysisDays,
		Sensitivity:    d.Sensitivity,
		HardFloorRatio: d.HardFloorRatio,
		MinRunLength:   d.MinRunLength,
		RatioThreshold: d.RatioThreshold,
		RatioSentinel:  d.RatioSentinel,
		UTCOffsetHours: d.UTCOffsetHours,
	}
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHIFTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "shiftwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x4c6f7953))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("loyverse.base_url", "https://api.loyverse.com/v1.0")
	v.SetDefault("loyverse.page_limit", 250)
	v.SetDefault("loyverse.pull_days", 2)
	v.SetDefault("loyverse.request_timeout", "30s")
	v.SetDefault("loyverse.user_agent", "shiftwatch/1.0")

	v.SetDefault("detection.baseline_days", 90)
	v.SetDefault("detection.analysis_days", 7)
	v.SetDefault("detection.sensitivity", 1.8)
	v.SetDefault("detection.hard_floor_ratio", 0.6)
	v.SetDefault("detection.min_run_length", 3)
	v.SetDefault("detection.ratio_threshold", 0.6)
	v.SetDefault("detection.ratio_sentinel", 9.99)
	v.SetDefault("detection.utc_offset_hours", 8)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_rows", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Loyverse.PageLimit <= 0 || c.Loyverse.PageLimit > 250 {
		return fmt.Errorf("loyverse.page_limit must be within (0, 250]")
	}
	if c.Loyverse.PullDays <= 0 {
		return fmt.Errorf("loyverse.pull_days must be greater than zero")
	}
	d := c.Detection
	if d.BaselineDays <= 0 || d.AnalysisDays <= 0 {
		return fmt.Errorf("detection windows must be greater than zero")
	}
	if d.AnalysisDays >= d.BaselineDays {
		return fmt.Errorf("detection.analysis_days must be smaller than detection.baseline_days")
	}
	if d.Sensitivity <= 0 {
		return fmt.Errorf("detection.sensitivity must be greater than zero")
	}
	if d.HardFloorRatio < 0 || d.HardFloorRatio >= 1 {
		return fmt.Errorf("detection.hard_floor_ratio must be within [0, 1)")
	}
	if d.MinRunLength <= 0 {
		return fmt.Errorf("detection.min_run_length must be greater than zero")
	}
	if d.RatioSentinel <= d.RatioThreshold {
		return fmt.Errorf("detection.ratio_sentinel must exceed detection.ratio_threshold")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// StoreIDs returns the configured warehouse store identifiers.
func (c *Config) StoreIDs() []string {
	ids := make([]string, 0, len(c.Stores))
	for _, id := range c.Stores {
		ids = append(ids, id)
	}
	return ids
}

// StoreName resolves a store id back to its display name, falling back
// to the id when unmapped.
func (c *Config) StoreName(id string) string {
	for name, storeID := range c.Stores {
		if storeID == id {
			return name
		}
	}
	return id
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
