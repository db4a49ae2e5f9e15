package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"price-floor-alerts/internal/catalog"
	"price-floor-alerts/internal/category"
	"price-floor-alerts/internal/logging"
)

// EnvPrefix namespaces environment overrides, e.g. FLOORWATCH_HISTORY_PATH.
const EnvPrefix = "FLOORWATCH"

// History backends.
const (
	BackendCSV       = "csv"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config materialises application configuration.
type Config struct {
	App         AppConfig        `mapstructure:"app"`
	Logging     logging.Config   `mapstructure:"logging"`
	Self        SourceConfig     `mapstructure:"self"`
	Competitors []string         `mapstructure:"competitors"`
	Floors      map[string]int64 `mapstructure:"floors"`
	Fetch       FetchConfig      `mapstructure:"fetch"`
	History     HistoryConfig    `mapstructure:"history"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Firestore   FirestoreConfig  `mapstructure:"firestore"`
	Scheduler   SchedulerConfig  `mapstructure:"scheduler"`
	Alerting    AlertingConfig   `mapstructure:"alerting"`
	Export      ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// SourceConfig identifies the operator's own storefront.
type SourceConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// FetchConfig tunes page retrieval.
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
	RatePerSec   float64       `mapstructure:"rate_per_sec"`
	Burst        int           `mapstructure:"burst"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	Retries      int           `mapstructure:"retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// HistoryConfig selects the ledger backend.
type HistoryConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// FirestoreConfig locates the Firestore ledger collection.
type FirestoreConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	Collection      string `mapstructure:"collection"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// SchedulerConfig governs scan cadence for the run command.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	ScanLockKey   int64         `mapstructure:"scan_lock_key"`
}

// AlertingConfig defines digest routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	TopN     int            `mapstructure:"top_n"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot target.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Dir         string `mapstructure:"dir"`
	ChartWidth  int    `mapstructure:"chart_width"`
	ChartHeight int    `mapstructure:"chart_height"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("app.name", "floorwatch")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Asia/Tokyo")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("competitors", []string{})

	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.concurrency", 5)
	v.SetDefault("fetch.rate_per_sec", 2.0)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; floorwatch/1.0)")
	v.SetDefault("fetch.max_body_bytes", int64(5<<20))
	v.SetDefault("fetch.retries", 1)
	v.SetDefault("fetch.retry_backoff", "1s")

	v.SetDefault("history.backend", BackendCSV)
	v.SetDefault("history.path", "history.csv")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x666c6f6f))

	v.SetDefault("firestore.collection", "history_records")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.scan_lock_key", int64(0x7363616e))

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.top_n", 3)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.chart_width", 1024)
	v.SetDefault("export.chart_height", 512)
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

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return invalid("app.timezone %q: %v", c.App.Timezone, err)
	}
	for name, floor := range c.Floors {
		if _, ok := category.Lookup(name); !ok {
			return invalid("floors: unknown category %q", name)
		}
		if floor < 0 {
			return invalid("floors.%s cannot be negative", name)
		}
	}
	if c.Fetch.Timeout <= 0 {
		return invalid("fetch.timeout must be greater than zero")
	}
	if c.Fetch.Concurrency <= 0 {
		return invalid("fetch.concurrency must be greater than zero")
	}
	if c.Fetch.Retries < 0 {
		return invalid("fetch.retries cannot be negative")
	}
	if c.Fetch.RatePerSec < 0 {
		return invalid("fetch.rate_per_sec cannot be negative")
	}
	if c.Scheduler.Interval <= 0 {
		return invalid("scheduler.interval must be greater than zero")
	}
	if c.Alerting.TopN < 0 {
		return invalid("alerting.top_n cannot be negative")
	}

	switch c.History.Backend {
	case BackendCSV:
		if c.History.Path == "" {
			return invalid("history.path is required for the csv backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return invalid("database.dsn is required for the postgres backend")
		}
		if c.Database.AdvisoryLockKey == 0 || c.Scheduler.ScanLockKey == 0 {
			return invalid("database.advisory_lock_key and scheduler.scan_lock_key must be non-zero")
		}
		// both keys share one pg_advisory_lock namespace
		if c.Database.AdvisoryLockKey == c.Scheduler.ScanLockKey {
			return invalid("scheduler.scan_lock_key must differ from database.advisory_lock_key")
		}
	case BackendFirestore:
		if c.Firestore.ProjectID == "" {
			return invalid("firestore.project_id is required for the firestore backend")
		}
	case BackendMemory:
	default:
		return invalid("history.backend %q is not one of csv, postgres, firestore, memory", c.History.Backend)
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return invalid("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return invalid("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// Location returns the zone that defines calendar days for the ledger.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CategoryFloors converts the configured floors to catalog form. Zero entries
// are dropped since they mean "unset".
func (c *Config) CategoryFloors() catalog.Floors {
	floors := make(catalog.Floors, len(c.Floors))
	for name, v := range c.Floors {
		cat, ok := category.Lookup(name)
		if !ok || v <= 0 {
			continue
		}
		floors[cat] = v
	}
	return floors
}

// CompetitorURLs returns the configured competitor locators without blanks,
// in configuration order.
func (c *Config) CompetitorURLs() []string {
	out := make([]string, 0, len(c.Competitors))
	for _, u := range c.Competitors {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// ResolveTopN returns either the CLI override or the config default.
func (c *Config) ResolveTopN(override int) int {
	if override > 0 {
		return override
	}
	return c.Alerting.TopN
}
