package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config holds configuration settings for the workflow server.
	Config struct {
		// HTTP
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

		// Logging & Metrics
		LogLevel         string `yaml:"log_level"`
		LogFormat        string `yaml:"log_format"`
		MetricsNamespace string `yaml:"metrics_namespace"`

		// Storage
		Store    string      `yaml:"store"`
		Postgres PostgresCfg `yaml:"postgres"`
		Redis    RedisCfg    `yaml:"redis"`

		// Editing
		Autosave AutosaveCfg `yaml:"autosave"`
		Layout   LayoutCfg   `yaml:"layout"`
	}

	// PostgresCfg selects the PostgreSQL database.
	PostgresCfg struct {
		URL string `yaml:"url"`
	}

	// RedisCfg selects the Redis database and key namespace.
	RedisCfg struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	}

	// AutosaveCfg holds the persistence controller timings.
	AutosaveCfg struct {
		Delay                   time.Duration `yaml:"delay"`
		SuppressWindow          time.Duration `yaml:"suppress_window"`
		SaveTimeout             time.Duration `yaml:"save_timeout"`
		RefreshActionsAfterSave bool          `yaml:"refresh_actions_after_save"`
	}

	// LayoutCfg holds the layout spacing.
	LayoutCfg struct {
		RankSep float64 `yaml:"rank_sep"`
		NodeSep float64 `yaml:"node_sep"`
	}
)

const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	DefaultAddr             = ":8080"
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultMetricsNamespace = "workflow"
	DefaultRedisAddr        = "localhost:6379"
	DefaultRedisPrefix      = "workflow"

	DefaultAutosaveDelay  = 1500 * time.Millisecond
	DefaultSuppressWindow = time.Second
	DefaultSaveTimeout    = 30 * time.Second

	DefaultRankSep = 80
	DefaultNodeSep = 60

	MaxRedisDB          = 15
	MaxAutosaveDelay    = 10 * time.Minute
	MaxSuppressWindow   = time.Minute
	MaxSaveTimeout      = 10 * time.Minute
	MaxShutdownTimeout  = 10 * time.Minute
	MaxLayoutSeparation = 1000
)

var (
	ErrInvalidAddr            = errors.New("listen address must not be empty")
	ErrInvalidStore           = errors.New("invalid store backend")
	ErrMissingDatabaseURL     = errors.New("postgres store requires a database URL")
	ErrMissingRedisAddr       = errors.New("redis store requires an address")
	ErrInvalidAutosaveDelay   = errors.New("autosave delay must be positive")
	ErrInvalidSuppressWindow  = errors.New("suppress window cannot be negative")
	ErrInvalidSaveTimeout     = errors.New("save timeout must be positive")
	ErrInvalidLayoutSpacing   = errors.New("layout separation must be positive")
	ErrInvalidLogFormat       = errors.New("invalid log format")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
)

// NewDefaultConfig creates a configuration with the editor's defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Addr:             DefaultAddr,
		ShutdownTimeout:  DefaultShutdownTimeout,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
		MetricsNamespace: DefaultMetricsNamespace,
		Store:            StorePostgres,
		Redis: RedisCfg{
			Addr:   DefaultRedisAddr,
			Prefix: DefaultRedisPrefix,
		},
		Autosave: AutosaveCfg{
			Delay:                   DefaultAutosaveDelay,
			SuppressWindow:          DefaultSuppressWindow,
			SaveTimeout:             DefaultSaveTimeout,
			RefreshActionsAfterSave: true,
		},
		Layout: LayoutCfg{
			RankSep: DefaultRankSep,
			NodeSep: DefaultNodeSep,
		},
	}
}

// LoadFile overlays the YAML file at path onto the configuration. Keys
// missing from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	loadEnvString("ADDR", &c.Addr)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("LOG_FORMAT", &c.LogFormat)
	loadEnvString("METRICS_NAMESPACE", &c.MetricsNamespace)
	loadEnvString("STORE", &c.Store)
	loadEnvString("DATABASE_URL", &c.Postgres.URL)
	loadEnvString("REDIS_ADDR", &c.Redis.Addr)
	loadEnvString("REDIS_PASSWORD", &c.Redis.Password)
	loadEnvString("REDIS_PREFIX", &c.Redis.Prefix)

	if err := loadEnvInt("REDIS_DB", &c.Redis.DB, -1, MaxRedisDB); err != nil {
		return err
	}
	if err := loadEnvDuration(
		"AUTOSAVE_DELAY", &c.Autosave.Delay, 0, MaxAutosaveDelay,
	); err != nil {
		return err
	}
	if err := loadEnvDuration(
		"AUTOSAVE_SUPPRESS_WINDOW", &c.Autosave.SuppressWindow,
		-1, MaxSuppressWindow,
	); err != nil {
		return err
	}
	if err := loadEnvDuration(
		"AUTOSAVE_SAVE_TIMEOUT", &c.Autosave.SaveTimeout, 0, MaxSaveTimeout,
	); err != nil {
		return err
	}
	if err := loadEnvDuration(
		"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout, 0, MaxShutdownTimeout,
	); err != nil {
		return err
	}
	if err := loadEnvBool(
		"REFRESH_ACTIONS_AFTER_SAVE", &c.Autosave.RefreshActionsAfterSave,
	); err != nil {
		return err
	}
	if err := loadEnvFloat(
		"LAYOUT_RANK_SEP", &c.Layout.RankSep, 0, MaxLayoutSeparation,
	); err != nil {
		return err
	}
	return loadEnvFloat(
		"LAYOUT_NODE_SEP", &c.Layout.NodeSep, 0, MaxLayoutSeparation,
	)
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return ErrInvalidAddr
	}
	switch c.Store {
	case StorePostgres:
		if c.Postgres.URL == "" {
			return ErrMissingDatabaseURL
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return ErrMissingRedisAddr
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStore, c.Store)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}
	if c.Autosave.Delay <= 0 {
		return ErrInvalidAutosaveDelay
	}
	if c.Autosave.SuppressWindow < 0 {
		return ErrInvalidSuppressWindow
	}
	if c.Autosave.SaveTimeout <= 0 {
		return ErrInvalidSaveTimeout
	}
	if c.Layout.RankSep <= 0 || c.Layout.NodeSep <= 0 {
		return ErrInvalidLayoutSpacing
	}
	return nil
}

func loadEnvString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

func loadEnvBool(key string, dst *bool) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = v
	return nil
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max].
func loadEnvInt(key string, dst *int, min, max int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	if v <= min || v > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, v, min+1, max)
	}
	*dst = v
	return nil
}

// loadEnvDuration is loadEnvInt for Go duration strings such as "1500ms".
func loadEnvDuration(key string, dst *time.Duration, min, max time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	if v <= min || v > max {
		return fmt.Errorf("invalid %s: %s out of range (%s, %s]",
			key, v, min, max)
	}
	*dst = v
	return nil
}

func loadEnvFloat(key string, dst *float64, min, max float64) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	if v <= min || v > max {
		return fmt.Errorf("invalid %s: %g out of range (%g, %g]",
			key, v, min, max)
	}
	*dst = v
	return nil
}
