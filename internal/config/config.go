// File: internal/config/config.go
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Engine() EngineConfig
	Database() DatabaseConfig
	Catalog() CatalogConfig

	// Engine Setters (driven by CLI flags)
	SetEnginePreciseInvalidation(bool)
	SetEngineWorkerConcurrency(int)

	// Catalog Setter
	SetCatalogPath(string)
}

// Config holds the entire application configuration. It uses private fields
// to enforce access through the Interface's getter methods.
type Config struct {
	logger   LoggerConfig
	engine   EngineConfig
	database DatabaseConfig
	catalog  CatalogConfig
}

// fileConfig is the exported mirror of Config that viper unmarshals into.
type fileConfig struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Catalog  CatalogConfig  `mapstructure:"catalog" yaml:"catalog"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.logger }
func (c *Config) Engine() EngineConfig     { return c.engine }
func (c *Config) Database() DatabaseConfig { return c.database }
func (c *Config) Catalog() CatalogConfig   { return c.catalog }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetEnginePreciseInvalidation(b bool) { c.engine.PreciseInvalidation = b }
func (c *Config) SetEngineWorkerConcurrency(w int)    { c.engine.WorkerConcurrency = w }
func (c *Config) SetCatalogPath(p string)             { c.catalog.Path = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EngineConfig holds evaluation engine tunables.
type EngineConfig struct {
	// PreciseInvalidation evicts only downstream cache entries when an
	// input changes instead of clearing the whole cache.
	PreciseInvalidation bool `mapstructure:"precise_invalidation" yaml:"precise_invalidation"`
	// MinForecastHistory is the minimum number of seeded historical values
	// a forecast node needs before it will project forward.
	MinForecastHistory int `mapstructure:"min_forecast_history" yaml:"min_forecast_history"`
	// WorkerConcurrency bounds how many node/period cells the CLI
	// evaluates in parallel.
	WorkerConcurrency int `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
}

// DatabaseConfig holds the definition store connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
}

// CatalogConfig points at the metric catalog file.
type CatalogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// NewDefaultConfig returns a Config populated purely from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to build default config: %v", err))
	}
	return cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "fingraph")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Engine --
	v.SetDefault("engine.precise_invalidation", false)
	v.SetDefault("engine.min_forecast_history", 1)
	v.SetDefault("engine.worker_concurrency", 8)

	// -- Catalog --
	v.SetDefault("catalog.path", "")
}

// NewConfigFromViper builds and validates a Config from a prepared viper
// instance (defaults, config file and env already merged).
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data
	v.BindEnv("database.url", "FINGRAPH_DATABASE_URL")

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg := &Config{
		logger:   fc.Logger,
		engine:   fc.Engine,
		database: fc.Database,
		catalog:  fc.Catalog,
	}

	// Manually load the URL if Unmarshal didn't pick it up
	if cfg.database.URL == "" {
		cfg.database.URL = os.Getenv("FINGRAPH_DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.engine.MinForecastHistory < 1 {
		return fmt.Errorf("engine.min_forecast_history must be a positive integer")
	}
	if c.engine.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if c.catalog.Path != "" {
		if _, err := os.Stat(c.catalog.Path); err != nil {
			return fmt.Errorf("catalog.path %q is not readable: %w", c.catalog.Path, err)
		}
	}
	return nil
}
