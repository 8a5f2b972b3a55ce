// Package config loads process configuration from the environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// ConfigFileEnv names the environment variable holding the config file path.
const ConfigFileEnv = "DOCGATE_CONFIG"

// Config is the process configuration.
type Config struct {
	HTTPPort int    `mapstructure:"http_port"`
	AppEnv   string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`
	BasePath string `mapstructure:"base_path"`
	// HTTPWriteTimeout bounds a whole response, streamed query arrays
	// included. Zero disables it.
	HTTPWriteTimeout time.Duration `mapstructure:"http_write_timeout"`

	Backend       string `mapstructure:"backend"`
	DatabaseURL   string `mapstructure:"database_url"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	FixturesPath  string `mapstructure:"fixtures_path"`

	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`

	CORSDomain  string `mapstructure:"cors_domain"`
	GzipEnabled bool   `mapstructure:"gzip_enabled"`

	QueryBatchSize   int `mapstructure:"query_batch_size"`
	QueryParallelism int `mapstructure:"query_parallelism"`

	EligibilityCacheTTL  time.Duration `mapstructure:"eligibility_cache_ttl"`
	EligibilityCacheSize int64         `mapstructure:"eligibility_cache_size"`
	SchemaCacheTTL       time.Duration `mapstructure:"schema_cache_ttl"`
	SchemaCacheSize      int64         `mapstructure:"schema_cache_size"`
}

// IsDevelopment reports whether development logging is requested.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

var defaults = map[string]any{
	"http_port":              8080,
	"app_env":                "production",
	"log_level":              "info",
	"base_path":              "",
	"http_write_timeout":     5 * time.Minute,
	"backend":                BackendPostgres,
	"database_url":           "",
	"mongo_uri":              "",
	"mongo_database":         "docgate",
	"fixtures_path":          "",
	"jwt_secret":             "",
	"jwt_issuer":             "docgate",
	"cors_domain":            "*",
	"gzip_enabled":           true,
	"query_batch_size":       10,
	"query_parallelism":      4,
	"eligibility_cache_ttl":  30 * time.Second,
	"eligibility_cache_size": 4096,
	"schema_cache_ttl":       5 * time.Minute,
	"schema_cache_size":      256,
}

// Load reads the configuration. Environment variables override the file
// named by DOCGATE_CONFIG, which overrides the defaults.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("config_file", ConfigFileEnv); err != nil {
		return nil, err
	}
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the selected backend has its connection settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d", c.HTTPPort))
	}
	if c.HTTPWriteTimeout < 0 {
		errs = append(errs, errors.New("HTTP_WRITE_TIMEOUT must not be negative"))
	}
	if c.QueryBatchSize <= 0 {
		errs = append(errs, errors.New("QUERY_BATCH_SIZE must be positive"))
	}
	if c.QueryParallelism <= 0 {
		errs = append(errs, errors.New("QUERY_PARALLELISM must be positive"))
	}
	return errors.Join(errs...)
}
