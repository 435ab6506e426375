package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AuthorityMapping struct {
	Claim     string `mapstructure:"claim"`
	Prefix    string `mapstructure:"prefix"`
	Delimiter string `mapstructure:"delimiter"`
	Uppercase bool   `mapstructure:"uppercase"`
}

type Upstream struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Retry             int           `mapstructure:"retry"`
	RequiredAuthority string        `mapstructure:"required_authority"`
}

type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		Mode         string        `mapstructure:"mode"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		URL      string `mapstructure:"url"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	Auth struct {
		JWKSURL     string             `mapstructure:"jwks_url"`
		Issuer      string             `mapstructure:"issuer"`
		Audience    []string           `mapstructure:"audience"`
		Algorithms  []string           `mapstructure:"algorithms"`
		Leeway      time.Duration      `mapstructure:"leeway"`
		CacheTTL    time.Duration      `mapstructure:"cache_ttl"`
		CacheSize   int                `mapstructure:"cache_size"`
		Authorities []AuthorityMapping `mapstructure:"authorities"`
	} `mapstructure:"auth"`

	Upstreams map[string]Upstream `mapstructure:"upstreams"`

	Audit struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"audit"`

	Observability struct {
		MetricsEnabled     bool   `mapstructure:"metrics_enabled"`
		TraceEnabled       bool   `mapstructure:"trace_enabled"`
		TracingEndpointURL string `mapstructure:"tracing_endpoint_url"`
		LogLevel           string `mapstructure:"log_level"`
		Format             string `mapstructure:"log_format"`
		LogSource          bool   `mapstructure:"log_source"`
	} `mapstructure:"observability"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("auth.algorithms", []string{"RS256"})
	v.SetDefault("auth.leeway", 30*time.Second)
	v.SetDefault("auth.cache_ttl", 5*time.Minute)
	v.SetDefault("auth.cache_size", 1024)
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
}

// Load reads config.yaml from ./config or the working directory, overlays
// config.$APP_ENV.yaml when present and applies TOKEN_RELAY_* env vars.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	logger := slog.Default()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvPrefix("TOKEN_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			logger.Info("No environment-specific config (optional)", slog.String("env", env))
		} else {
			logger.Info("Environment-specific config loaded", slog.String("env", env))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		slog.Default().Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	return cfg
}
