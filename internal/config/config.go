// Package config loads runtime configuration from the environment and
// an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ServiceConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
}

type CatalogConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type StorageConfig struct {
	// Dir is the badger directory; empty keeps the cart in memory only.
	Dir string `mapstructure:"dir"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// Load reads SHOPFRONT_* environment variables over defaults, plus the
// config file named by SHOPFRONT_CONFIG when set.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("shopfront")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("service.name", "shopfront")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("http.addr", ":8084")
	v.SetDefault("http.rate_limit", 0)
	v.SetDefault("http.rate_limit_window", time.Minute)
	v.SetDefault("catalog.base_url", "https://api.escuelajs.co/api/v1")
	v.SetDefault("storage.dir", "./data/cart")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.token", "")

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.Catalog.BaseURL == "" {
		return nil, fmt.Errorf("catalog.base_url must not be empty")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Token == "" {
		return nil, fmt.Errorf("metrics.token required when metrics.enabled")
	}
	return &cfg, nil
}
