// Package config loads process configuration from the environment and
// an optional llm-wars.yaml file. Environment variables win and use the
// LLMWARS_ prefix (LLMWARS_API_KEY, LLMWARS_PORT, ...).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved process configuration. The API key is
// read-only process-wide state; nothing mutates it after Load.
type Config struct {
	APIKey  string
	BaseURL string
	Port    int

	// RequestTimeout bounds each upstream call, streaming or fallback.
	RequestTimeout time.Duration
	// StreamWatchdog bounds the whole merged response stream.
	StreamWatchdog time.Duration
	// Keepalive pings fire when nothing has been written for
	// KeepaliveStale, checked every KeepaliveInterval.
	KeepaliveInterval time.Duration
	KeepaliveStale    time.Duration

	LogLevel string
}

// ErrMissingAPIKey is returned when no credential is configured; the
// server treats it as a startup-time fatal.
var ErrMissingAPIKey = errors.New("config: api_key is required (set LLMWARS_API_KEY)")

// Load reads configuration. A missing config file is fine; a missing
// API key is not.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("base_url", "https://api.gravixlayer.com/v1/inference")
	v.SetDefault("port", 8080)
	v.SetDefault("request_timeout", 180*time.Second)
	v.SetDefault("stream_watchdog", 120*time.Second)
	v.SetDefault("keepalive_interval", 15*time.Second)
	v.SetDefault("keepalive_stale", 14*time.Second)
	v.SetDefault("log_level", "info")

	v.SetConfigName("llm-wars")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/llm-wars")

	v.SetEnvPrefix("llmwars")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	cfg := &Config{
		APIKey:            v.GetString("api_key"),
		BaseURL:           strings.TrimRight(v.GetString("base_url"), "/"),
		Port:              v.GetInt("port"),
		RequestTimeout:    v.GetDuration("request_timeout"),
		StreamWatchdog:    v.GetDuration("stream_watchdog"),
		KeepaliveInterval: v.GetDuration("keepalive_interval"),
		KeepaliveStale:    v.GetDuration("keepalive_stale"),
		LogLevel:          v.GetString("log_level"),
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return cfg, nil
}
