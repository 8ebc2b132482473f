// Package config loads tether configuration from an optional YAML file plus
// TETHER_* environment overrides, on top of compiled-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all tether configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`
}

type StoreConfig struct {
	// Path of the registry JSON document. Empty resolves to
	// store.DefaultStorePath() at runtime.
	Path string `mapstructure:"path"`
	// History toggles the sqlite sighting-history database.
	History bool `mapstructure:"history"`
	// HistoryPath of the sqlite database. Empty resolves to
	// store.DefaultHistoryPath() at runtime.
	HistoryPath string `mapstructure:"history_path"`
}

type TrackingConfig struct {
	// Freshness bounds detection age for display/ranking queries.
	Freshness time.Duration `mapstructure:"freshness"`
	// ActiveWindow bounds detection age for aggregate status counts.
	// Independent of Freshness; the two are never collapsed.
	ActiveWindow time.Duration `mapstructure:"active_window"`
	// Retention bounds how long stale data is stored at all.
	Retention time.Duration `mapstructure:"retention"`
	// ReapInterval is how often the reaper sweeps.
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	// HistoryRetention bounds sighting-history age.
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

type MQTTConfig struct {
	// Broker URL, e.g. "tcp://localhost:1883". Empty disables MQTT ingest.
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37800,
		},
		Store: StoreConfig{
			Path:    "", // resolved at runtime via store.DefaultStorePath()
			History: true,
		},
		Tracking: TrackingConfig{
			Freshness:        15 * time.Second,
			ActiveWindow:     10 * time.Second,
			Retention:        30 * time.Minute,
			ReapInterval:     30 * time.Minute,
			HistoryRetention: 7 * 24 * time.Hour,
		},
		MQTT: MQTTConfig{
			ClientID: "tether",
			Topic:    "tether/report",
		},
	}
}

// Load reads configuration from the given file path, or from
// ./tether.yaml / ~/.tether/tether.yaml when path is empty, merging
// TETHER_* environment variables over it. A missing config file is not an
// error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetDefault("server.bind", cfg.Server.Bind)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.history", cfg.Store.History)
	v.SetDefault("store.history_path", cfg.Store.HistoryPath)
	v.SetDefault("tracking.freshness", cfg.Tracking.Freshness)
	v.SetDefault("tracking.active_window", cfg.Tracking.ActiveWindow)
	v.SetDefault("tracking.retention", cfg.Tracking.Retention)
	v.SetDefault("tracking.reap_interval", cfg.Tracking.ReapInterval)
	v.SetDefault("tracking.history_retention", cfg.Tracking.HistoryRetention)
	v.SetDefault("mqtt.broker", cfg.MQTT.Broker)
	v.SetDefault("mqtt.client_id", cfg.MQTT.ClientID)
	v.SetDefault("mqtt.topic", cfg.MQTT.Topic)
	v.SetDefault("mqtt.username", cfg.MQTT.Username)
	v.SetDefault("mqtt.password", cfg.MQTT.Password)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tether")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tether")
	}

	v.SetEnvPrefix("TETHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// An explicit path that fails to load is a real error; the implicit
	// search locations are allowed to be empty.
	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
