// Package config loads server settings from an optional YAML file and the
// environment. Environment values win over file values.
package config

import (
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	WSPort            int    `mapstructure:"ws_port"`
	CleanupIntervalMS int64  `mapstructure:"cleanup_interval"`
	LogLevel          string `mapstructure:"log_level"`
	LogEnabled        bool   `mapstructure:"log_enabled"`
	Env               string `mapstructure:"env"`
}

// Environment variable names, bound without a prefix.
var envBindings = map[string]string{
	"host":             "HOST",
	"port":             "PORT",
	"ws_port":          "WS_PORT",
	"cleanup_interval": "CLEANUP_INTERVAL",
	"log_level":        "LOG_LEVEL",
	"log_enabled":      "LOG_ENABLED",
	"env":              "ENV",
}

func Default() *Config {
	return &Config{
		Host:              "localhost",
		Port:              3000,
		WSPort:            0, // resolved to Port after load
		CleanupIntervalMS: 300_000,
		LogLevel:          "info",
		LogEnabled:        true,
		Env:               "development",
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("ws_port", cfg.WSPort)
	v.SetDefault("cleanup_interval", cfg.CleanupIntervalMS)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_enabled", cfg.LogEnabled)
	v.SetDefault("env", cfg.Env)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("cotimer")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/cotimer")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.WSPort == 0 {
		cfg.WSPort = cfg.Port
	}

	return cfg, nil
}

// LogFormat maps the runtime environment to a log handler format.
func (c *Config) LogFormat() string {
	if strings.EqualFold(c.Env, "production") {
		return "json"
	}
	return "dev"
}

// HTTPAddr returns the listen address for the HTTP API.
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WSAddr returns the listen address for the WebSocket endpoint.
func (c *Config) WSAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.WSPort))
}

// SplitListeners reports whether the WebSocket endpoint runs on its own
// listener instead of sharing the HTTP one.
func (c *Config) SplitListeners() bool {
	return c.WSPort != c.Port
}
