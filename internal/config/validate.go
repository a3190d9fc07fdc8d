package config

import (
	"fmt"
	"log/slog"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for invalid values and returns all errors found.
// Dangerous values that would break the listeners or the cleanup ticker are
// clamped to safe defaults. Other validation errors are logged as warnings
// but do not prevent startup.
func (c *Config) Validate() []error {
	var errs []error

	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, fmt.Errorf("host is empty, using localhost"))
		c.Host = "localhost"
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range, using 3000", c.Port))
		c.Port = 3000
	}

	if c.WSPort < 1 || c.WSPort > 65535 {
		errs = append(errs, fmt.Errorf("ws_port %d is out of range, using port %d", c.WSPort, c.Port))
		c.WSPort = c.Port
	}

	// Clamp the sweep period so the cleanup loop can never spin hot.
	if c.CleanupIntervalMS < 1000 {
		errs = append(errs, fmt.Errorf("cleanup_interval %d is below minimum 1000, clamping", c.CleanupIntervalMS))
		c.CleanupIntervalMS = 1000
	} else if c.CleanupIntervalMS > 86_400_000 {
		errs = append(errs, fmt.Errorf("cleanup_interval %d exceeds maximum 86400000, clamping", c.CleanupIntervalMS))
		c.CleanupIntervalMS = 86_400_000
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if !strings.EqualFold(c.Env, "production") && !strings.EqualFold(c.Env, "development") {
		errs = append(errs, fmt.Errorf("env %q is not valid (use production or development), using development", c.Env))
		c.Env = "development"
	}

	// Log validation errors as warnings
	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}
