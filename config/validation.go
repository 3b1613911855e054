package config

import (
	"fmt"
	"net/url"
	"strings"
)

func Validate(cfg *Config) error {
	if len(cfg.Nodes) == 0 {
		return fmt.Errorf("at least one node URL is required")
	}
	for _, raw := range cfg.Nodes {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid node URL: %q", raw)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported scheme %q in node URL %q", u.Scheme, raw)
		}
	}

	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if cfg.MaxRetries < 0 {
		return fmt.Errorf("maxretries cannot be negative")
	}

	if cfg.RevivalDelay <= 0 {
		return fmt.Errorf("revivaldelay must be positive")
	}

	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	// Credentials must come as a pair or not at all.
	if (cfg.Auth.Username == "") != (cfg.Auth.Password == "") {
		return fmt.Errorf("auth username and password must both be set")
	}

	return nil
}

func validateLog(cfg *LogConfig) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "disabled"}
	for _, level := range validLevels {
		if cfg.Level == level {
			return nil
		}
	}
	return fmt.Errorf("invalid level: %s (must be one of: %s)",
		cfg.Level, strings.Join(validLevels, ", "))
}
