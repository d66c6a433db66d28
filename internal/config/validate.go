package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"updatr/internal/logging"
	"updatr/internal/runner"
	"updatr/internal/services"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateLibrary,
		c.validateFormats,
		c.validatePolicy,
		c.validateScoring,
		c.validateFetch,
		c.validateCalibredb,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return fmt.Errorf("%w: %w", services.ErrConfiguration, err)
		}
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if c.Library.Path == "" && c.Library.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("library.path or library.url is required. Pass --library/--library-url or edit %s (create with 'updatr config init')", defaultPath)
	}
	if c.Library.URL != "" {
		parsed, err := url.Parse(c.Library.URL)
		if err != nil {
			return fmt.Errorf("library.url: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("library.url must be an http(s) URL (got %q)", c.Library.URL)
		}
		if parsed.Host == "" {
			return fmt.Errorf("library.url has no host (got %q)", c.Library.URL)
		}
	}
	return nil
}

func (c *Config) validateFormats() error {
	if len(c.Formats.List) == 0 {
		return errors.New("formats.list must name at least one format")
	}
	for _, f := range c.Formats.List {
		if strings.ContainsAny(f, " ,;:") {
			return fmt.Errorf("formats.list entry %q must be a bare format name", f)
		}
	}
	return nil
}

func (c *Config) validatePolicy() error {
	if c.Policy.DelayBetweenFetchesSeconds < 0 {
		return errors.New("policy.delay_between_fetches_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateScoring() error {
	if c.Scoring.MinScoreToSkipFetch < 0 {
		return errors.New("scoring.min_score_to_skip_fetch must be >= 0")
	}
	if err := c.ScoringPolicy().Weights.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.TimeoutSeconds <= 0 {
		return errors.New("fetch.timeout_seconds must be positive")
	}
	if c.Fetch.HeartbeatSeconds < 0 {
		return errors.New("fetch.heartbeat_seconds must be >= 0")
	}
	for key := range c.Fetch.HeadlessEnv {
		if strings.TrimSpace(key) == "" || strings.Contains(key, "=") {
			return fmt.Errorf("fetch.headless_env has an invalid variable name %q", key)
		}
	}
	return nil
}

func (c *Config) validateCalibredb() error {
	if _, err := runner.ParseEnvMode(c.Calibredb.EnvMode); err != nil {
		return fmt.Errorf("calibredb.env_mode: %w", err)
	}
	if c.Calibredb.TimeoutSeconds < 0 {
		return errors.New("calibredb.timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}
