package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"updatr/internal/language"
)

func (c *Config) normalize() error {
	c.normalizeLibrary()
	c.normalizeContentServer()
	if err := c.normalizeState(); err != nil {
		return err
	}
	c.normalizeFormats()
	c.normalizePolicy()
	c.normalizeTools()
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	return c.normalizeMetrics()
}

func (c *Config) normalizeLibrary() {
	c.Library.Path = strings.TrimSpace(c.Library.Path)
	if c.Library.Path != "" {
		if expanded, err := expandPath(c.Library.Path); err == nil {
			c.Library.Path = expanded
		}
	}
	c.Library.URL = NormalizeLibraryURL(c.Library.URL)
}

// NormalizeLibraryURL trims whitespace and trailing slashes from a Content
// Server URL.
func NormalizeLibraryURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func (c *Config) normalizeContentServer() {
	c.ContentServer.Username = strings.TrimSpace(c.ContentServer.Username)
	if strings.TrimSpace(c.ContentServer.Password) == "" {
		c.ContentServer.Password = ""
		if value, ok := os.LookupEnv(PasswordEnv); ok {
			c.ContentServer.Password = value
		}
	}
}

func (c *Config) normalizeState() error {
	var err error
	if strings.TrimSpace(c.State.Path) == "" {
		c.State.Path = defaultStatePath()
	}
	if c.State.Path, err = expandPath(strings.TrimSpace(c.State.Path)); err != nil {
		return fmt.Errorf("state.path: %w", err)
	}
	if strings.TrimSpace(c.State.HistoryPath) == "" {
		c.State.HistoryPath = DefaultHistoryPath(c.State.Path)
	}
	if c.State.HistoryPath, err = expandPath(strings.TrimSpace(c.State.HistoryPath)); err != nil {
		return fmt.Errorf("state.history_path: %w", err)
	}
	return nil
}

// DefaultHistoryPath is the ledger location used when none is configured: a
// sibling of the state file.
func DefaultHistoryPath(statePath string) string {
	return filepath.Join(filepath.Dir(statePath), defaultHistoryFile)
}

func (c *Config) normalizeFormats() {
	c.Formats.List = lowerUnique(c.Formats.List)
}

func (c *Config) normalizePolicy() {
	codes := make([]string, 0, len(c.Policy.EnglishCodes))
	for _, code := range c.Policy.EnglishCodes {
		if norm := language.Normalize(code); norm != "" {
			codes = append(codes, norm)
		}
	}
	c.Policy.EnglishCodes = lowerUnique(codes)
}

func (c *Config) normalizeTools() {
	c.Fetch.Binary = strings.TrimSpace(c.Fetch.Binary)
	if c.Fetch.Binary == "" {
		c.Fetch.Binary = defaultFetchBinary
	}
	c.Calibredb.Binary = strings.TrimSpace(c.Calibredb.Binary)
	if c.Calibredb.Binary == "" {
		c.Calibredb.Binary = defaultCalibredbBinary
	}
	c.Calibredb.EnvMode = strings.ToLower(strings.TrimSpace(c.Calibredb.EnvMode))
	if c.Calibredb.EnvMode == "" {
		c.Calibredb.EnvMode = defaultEnvMode
	}
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	paths := make([]string, 0, len(c.Logging.OutputPaths))
	for _, path := range c.Logging.OutputPaths {
		path = strings.TrimSpace(path)
		switch path {
		case "":
			continue
		case "stdout", "stderr":
			paths = append(paths, path)
			continue
		}
		expanded, err := expandPath(path)
		if err != nil {
			return fmt.Errorf("logging.output_paths: %w", err)
		}
		paths = append(paths, expanded)
	}
	c.Logging.OutputPaths = paths
	return nil
}

func (c *Config) normalizeMetrics() error {
	path := strings.TrimSpace(c.Metrics.TextfilePath)
	if path == "" {
		c.Metrics.TextfilePath = ""
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	c.Metrics.TextfilePath = expanded
	return nil
}

func lowerUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
