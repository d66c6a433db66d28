package preflight

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"updatr/internal/config"
	"updatr/internal/deps"
	"updatr/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem and library checks for cfg.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckLibrary(cfg),
		CheckStateDir("State directory", filepath.Dir(cfg.State.Path)),
	}
	if cfg.State.HistoryEnabled && cfg.State.HistoryPath != "" {
		historyDir := filepath.Dir(cfg.State.HistoryPath)
		if historyDir != filepath.Dir(cfg.State.Path) {
			results = append(results, CheckStateDir("History directory", historyDir))
		}
	}
	if cfg.Metrics.TextfilePath != "" {
		results = append(results, CheckStateDir("Metrics directory", filepath.Dir(cfg.Metrics.TextfilePath)))
	}
	return results
}

// CheckSystemDeps resolves the tools a run invokes.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "calibredb",
			Command:     cfg.Calibredb.Binary,
			Description: "Required to list, update, and embed catalog metadata",
		},
		{
			Name:        "fetch-ebook-metadata",
			Command:     cfg.Fetch.Binary,
			Description: "Required to download metadata and covers",
		},
	}
	if cfg.Fetch.UseXvfb {
		requirements = append(requirements, deps.Requirement{
			Name:        "xvfb-run",
			Command:     "xvfb-run",
			Description: "Wraps the fetch tool in a virtual display",
		})
	}
	return deps.CheckBinaries(requirements)
}

// Verify runs every check and returns a setup fault naming each failure.
func Verify(cfg *config.Config) error {
	var problems []string
	for _, r := range RunAll(cfg) {
		if !r.Passed {
			problems = append(problems, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	for _, s := range deps.Missing(CheckSystemDeps(cfg)) {
		problems = append(problems, fmt.Sprintf("%s: %s", s.Name, s.Detail))
	}
	if len(problems) == 0 {
		return nil
	}
	return services.Setup("preflight", errors.New(strings.Join(problems, "; ")))
}
