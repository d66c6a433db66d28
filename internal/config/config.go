package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"updatr/internal/metadata"
)

//go:embed sample_config.toml
var sampleConfig string

// Library locates the catalog: a local directory or a Content Server URL.
// When both are set the URL wins.
type Library struct {
	Path string `toml:"path"`
	URL  string `toml:"url"`
}

// ContentServer holds the login for remote libraries.
type ContentServer struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// State configures the per-item state file and the run history ledger.
type State struct {
	Path           string `toml:"path"`
	HistoryEnabled bool   `toml:"history_enabled"`
	HistoryPath    string `toml:"history_path"`
}

// Formats lists the file formats an item must carry to be considered.
type Formats struct {
	List []string `toml:"list"`
}

// Policy controls which items are processed and how.
type Policy struct {
	DryRun                     bool     `toml:"dry_run"`
	IncludeMissingLanguage     bool     `toml:"include_missing_language"`
	EnglishCodes               []string `toml:"english_codes"`
	ReprocessOnMetadataChange  bool     `toml:"reprocess_on_metadata_change"`
	DelayBetweenFetchesSeconds float64  `toml:"delay_between_fetches_seconds"`
}

// Scoring decides when existing metadata is complete enough to skip a fetch.
type Scoring struct {
	MinScoreToSkipFetch int  `toml:"min_score_to_skip_fetch"`
	RequireTitle        bool `toml:"require_title"`
	RequireAuthors      bool `toml:"require_authors"`
	TitleWeight         int  `toml:"title_weight"`
	AuthorsWeight       int  `toml:"authors_weight"`
	PublisherWeight     int  `toml:"publisher_weight"`
	PubdateWeight       int  `toml:"pubdate_weight"`
	ISBNWeight          int  `toml:"isbn_weight"`
	IdentifiersWeight   int  `toml:"identifiers_weight"`
	TagsWeight          int  `toml:"tags_weight"`
	CommentsWeight      int  `toml:"comments_weight"`
	CoverWeight         int  `toml:"cover_weight"`
}

// Fetch configures the metadata download tool.
type Fetch struct {
	Binary           string            `toml:"binary"`
	TimeoutSeconds   int               `toml:"timeout_seconds"`
	HeartbeatSeconds int               `toml:"heartbeat_seconds"`
	Headless         bool              `toml:"headless"`
	UseXvfb          bool              `toml:"use_xvfb"`
	HeadlessEnv      map[string]string `toml:"headless_env"`
}

// Calibredb configures the catalog tool and its environment handling.
type Calibredb struct {
	Binary               string   `toml:"binary"`
	EnvMode              string   `toml:"env_mode"`
	DebugEnv             bool     `toml:"debug_env"`
	CleanEnvPrefixes     []string `toml:"clean_env_prefixes"`
	CleanRetrySignatures []string `toml:"clean_retry_signatures"`
	TimeoutSeconds       int      `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format      string   `toml:"format"`
	Level       string   `toml:"level"`
	OutputPaths []string `toml:"output_paths"`
}

// Metrics configures the node_exporter textfile output. Empty disables it.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Config encapsulates all configuration values for updatr.
type Config struct {
	Library       Library       `toml:"library"`
	ContentServer ContentServer `toml:"content_server"`
	State         State         `toml:"state"`
	Formats       Formats       `toml:"formats"`
	Policy        Policy        `toml:"policy"`
	Scoring       Scoring       `toml:"scoring"`
	Fetch         Fetch         `toml:"fetch"`
	Calibredb     Calibredb     `toml:"calibredb"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg, resolvedPath, exists, err := load(path)
	if err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return cfg, resolvedPath, exists, nil
}

// LoadUnvalidated parses and normalizes a configuration file without
// validating it, so commands that only inspect state can run before the
// library is configured.
func LoadUnvalidated(path string) (*Config, string, bool, error) {
	return load(path)
}

func load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// LibrarySpec returns the library argument handed to the catalog tool.
func (c *Config) LibrarySpec() string {
	if c.Library.URL != "" {
		return c.Library.URL
	}
	return c.Library.Path
}

// IsRemote reports whether the library is a Content Server URL.
func (c *Config) IsRemote() bool {
	return c.Library.URL != ""
}

// FetchTimeout bounds one fetch tool run.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// FetchHeartbeat is the silence interval after which a fetch logs progress.
func (c *Config) FetchHeartbeat() time.Duration {
	return time.Duration(c.Fetch.HeartbeatSeconds) * time.Second
}

// FetchDelay is the pause after each successful fetch.
func (c *Config) FetchDelay() time.Duration {
	return time.Duration(c.Policy.DelayBetweenFetchesSeconds * float64(time.Second))
}

// CalibredbTimeout bounds one catalog tool run. Zero means no limit.
func (c *Config) CalibredbTimeout() time.Duration {
	return time.Duration(c.Calibredb.TimeoutSeconds) * time.Second
}

// ScoringPolicy converts the [scoring] section into the scoring policy.
func (c *Config) ScoringPolicy() metadata.Scoring {
	s := c.Scoring
	return metadata.Scoring{
		MinScore:       s.MinScoreToSkipFetch,
		RequireTitle:   s.RequireTitle,
		RequireAuthors: s.RequireAuthors,
		Weights: metadata.Weights{
			Title:       s.TitleWeight,
			Authors:     s.AuthorsWeight,
			Publisher:   s.PublisherWeight,
			Pubdate:     s.PubdateWeight,
			ISBN:        s.ISBNWeight,
			Identifiers: s.IdentifiersWeight,
			Tags:        s.TagsWeight,
			Comments:    s.CommentsWeight,
			Cover:       s.CoverWeight,
		},
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
