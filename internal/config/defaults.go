package config

import (
	"maps"
	"os"
	"path/filepath"
	"strings"

	"updatr/internal/runner"
)

const (
	defaultConfigPath                 = "~/.config/updatr/config.toml"
	projectConfigName                 = "updatr.toml"
	defaultStateDirName               = "calibre-updatr"
	defaultStateFile                  = "state.json"
	defaultHistoryFile                = "history.db"
	defaultLogFormat                  = "console"
	defaultLogLevel                   = "info"
	defaultMinScoreToSkipFetch        = 6
	defaultDelayBetweenFetchesSeconds = 0.35
	defaultFetchTimeoutSeconds        = 180
	defaultFetchHeartbeatSeconds      = 15
	defaultCalibredbBinary            = "calibredb"
	defaultFetchBinary                = "fetch-ebook-metadata"
	defaultEnvMode                    = "inherit"

	// PasswordEnv supplies the Content Server password when the file leaves
	// it empty.
	PasswordEnv = "UPDATR_CALIBRE_PASSWORD"
)

var (
	defaultFormats      = []string{"epub", "pdf"}
	defaultEnglishCodes = []string{"en", "eng", "en-us", "en-gb"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		State: State{
			Path:           defaultStatePath(),
			HistoryEnabled: true,
		},
		Formats: Formats{
			List: append([]string(nil), defaultFormats...),
		},
		Policy: Policy{
			IncludeMissingLanguage:     true,
			EnglishCodes:               append([]string(nil), defaultEnglishCodes...),
			DelayBetweenFetchesSeconds: defaultDelayBetweenFetchesSeconds,
		},
		Scoring: Scoring{
			MinScoreToSkipFetch: defaultMinScoreToSkipFetch,
			RequireTitle:        true,
			RequireAuthors:      true,
			TitleWeight:         1,
			AuthorsWeight:       1,
			PublisherWeight:     1,
			PubdateWeight:       1,
			ISBNWeight:          1,
			IdentifiersWeight:   1,
			TagsWeight:          1,
			CommentsWeight:      1,
			CoverWeight:         1,
		},
		Fetch: Fetch{
			Binary:           defaultFetchBinary,
			TimeoutSeconds:   defaultFetchTimeoutSeconds,
			HeartbeatSeconds: defaultFetchHeartbeatSeconds,
			Headless:         true,
			HeadlessEnv:      maps.Clone(runner.DefaultHeadlessEnv),
		},
		Calibredb: Calibredb{
			Binary:               defaultCalibredbBinary,
			EnvMode:              defaultEnvMode,
			CleanEnvPrefixes:     append([]string(nil), runner.DefaultCleanPrefixes...),
			CleanRetrySignatures: append([]string(nil), runner.DefaultRetrySignatures...),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultStatePath() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, defaultStateDirName, defaultStateFile)
	}
	return filepath.Join("~", ".cache", defaultStateDirName, defaultStateFile)
}
