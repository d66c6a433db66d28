package runner

import (
	"fmt"
	"sort"
	"strings"
)

// EnvMode selects how the catalog tool's environment is built.
type EnvMode string

const (
	// EnvInherit runs with the unmodified environment and retries once with
	// EnvClean when the RetryTrigger matches the failure.
	EnvInherit EnvMode = "inherit"
	// EnvClean strips foreign language-runtime variables before the only run.
	EnvClean EnvMode = "clean"
	// EnvOverride retries a failed run with each locale variant in order.
	EnvOverride EnvMode = "override"
)

// ParseEnvMode validates a configured mode name.
func ParseEnvMode(value string) (EnvMode, error) {
	switch EnvMode(strings.ToLower(strings.TrimSpace(value))) {
	case EnvInherit, "":
		return EnvInherit, nil
	case EnvClean:
		return EnvClean, nil
	case EnvOverride:
		return EnvOverride, nil
	default:
		return "", fmt.Errorf("unsupported env mode %q (want inherit, clean, or override)", value)
	}
}

// EnvVariant is a named set of overrides tried by the override strategy.
type EnvVariant struct {
	Name      string
	Overrides map[string]string
}

func (v EnvVariant) apply(env map[string]string) map[string]string {
	out := copyEnv(env)
	for k, val := range v.Overrides {
		out[k] = val
	}
	return out
}

// DefaultLocaleVariants are tried in order by EnvOverride.
var DefaultLocaleVariants = []EnvVariant{
	{Name: "en_US.utf8", Overrides: localeOverrides("en_US.utf8", "en_US:en")},
	{Name: "C.utf8", Overrides: localeOverrides("C.utf8", "en")},
	{Name: "C", Overrides: localeOverrides("C", "en")},
}

func localeOverrides(locale, language string) map[string]string {
	return map[string]string{
		"LC_ALL":                locale,
		"LANG":                  locale,
		"LANGUAGE":              language,
		"CALIBRE_OVERRIDE_LANG": "en",
	}
}

// DefaultCleanPrefixes lists variables set by python tooling that break the
// catalog tool's bundled interpreter.
var DefaultCleanPrefixes = []string{"PYTHON", "VIRTUAL_ENV", "UV_", "PIP_", "CONDA", "POETRY", "PYENV"}

// DefaultRetrySignatures trigger the inherit-mode clean retry.
var DefaultRetrySignatures = []string{"No module named 'msgpack'"}

// DefaultHeadlessEnv lets the fetch tool render without a display.
var DefaultHeadlessEnv = map[string]string{
	"QT_QPA_PLATFORM":             "offscreen",
	"QTWEBENGINE_DISABLE_SANDBOX": "1",
	"QTWEBENGINE_CHROMIUM_FLAGS":  "--no-sandbox --disable-gpu",
	"QTWEBENGINE_DISABLE_GPU":     "1",
	"LIBGL_ALWAYS_SOFTWARE":       "1",
}

var debugEnvKeys = []string{
	"LC_ALL", "LANG", "LANGUAGE", "CALIBRE_OVERRIDE_LANG",
	"PYTHONPATH", "PYTHONHOME", "VIRTUAL_ENV", "CONDA_PREFIX",
}

// RetryTrigger decides whether a failed inherit-mode result is retried with a
// clean environment.
type RetryTrigger func(Result) bool

// StderrContains matches results whose stderr contains any signature.
// Blank signatures are ignored; with none left the trigger never matches.
func StderrContains(signatures ...string) RetryTrigger {
	cleaned := make([]string, 0, len(signatures))
	for _, sig := range signatures {
		if sig = strings.TrimSpace(sig); sig != "" {
			cleaned = append(cleaned, sig)
		}
	}
	return func(res Result) bool {
		for _, sig := range cleaned {
			if strings.Contains(res.Stderr, sig) {
				return true
			}
		}
		return false
	}
}

func environMap(entries []string) map[string]string {
	env := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

func renderEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func cleanEnv(env map[string]string, prefixes []string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		if hasAnyPrefix(k, prefixes) {
			continue
		}
		out[k] = v
	}
	return out
}

func hasAnyPrefix(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
