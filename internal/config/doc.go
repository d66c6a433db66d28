// Package config loads, normalizes, and validates updatr configuration.
//
// Configuration lives in a TOML file (default ~/.config/updatr/config.toml,
// falling back to ./updatr.toml). Every key has a default so an empty file is
// valid apart from the library location. Load expands ~ in paths, applies
// environment fallbacks, and returns a fully validated Config. Command-line
// flags are applied by the CLI on top of the loaded value.
package config
