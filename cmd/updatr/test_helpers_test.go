package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	baseDir     string
	libraryDir  string
	statePath   string
	historyPath string
	configPath  string
	binDir      string
	callsPath   string
}

const testListing = `[
 {"id": 5, "title": "Emma", "authors": ["Jane Austen"], "publisher": "P", "pubdate": "1815-12-23T00:00:00+00:00",
  "isbn": "9780141439587", "tags": ["Fiction"], "comments": "Blurb", "cover": "/lib/cover.jpg",
  "languages": ["eng"], "formats": ["EPUB"]},
 {"id": 9, "title": "Dune", "authors": ["Frank Herbert"], "formats": ["PDF"]}
]`

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("XDG_CACHE_HOME", filepath.Join(homeDir, ".cache"))

	env := &cliTestEnv{
		baseDir:    base,
		libraryDir: filepath.Join(base, "library"),
		statePath:  filepath.Join(base, "state", "state.json"),
		binDir:     filepath.Join(base, "bin"),
		configPath: filepath.Join(homeDir, ".config", "updatr", "config.toml"),
	}
	env.historyPath = filepath.Join(filepath.Dir(env.statePath), "history.db")
	env.callsPath = filepath.Join(env.binDir, "calls.log")
	for _, dir := range []string{env.libraryDir, env.binDir, filepath.Dir(env.configPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	listingPath := filepath.Join(env.binDir, "listing.json")
	if err := os.WriteFile(listingPath, []byte(testListing), 0o644); err != nil {
		t.Fatalf("write listing: %v", err)
	}
	writeStub(t, filepath.Join(env.binDir, "calibredb"), fmt.Sprintf(`
echo "$*" >> '%s'
case "$*" in
  *" list "*) cat '%s' ;;
esac
exit 0
`, env.callsPath, listingPath))
	writeStub(t, filepath.Join(env.binDir, "fetch-ebook-metadata"), `
while [ $# -gt 0 ]; do
  if [ "$1" = "--opf" ]; then shift; echo '<package/>' > "$1"; fi
  shift
done
exit 0
`)
	writeTestConfig(t, env)
	return env
}

func writeStub(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", path, err)
	}
}

func writeTestConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()
	content := fmt.Sprintf(`[library]
path = %q

[state]
path = %q

[policy]
delay_between_fetches_seconds = 0

[fetch]
binary = %q

[calibredb]
binary = %q

[logging]
level = "error"
`, env.libraryDir, env.statePath,
		filepath.Join(env.binDir, "fetch-ebook-metadata"),
		filepath.Join(env.binDir, "calibredb"))
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
