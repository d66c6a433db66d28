package preflight

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"updatr/internal/config"
	"updatr/internal/services"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckLibrary(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		library config.Library
		pass    bool
	}{
		{name: "local dir", library: config.Library{Path: dir}, pass: true},
		{name: "missing dir", library: config.Library{Path: filepath.Join(dir, "missing")}, pass: false},
		{name: "nothing", library: config.Library{}, pass: false},
		{name: "url", library: config.Library{URL: "http://localhost:8081/#books/"}, pass: true},
		{name: "url wins", library: config.Library{Path: filepath.Join(dir, "missing"), URL: "https://calibre.lan"}, pass: true},
		{name: "bad scheme", library: config.Library{URL: "ftp://calibre.lan"}, pass: false},
		{name: "no host", library: config.Library{URL: "http://"}, pass: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{Library: tc.library}
			if got := CheckLibrary(cfg); got.Passed != tc.pass {
				t.Fatalf("passed: got %v want %v (%s)", got.Passed, tc.pass, got.Detail)
			}
		})
	}
}

func TestCheckStateDirCreates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache", "calibre-updatr")
	result := CheckStateDir("State directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory to be created: %v", err)
	}
	if result := CheckStateDir("State directory", ""); result.Passed {
		t.Fatal("expected failure for empty path")
	}
}

func TestCheckStateDirBlockedByFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckStateDir("State directory", filepath.Join(blocker, "state")); result.Passed {
		t.Fatal("expected failure when a file blocks the directory")
	}
}

func writeStub(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckSystemDepsIncludesXvfbWhenEnabled(t *testing.T) {
	cfg := config.Default()
	if got := len(CheckSystemDeps(&cfg)); got != 2 {
		t.Fatalf("expected 2 requirements, got %d", got)
	}
	cfg.Fetch.UseXvfb = true
	statuses := CheckSystemDeps(&cfg)
	if len(statuses) != 3 || statuses[2].Name != "xvfb-run" {
		t.Fatalf("expected xvfb-run requirement, got %#v", statuses)
	}
}

func TestVerify(t *testing.T) {
	bin := t.TempDir()
	cfg := config.Default()
	cfg.Library.Path = t.TempDir()
	cfg.State.Path = filepath.Join(t.TempDir(), "state.json")
	cfg.State.HistoryPath = filepath.Join(filepath.Dir(cfg.State.Path), "history.db")
	cfg.Calibredb.Binary = writeStub(t, bin, "calibredb")
	cfg.Fetch.Binary = writeStub(t, bin, "fetch-ebook-metadata")

	if err := Verify(&cfg); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	cfg.Fetch.Binary = filepath.Join(bin, "missing-fetch")
	cfg.Library.Path = filepath.Join(t.TempDir(), "gone")
	err := Verify(&cfg)
	if !errors.Is(err, services.ErrSetup) {
		t.Fatalf("expected setup fault, got %v", err)
	}
	for _, want := range []string{"Library", "fetch-ebook-metadata"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}
