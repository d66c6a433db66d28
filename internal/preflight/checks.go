package preflight

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"updatr/internal/config"
)

// CheckLibrary verifies the configured library. A Content Server URL must be
// http(s) with a host; a local library must be an accessible directory.
func CheckLibrary(cfg *config.Config) Result {
	const name = "Library"
	if cfg.IsRemote() {
		return checkLibraryURL(name, cfg.Library.URL)
	}
	if strings.TrimSpace(cfg.Library.Path) == "" {
		return Result{Name: name, Detail: "no library path or url configured"}
	}
	return CheckDirectoryAccess(name, cfg.Library.Path)
}

func checkLibraryURL(name, raw string) Result {
	normalized := config.NormalizeLibraryURL(raw)
	parsed, err := url.Parse(normalized)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", raw, err)}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: scheme must be http or https)", normalized)}
	}
	if parsed.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: missing host)", normalized)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (content server)", normalized)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckStateDir creates dir when missing and verifies it is writable.
func CheckStateDir(name, dir string) Result {
	if strings.TrimSpace(dir) == "" || dir == "." {
		return Result{Name: name, Detail: "path not configured"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: create: %v)", dir, err)}
	}
	return CheckDirectoryAccess(name, dir)
}
