package services_test

import (
	"errors"
	"strings"
	"testing"

	"updatr/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "catalog", "set_metadata", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"catalog", "set_metadata", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestIsTimeout(t *testing.T) {
	timeoutErr := services.Wrap(services.ErrTimeout, "fetch", "fetch-ebook-metadata", "timed out after 5s", nil)
	if !services.IsTimeout(timeoutErr) {
		t.Fatalf("expected timeout classification for %v", timeoutErr)
	}

	toolErr := services.Wrap(services.ErrExternalTool, "catalog", "embed_metadata", "rc=1", errors.New("io"))
	if services.IsTimeout(toolErr) {
		t.Fatalf("expected tool error not to be a timeout: %v", toolErr)
	}

	if services.IsTimeout(nil) {
		t.Fatal("expected nil not to be a timeout")
	}
}

func TestSetupMarksOnce(t *testing.T) {
	err := services.Setup("check binaries", errors.New("calibredb not found"))
	if !errors.Is(err, services.ErrSetup) {
		t.Fatalf("expected setup marker, got %v", err)
	}
	again := services.Setup("run", err)
	if again != err {
		t.Fatalf("expected already-marked error to pass through, got %v", again)
	}
	if services.Setup("noop", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
