package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"updatr/internal/logging"
	"updatr/internal/services"
)

func TestConsoleLoggerWritesHeaderAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "pipeline")
	logger.Info("item processed", logging.Int64(logging.FieldItemID, 17), logging.String("action", "embed"))

	out := buf.String()
	for _, fragment := range []string{"INFO", "[pipeline]", "Item #17", "item processed", "- action: embed"} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %q in console output %q", fragment, out)
		}
	}
	if strings.Contains(out, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", out)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller", logging.String(logging.FieldRunID, "run-1"))

	out := buf.String()
	if !strings.Contains(out, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", out)
	}
	if !strings.Contains(out, "run_id: run-1") {
		t.Fatalf("expected run id detail at debug level, got %q", out)
	}
}

func TestConsoleLoggerCapsInfoFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	attrs := make([]logging.Attr, 0, 10)
	for _, key := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		attrs = append(attrs, logging.String(key, "v"))
	}
	logger.Info("wide", logging.Args(attrs...)...)

	if !strings.Contains(buf.String(), "+ 2 more fields hidden") {
		t.Fatalf("expected hidden field summary, got %q", buf.String())
	}
}

func TestJSONLoggerRenamesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "updatr.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("careful", logging.String("stream", "stderr"))

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if record["level"] != "warn" {
		t.Fatalf("level: got %v want warn", record["level"])
	}
	if record["msg"] != "careful" {
		t.Fatalf("msg: got %v want careful", record["msg"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key in %v", record)
	}
}

func TestNewRejectsUnknownFormatAndLevel(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := logging.New(logging.Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	base, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRunID(services.WithItemID(context.Background(), 9), "run-9")
	logging.WithContext(ctx, base).Info("tagged")

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if record[logging.FieldItemID] != float64(9) {
		t.Fatalf("item_id: got %v want 9", record[logging.FieldItemID])
	}
	if record[logging.FieldRunID] != "run-9" {
		t.Fatalf("run_id: got %v want run-9", record[logging.FieldRunID])
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "cover apply failed", "cover_apply_failed",
		logging.String(logging.FieldImpact, "item keeps its old cover"))

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if record[logging.FieldEventType] != "cover_apply_failed" {
		t.Fatalf("event_type: got %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] != "check logs for details" {
		t.Fatalf("error_hint: got %v", record[logging.FieldErrorHint])
	}
	if record[logging.FieldImpact] != "item keeps its old cover" {
		t.Fatalf("impact: got %v", record[logging.FieldImpact])
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("expected nop logger to be disabled at every level")
	}
	logging.NewComponentLogger(nil, "x").Info("ignored")
}
