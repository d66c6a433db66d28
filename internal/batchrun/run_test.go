package batchrun_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"updatr/internal/batchrun"
	"updatr/internal/config"
	"updatr/internal/history"
	"updatr/internal/logging"
	"updatr/internal/pipeline"
	"updatr/internal/services"
	"updatr/internal/state"
)

const listing = `[
 {"id": 1, "title": "Emma", "authors": ["Jane Austen"], "publisher": "P", "pubdate": "1815-12-23T00:00:00+00:00",
  "isbn": "9780141439587", "tags": ["Fiction"], "comments": "Blurb", "cover": "/lib/cover.jpg",
  "languages": ["eng"], "formats": ["/lib/Jane Austen/Emma (1)/Emma - Jane Austen.epub"]},
 {"id": 2, "title": "Dune", "authors": ["Frank Herbert"], "languages": [], "formats": ["/lib/Frank Herbert/Dune (2)/Dune.pdf"]},
 {"id": 3, "title": "Der Prozess", "authors": ["Franz Kafka"], "languages": ["deu"], "formats": ["/lib/k.epub"]}
]`

func writeScript(t *testing.T, path, body string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", path, err)
	}
	return path
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	bin := t.TempDir()
	listingPath := filepath.Join(bin, "listing.json")
	if err := os.WriteFile(listingPath, []byte(listing), 0o644); err != nil {
		t.Fatalf("write listing: %v", err)
	}
	calls := filepath.Join(bin, "calls.log")

	cfg := config.Default()
	cfg.Library.Path = t.TempDir()
	stateDir := t.TempDir()
	cfg.State.Path = filepath.Join(stateDir, "state.json")
	cfg.State.HistoryPath = filepath.Join(stateDir, "history.db")
	cfg.Metrics.TextfilePath = filepath.Join(stateDir, "metrics", "updatr.prom")
	cfg.Policy.DelayBetweenFetchesSeconds = 0
	cfg.Calibredb.Binary = writeScript(t, filepath.Join(bin, "calibredb"), `
echo "$*" >> '`+calls+`'
case "$*" in
  *" list "*) cat '`+listingPath+`' ;;
esac
exit 0
`)
	cfg.Fetch.Binary = writeScript(t, filepath.Join(bin, "fetch-ebook-metadata"), `
echo "fetch $*" >> '`+calls+`'
while [ $# -gt 0 ]; do
  if [ "$1" = "--opf" ]; then shift; echo '<package/>' > "$1"; fi
  shift
done
exit 0
`)
	return &cfg
}

func TestRunProcessesCandidates(t *testing.T) {
	cfg := newConfig(t)
	ctx := context.Background()

	report, err := batchrun.Run(ctx, cfg, batchrun.Options{Logger: logging.NewNop()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Candidates != 2 {
		t.Fatalf("candidates: got %d want 2 (non-English item filtered)", report.Candidates)
	}
	if report.Summary.Succeeded != 2 || report.Summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", report.Summary)
	}
	actions := map[int64]pipeline.Action{}
	for _, out := range report.Outcomes {
		actions[out.ItemID] = out.Action
	}
	if actions[1] != pipeline.ActionEmbed || actions[2] != pipeline.ActionFetch {
		t.Fatalf("unexpected actions: %v", actions)
	}

	store, err := state.Open(cfg.State.Path, nil)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	if rec, ok := store.Get(1); !ok || rec.Status != state.StatusEmbeddedOnly {
		t.Fatalf("item 1 record: %+v", rec)
	}
	if rec, ok := store.Get(2); !ok || rec.Status != state.StatusDone {
		t.Fatalf("item 2 record: %+v", rec)
	}

	ledger, err := history.Open(cfg.State.HistoryPath, nil)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer ledger.Close()
	run, err := ledger.GetRun(ctx, report.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Succeeded != 2 || run.FinishedAt == nil {
		t.Fatalf("unexpected history run: %+v", run)
	}
	events, err := ledger.RunEvents(ctx, report.RunID)
	if err != nil || len(events) != 2 {
		t.Fatalf("RunEvents: %d events, err %v", len(events), err)
	}

	data, err := os.ReadFile(cfg.Metrics.TextfilePath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), `updatr_items_total{action="fetch",result="done"} 1`) {
		t.Fatalf("metrics missing fetch counter:\n%s", data)
	}

	// A second run finds both items resting and only lists the catalog.
	before := len(toolCalls(t, cfg))
	report, err = batchrun.Run(ctx, cfg, batchrun.Options{Logger: logging.NewNop()})
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if report.Summary.Skipped != 2 {
		t.Fatalf("second run summary: %+v", report.Summary)
	}
	calls := toolCalls(t, cfg)[before:]
	if len(calls) != 1 || !strings.Contains(calls[0], " list ") {
		t.Fatalf("second run should only list candidates, got %q", calls)
	}
}

// toolCalls returns the invocations logged by the stub tools.
func toolCalls(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(filepath.Dir(cfg.Calibredb.Binary), "calls.log"))
	if err != nil {
		t.Fatalf("read calls: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestRunDryRunWritesNothing(t *testing.T) {
	cfg := newConfig(t)
	cfg.Policy.DryRun = true

	report, err := batchrun.Run(context.Background(), cfg, batchrun.Options{Logger: logging.NewNop()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.DryRun || report.Summary.Total() != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := os.Stat(cfg.State.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("dry run wrote state: %v", err)
	}
	if _, err := os.Stat(cfg.State.HistoryPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("dry run wrote history: %v", err)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	cfg := newConfig(t)
	lock, err := state.AcquireLock(cfg.State.Path)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()

	_, err = batchrun.Run(context.Background(), cfg, batchrun.Options{Logger: logging.NewNop()})
	if !errors.Is(err, services.ErrSetup) || !errors.Is(err, state.ErrLocked) {
		t.Fatalf("expected locked setup fault, got %v", err)
	}
}

func TestRunFailsPreflightForMissingTool(t *testing.T) {
	cfg := newConfig(t)
	cfg.Fetch.Binary = filepath.Join(t.TempDir(), "missing")

	_, err := batchrun.Run(context.Background(), cfg, batchrun.Options{Logger: logging.NewNop()})
	if !errors.Is(err, services.ErrSetup) {
		t.Fatalf("expected setup fault, got %v", err)
	}
}
