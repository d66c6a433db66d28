package state_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"updatr/internal/state"
)

func TestLoadMissingFileReturnsEmptyStore(t *testing.T) {
	file, err := state.Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if file.Version != state.CurrentVersion {
		t.Fatalf("version: got %d want %d", file.Version, state.CurrentVersion)
	}
	if len(file.Items) != 0 {
		t.Fatalf("expected empty store, got %d items", len(file.Items))
	}
}

func TestLoadCorruptFileIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := state.Load(path)
	if !errors.Is(err, state.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestLoadUpgradesVersionZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	legacy := `{"version":0,"books":{"12":{"status":"skipped_good_enough","last_hash":"abc","last_attempt_utc":"2024-03-01T10:00:00+00:00","fail_count":0}}}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	file, err := state.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if file.Version != 1 {
		t.Fatalf("version: got %d want 1", file.Version)
	}
	item, ok := file.Get("12")
	if !ok {
		t.Fatal("expected item 12 to survive the upgrade")
	}
	if item.Status != state.StatusSkipped {
		t.Fatalf("status: got %q want %q", item.Status, state.StatusSkipped)
	}
	if item.LastFingerprint != "abc" {
		t.Fatalf("fingerprint: got %q want abc", item.LastFingerprint)
	}
}

func TestLoadRejectsFutureVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"version":7,"books":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := state.Load(path); !errors.Is(err, state.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for unknown version, got %v", err)
	}
}

func TestSaveRoundTripStampsUpdatedAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "state.json")
	file := state.NewFile()
	ok := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	file.Put("7", state.ItemState{
		Status:          state.StatusDone,
		LastFingerprint: "deadbeef",
		LastAttempt:     ok,
		LastSuccess:     &ok,
		Message:         "updated",
	})

	before := time.Now().UTC().Add(-time.Second)
	if err := state.Save(path, file); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "}\n") {
		t.Fatalf("expected trailing newline after pretty JSON, got %q", data)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode saved file: %v", err)
	}
	for _, key := range []string{"version", "updated_at_utc", "books"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("expected key %q in saved state", key)
		}
	}

	loaded, err := state.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.UpdatedAt == nil || loaded.UpdatedAt.Before(before) {
		t.Fatalf("updated_at not stamped: %v", loaded.UpdatedAt)
	}
	item, found := loaded.Get("7")
	if !found {
		t.Fatal("expected item 7")
	}
	if item.Status != state.StatusDone || item.LastFingerprint != "deadbeef" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.LastSuccess == nil || !item.LastSuccess.Equal(ok) {
		t.Fatalf("last success: got %v want %v", item.LastSuccess, ok)
	}
}

func TestRestingStatuses(t *testing.T) {
	cases := []struct {
		status state.Status
		want   bool
	}{
		{state.StatusDone, true},
		{state.StatusSkipped, true},
		{state.StatusEmbeddedOnly, true},
		{state.StatusFailedPermanent, true},
		{state.StatusStarted, false},
		{state.StatusFailed, false},
		{state.Status(""), false},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			if got := tc.status.Resting(); got != tc.want {
				t.Fatalf("Resting(%q): got %v want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestFileIDsSortNumerically(t *testing.T) {
	file := state.NewFile()
	for _, id := range []string{"10", "2", "1"} {
		file.Put(id, state.ItemState{Status: state.StatusDone})
	}
	got := strings.Join(file.IDs(), ",")
	if got != "1,2,10" {
		t.Fatalf("ids: got %q want 1,2,10", got)
	}
}
