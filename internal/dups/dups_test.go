package dups_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"updatr/internal/dups"
	"updatr/internal/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func scan(t *testing.T, opts dups.Options) dups.Report {
	t.Helper()
	opts.Logger = logging.NewNop()
	report, err := dups.Scan(context.Background(), opts)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return report
}

func TestScanGroupsIdenticalFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Author A", "Book (1)", "book.epub"), "same-bytes")
	writeFile(t, filepath.Join(root, "Author B", "Book (2)", "copy.EPUB"), "same-bytes")
	writeFile(t, filepath.Join(root, "Author C", "Book (3)", "other.pdf"), "same-bytes")
	writeFile(t, filepath.Join(root, "Author D", "Book (4)", "unique.epub"), "different")
	writeFile(t, filepath.Join(root, "Author E", "Book (5)", "notes.xyz"), "same-bytes")

	report := scan(t, dups.Options{Root: root, Workers: 2})
	if report.Candidates != 4 || report.Hashed != 4 {
		t.Fatalf("candidates/hashed: got %d/%d want 4/4", report.Candidates, report.Hashed)
	}
	if len(report.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(report.Groups))
	}
	group := report.Groups[0]
	if len(group.Files) != 3 || group.Bytes != int64(len("same-bytes")) {
		t.Fatalf("unexpected group: %#v", group)
	}
	if !strings.HasSuffix(group.Files[0], "book.epub") {
		t.Fatalf("expected sorted paths, got %v", group.Files)
	}
	if len(group.Hash) != 64 {
		t.Fatalf("expected 256-bit hex digest, got %q", group.Hash)
	}
	if got := report.Wasted(); got != 2*int64(len("same-bytes")) {
		t.Fatalf("wasted: got %d", got)
	}
}

func TestScanOrdersGroups(t *testing.T) {
	root := t.TempDir()
	// two-member group of large files
	writeFile(t, filepath.Join(root, "a", "big1.pdf"), strings.Repeat("x", 100))
	writeFile(t, filepath.Join(root, "b", "big2.pdf"), strings.Repeat("x", 100))
	// three-member group of small files
	for _, dir := range []string{"c", "d", "e"} {
		writeFile(t, filepath.Join(root, dir, "small.epub"), "s")
	}
	// two-member group of medium files
	writeFile(t, filepath.Join(root, "f", "mid1.epub"), strings.Repeat("m", 10))
	writeFile(t, filepath.Join(root, "g", "mid2.epub"), strings.Repeat("m", 10))

	report := scan(t, dups.Options{Root: root})
	if len(report.Groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(report.Groups))
	}
	sizes := []int64{report.Groups[0].Bytes, report.Groups[1].Bytes, report.Groups[2].Bytes}
	if sizes[0] != 1 || sizes[1] != 100 || sizes[2] != 10 {
		t.Fatalf("unexpected order by size: %v", sizes)
	}
}

func TestScanFilters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "metadata.opf"), "<opf/>")
	writeFile(t, filepath.Join(root, "b", "metadata.opf"), "<opf/>")
	writeFile(t, filepath.Join(root, "a", "tiny.epub"), "t")
	writeFile(t, filepath.Join(root, "b", "tiny.epub"), "t")
	writeFile(t, filepath.Join(root, "a", "book.mobi"), "mobi-content")
	writeFile(t, filepath.Join(root, "b", "book.mobi"), "mobi-content")

	tests := []struct {
		name   string
		opts   dups.Options
		groups int
	}{
		{name: "defaults", opts: dups.Options{}, groups: 2},
		{name: "sidecars", opts: dups.Options{IncludeSidecars: true}, groups: 3},
		{name: "min size", opts: dups.Options{MinSize: 2}, groups: 1},
		{name: "extension filter", opts: dups.Options{Extensions: []string{".EPUB"}}, groups: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.Root = root
			report := scan(t, tc.opts)
			if len(report.Groups) != tc.groups {
				t.Fatalf("groups: got %d want %d", len(report.Groups), tc.groups)
			}
		})
	}
}

func TestScanSymlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "real", "book.epub"), "content")
	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	// loop back to the root
	if err := os.Symlink(root, filepath.Join(root, "real", "loop")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	report := scan(t, dups.Options{Root: root})
	if report.Candidates != 1 || len(report.Groups) != 0 {
		t.Fatalf("without follow: candidates=%d groups=%d", report.Candidates, len(report.Groups))
	}

	report = scan(t, dups.Options{Root: root, FollowSymlinks: true})
	if report.Candidates != 1 {
		t.Fatalf("with follow: expected visited-directory dedupe, got %d candidates", report.Candidates)
	}
}

func TestScanRejectsMissingRoot(t *testing.T) {
	if _, err := dups.Scan(context.Background(), dups.Options{Root: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatal("expected error for missing root")
	}
	if _, err := dups.Scan(context.Background(), dups.Options{}); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestScanHonorsCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "book.epub"), "content")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := dups.Scan(ctx, dups.Options{Root: root, Logger: logging.NewNop()}); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := dups.WriteText(&buf, dups.Report{}); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No duplicates found") {
		t.Fatalf("unexpected empty output: %q", buf.String())
	}

	buf.Reset()
	report := dups.Report{Groups: []dups.Group{{Bytes: 2048, Hash: "abc", Files: []string{"/x/a.epub", "/y/b.epub"}}}}
	if err := dups.WriteText(&buf, report); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Duplicate groups: 1 (2.0 KiB reclaimable)", "== Group 1: 2 files | 2.0 KiB each | blake2b abc ==", "  - /y/b.epub"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := dups.Write(&buf, dups.Report{}, dups.FormatJSON); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("expected empty array, got %q", buf.String())
	}

	buf.Reset()
	report := dups.Report{Groups: []dups.Group{{Bytes: 5, Hash: "abc", Files: []string{"a", "b"}}}}
	if err := dups.Write(&buf, report, dups.FormatJSON); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0]["blake2b"] != "abc" {
		t.Fatalf("unexpected json: %s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := dups.ParseFormat(""); err != nil || f != dups.FormatText {
		t.Fatalf("empty: got %q, %v", f, err)
	}
	if f, err := dups.ParseFormat("JSON"); err != nil || f != dups.FormatJSON {
		t.Fatalf("JSON: got %q, %v", f, err)
	}
	if _, err := dups.ParseFormat("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
}
