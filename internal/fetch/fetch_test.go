package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"updatr/internal/metadata"
	"updatr/internal/runner"
	"updatr/internal/services"
)

type stubStreamer struct {
	args      []string
	timeout   time.Duration
	heartbeat time.Duration
	result    runner.Result
	err       error
	writeOPF  string
}

func (s *stubStreamer) ExecuteStreaming(_ context.Context, args []string, timeout, heartbeat time.Duration) (runner.Result, error) {
	s.args = append([]string(nil), args...)
	s.timeout, s.heartbeat = timeout, heartbeat
	if s.writeOPF != "" {
		if err := os.WriteFile(args[2], []byte(s.writeOPF), 0o644); err != nil {
			return runner.Result{}, err
		}
	}
	return s.result, s.err
}

func newRequest(t *testing.T) Request {
	t.Helper()
	dir := t.TempDir()
	return Request{
		Title:     "Dune",
		Authors:   []string{"Frank Herbert", "Brian Herbert"},
		OPFPath:   filepath.Join(dir, "1.opf"),
		CoverPath: filepath.Join(dir, "1.cover.jpg"),
	}
}

func TestArgsPreferISBN(t *testing.T) {
	client, _ := New(&stubStreamer{}, 0, 0)
	req := Request{ISBN: "978", Title: "T", Identifiers: map[string]string{"amazon": "B0"}, OPFPath: "o", CoverPath: "c"}
	want := []string{DefaultBinary, "--opf", "o", "--cover", "c", "--isbn", "978"}
	if got := client.Args(req); !reflect.DeepEqual(got, want) {
		t.Fatalf("args: got %v want %v", got, want)
	}
}

func TestArgsWithoutISBN(t *testing.T) {
	client, _ := New(&stubStreamer{}, 0, 0, WithBinary("/opt/calibre/fetch-ebook-metadata"))
	req := Request{
		Title:       "T",
		Authors:     []string{"A", "B"},
		Identifiers: map[string]string{"goodreads": "2", "amazon": "1"},
		OPFPath:     "o",
		CoverPath:   "c",
	}
	want := []string{
		"/opt/calibre/fetch-ebook-metadata", "--opf", "o", "--cover", "c",
		"--identifier", "amazon:1", "--identifier", "goodreads:2",
		"--title", "T", "--authors", "A, B",
	}
	if got := client.Args(req); !reflect.DeepEqual(got, want) {
		t.Fatalf("args: got %v want %v", got, want)
	}
}

func TestRequestForItem(t *testing.T) {
	items, err := metadata.ParseItems([]byte(`[{"id": 1, "title": "T", "authors": ["A"], "isbn": "978-1", "identifiers": {"Amazon": "X"}}]`))
	if err != nil {
		t.Fatal(err)
	}
	req := RequestFor(items[0], "o", "c")
	if req.ISBN != "9781" || req.Title != "T" || req.Identifiers["amazon"] != "X" || req.OPFPath != "o" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestFetchSuccess(t *testing.T) {
	stub := &stubStreamer{writeOPF: "<package/>"}
	client, _ := New(stub, 3*time.Minute, 15*time.Second)
	if err := client.Fetch(context.Background(), newRequest(t)); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if stub.timeout != 3*time.Minute || stub.heartbeat != 15*time.Second {
		t.Fatalf("timeouts not forwarded: %v %v", stub.timeout, stub.heartbeat)
	}
}

func TestFetchTimeout(t *testing.T) {
	stub := &stubStreamer{result: runner.Result{ExitCode: runner.ExitTimedOut, TimedOut: true}}
	client, _ := New(stub, 180*time.Second, 0)
	err := client.Fetch(context.Background(), newRequest(t))
	if !services.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "fetch-ebook-metadata timed out after 180s") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestFetchFailures(t *testing.T) {
	cases := []struct {
		name string
		stub *stubStreamer
		want string
	}{
		{"exit code", &stubStreamer{result: runner.Result{ExitCode: 1, Stderr: "no results"}}, "failed rc=1 stderr=no results"},
		{"no opf", &stubStreamer{}, "produced no OPF"},
		{"spawn", &stubStreamer{err: errors.New("exec failed")}, "start fetch-ebook-metadata"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := New(tc.stub, time.Minute, 0)
			err := client.Fetch(context.Background(), newRequest(t))
			if !errors.Is(err, services.ErrExternalTool) {
				t.Fatalf("expected external tool error, got %v", err)
			}
			if services.IsTimeout(err) {
				t.Fatalf("non-timeout failure tagged as timeout: %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("message %q does not contain %q", err.Error(), tc.want)
			}
		})
	}
}

func TestFetchRemovesStaleOutput(t *testing.T) {
	req := newRequest(t)
	if err := os.WriteFile(req.OPFPath, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	client, _ := New(&stubStreamer{}, time.Minute, 0)
	if err := client.Fetch(context.Background(), req); err == nil {
		t.Fatal("stale OPF must not count as fetched output")
	}
}

func TestFetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client, _ := New(&stubStreamer{err: context.Canceled}, time.Minute, 0)
	if err := client.Fetch(ctx, newRequest(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
