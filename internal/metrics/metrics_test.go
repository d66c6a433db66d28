package metrics_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"updatr/internal/metrics"
	"updatr/internal/pipeline"
	"updatr/internal/runner"
)

func TestRecordCountsByActionAndResult(t *testing.T) {
	c := metrics.New()
	ctx := context.Background()
	c.Record(ctx, pipeline.Outcome{Action: pipeline.ActionFetch, Result: pipeline.ResultDone})
	c.Record(ctx, pipeline.Outcome{Action: pipeline.ActionFetch, Result: pipeline.ResultDone})
	c.Record(ctx, pipeline.Outcome{Action: pipeline.ActionSkip, Result: pipeline.ResultSkipped})

	expected := `
# HELP updatr_items_total Items processed, by chosen action and result.
# TYPE updatr_items_total counter
updatr_items_total{action="fetch",result="done"} 2
updatr_items_total{action="skip",result="skipped"} 1
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "updatr_items_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestObserveLabelsOutcome(t *testing.T) {
	c := metrics.New()
	c.Observe("calibredb", runner.Result{ExitCode: 0, Duration: time.Second})
	c.Observe("calibredb", runner.Result{ExitCode: 1, Duration: time.Second})
	c.Observe("fetch-ebook-metadata", runner.Result{ExitCode: runner.ExitTimedOut, TimedOut: true, Duration: time.Minute})

	if got := testutil.CollectAndCount(c.Registry(), "updatr_command_duration_seconds"); got != 3 {
		t.Fatalf("series: got %d want 3", got)
	}
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	outcomes := map[string]bool{}
	for _, family := range families {
		if family.GetName() != "updatr_command_duration_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" {
					outcomes[label.GetValue()] = true
				}
			}
		}
	}
	for _, want := range []string{metrics.OutcomeOK, metrics.OutcomeFailed, metrics.OutcomeTimeout} {
		if !outcomes[want] {
			t.Fatalf("missing outcome %q in %v", want, outcomes)
		}
	}
}

func TestObserveRunSetsGauges(t *testing.T) {
	c := metrics.New()
	started := time.Unix(1_700_000_000, 0)
	c.ObserveRun(pipeline.RunSummary{
		Succeeded: 3, Failed: 1, Skipped: 5,
		Started: started, Finished: started.Add(90 * time.Second),
	})

	expected := `
# HELP updatr_run_items Items per summary bucket in the most recent run.
# TYPE updatr_run_items gauge
updatr_run_items{result="done"} 3
updatr_run_items{result="failed"} 1
updatr_run_items{result="skipped"} 5
# HELP updatr_run_duration_seconds Duration of the most recent run.
# TYPE updatr_run_duration_seconds gauge
updatr_run_duration_seconds 90
# HELP updatr_last_run_timestamp_seconds Unix time the most recent run finished.
# TYPE updatr_last_run_timestamp_seconds gauge
updatr_last_run_timestamp_seconds 1.70000009e+09
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"updatr_run_items", "updatr_run_duration_seconds", "updatr_last_run_timestamp_seconds"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	c := metrics.New()
	c.Record(context.Background(), pipeline.Outcome{Action: pipeline.ActionEmbed, Result: pipeline.ResultFailed})

	path := filepath.Join(t.TempDir(), "textfile", "updatr.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `updatr_items_total{action="embed",result="failed"} 1`) {
		t.Fatalf("textfile missing counter:\n%s", data)
	}
	if err := c.WriteTextfile(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
