// Package metrics exports run counters for the node_exporter textfile
// collector.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"updatr/internal/pipeline"
	"updatr/internal/runner"
)

const namespace = "updatr"

// Command outcomes used as the outcome label.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
)

// Collector owns a private registry so repeated runs in one process, and
// tests, never collide with the default registerer.
type Collector struct {
	registry        *prometheus.Registry
	items           *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	runDuration     prometheus.Gauge
	lastRun         prometheus.Gauge
	runItems        *prometheus.GaugeVec
}

// New registers the updatr metric families.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items processed, by chosen action and result.",
		}, []string{"action", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Wall time of external tool invocations.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"tool", "outcome"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the most recent run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the most recent run finished.",
		}),
		runItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_items",
			Help:      "Items per summary bucket in the most recent run.",
		}, []string{"result"}),
	}
	c.registry.MustRegister(c.items, c.commandDuration, c.runDuration, c.lastRun, c.runItems)
	return c
}

// Registry exposes the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Record implements pipeline.Recorder.
func (c *Collector) Record(_ context.Context, out pipeline.Outcome) {
	c.items.WithLabelValues(string(out.Action), string(out.Result)).Inc()
}

// Observe implements runner.Observer.
func (c *Collector) Observe(tool string, res runner.Result) {
	outcome := OutcomeOK
	switch {
	case res.TimedOut:
		outcome = OutcomeTimeout
	case !res.Success():
		outcome = OutcomeFailed
	}
	c.commandDuration.WithLabelValues(tool, outcome).Observe(res.Duration.Seconds())
}

// ObserveRun stores the totals of a finished run.
func (c *Collector) ObserveRun(summary pipeline.RunSummary) {
	c.runDuration.Set(summary.Elapsed().Seconds())
	if !summary.Finished.IsZero() {
		c.lastRun.Set(float64(summary.Finished.Unix()))
	}
	c.runItems.WithLabelValues(string(pipeline.ResultDone)).Set(float64(summary.Succeeded))
	c.runItems.WithLabelValues(string(pipeline.ResultFailed)).Set(float64(summary.Failed))
	c.runItems.WithLabelValues(string(pipeline.ResultSkipped)).Set(float64(summary.Skipped))
}

// WriteTextfile writes the registry to path. The write goes through a
// temporary file and a rename, so node_exporter never reads a partial file.
func (c *Collector) WriteTextfile(path string) error {
	if path == "" {
		return errors.New("metrics textfile path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

var _ pipeline.Recorder = (*Collector)(nil)
