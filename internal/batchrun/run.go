// Package batchrun wires configuration into one complete catalog pass.
package batchrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"updatr/internal/catalog"
	"updatr/internal/config"
	"updatr/internal/fetch"
	"updatr/internal/history"
	"updatr/internal/logging"
	"updatr/internal/metrics"
	"updatr/internal/pipeline"
	"updatr/internal/preflight"
	"updatr/internal/runner"
	"updatr/internal/services"
	"updatr/internal/state"
)

// Options configures one batch run.
type Options struct {
	Logger *slog.Logger
	// Stdout and Stderr receive uncaptured tool output. They default to the
	// process streams.
	Stdout io.Writer
	Stderr io.Writer
	// SkipPreflight disables the dependency and filesystem checks.
	SkipPreflight bool
}

// Report describes a finished run.
type Report struct {
	RunID      string
	Library    string
	DryRun     bool
	Candidates int
	Summary    pipeline.RunSummary
	Outcomes   []pipeline.Outcome
}

// Run executes one pass over the catalog. Setup faults are returned before
// any item is touched; item failures only show up in the report.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) (Report, error) {
	if cfg == nil {
		return Report{}, fmt.Errorf("config is required")
	}

	ctx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.NewComponentLogger(opts.Logger, "batch").With(logging.String(logging.FieldRunID, runID))
	report := Report{RunID: runID, Library: cfg.LibrarySpec(), DryRun: cfg.Policy.DryRun}

	if !opts.SkipPreflight {
		if err := preflight.Verify(cfg); err != nil {
			return report, err
		}
	}

	lock, err := state.AcquireLock(cfg.State.Path)
	if err != nil {
		return report, services.Setup("lock state", err)
	}
	defer func() { _ = lock.Release() }()

	store, err := state.Open(cfg.State.Path, logger)
	if err != nil {
		return report, services.Setup("open state", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.TextfilePath != "" {
		collector = metrics.New()
	}

	exec, err := newRunner(cfg, logger, collector, opts)
	if err != nil {
		return report, err
	}

	cat, err := catalog.New(cfg.LibrarySpec(), exec,
		catalog.WithBinary(cfg.Calibredb.Binary),
		catalog.WithCredentials(cfg.ContentServer.Username, cfg.ContentServer.Password),
		catalog.WithTimeout(cfg.CalibredbTimeout()),
		catalog.WithLogger(logger),
	)
	if err != nil {
		return report, services.Setup("catalog", err)
	}

	items, err := cat.ListCandidates(ctx, catalog.Selection{
		Formats:                cfg.Formats.List,
		EnglishCodes:           cfg.Policy.EnglishCodes,
		IncludeMissingLanguage: cfg.Policy.IncludeMissingLanguage,
	})
	if err != nil {
		return report, services.Setup("list candidates", err)
	}
	report.Candidates = len(items)
	logger.Info("candidates selected",
		logging.String("library", cfg.LibrarySpec()),
		logging.Int("count", len(items)),
		logging.Bool("dry_run", cfg.Policy.DryRun))

	workDir, err := os.MkdirTemp("", "updatr-"+runID[:8]+"-")
	if err != nil {
		return report, services.Setup("create scratch directory", err)
	}
	defer os.RemoveAll(workDir)

	fetcher, err := fetch.New(exec, cfg.FetchTimeout(), cfg.FetchHeartbeat(),
		fetch.WithBinary(cfg.Fetch.Binary),
		fetch.WithLogger(logger),
	)
	if err != nil {
		return report, services.Setup("fetch", err)
	}

	proc, err := pipeline.NewProcessor(store, cat, fetcher, pipeline.Options{
		Formats:           cfg.Formats.List,
		Scoring:           cfg.ScoringPolicy(),
		ReprocessOnChange: cfg.Policy.ReprocessOnMetadataChange,
		DryRun:            cfg.Policy.DryRun,
		FetchDelay:        cfg.FetchDelay(),
		WorkDir:           workDir,
	}, logger)
	if err != nil {
		return report, err
	}

	recorders := []pipeline.Recorder{
		pipeline.RecorderFunc(func(_ context.Context, out pipeline.Outcome) {
			report.Outcomes = append(report.Outcomes, out)
		}),
	}
	if collector != nil {
		recorders = append(recorders, collector)
	}
	ledger := openHistory(ctx, cfg, runID, logger)
	if ledger != nil {
		defer ledger.Close()
		recorders = append(recorders, ledger.Recorder(runID))
	}

	summary, runErr := pipeline.Run(ctx, proc, items, recorders...)
	report.Summary = summary

	if ledger != nil {
		// The run context may be cancelled; the ledger still gets the totals.
		finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := ledger.FinishRun(finishCtx, runID, summary, runErr); err != nil {
			logging.WarnWithContext(logger, "history finish failed", "history_finish_failed",
				logging.String(logging.FieldImpact, "run totals are missing from history"),
				logging.Error(err))
		}
		finishCancel()
	}
	if collector != nil {
		collector.ObserveRun(summary)
		if err := collector.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			logging.WarnWithContext(logger, "metrics write failed", "metrics_write_failed",
				logging.String(logging.FieldErrorHint, "check metrics.textfile_path permissions"),
				logging.String(logging.FieldImpact, "node_exporter keeps serving the previous run"),
				logging.Error(err))
		}
	}

	logger.Info("run finished",
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Duration("elapsed", summary.Elapsed()))

	if runErr != nil && errors.Is(runErr, context.Canceled) {
		logger.Warn("run interrupted; started items resume next run")
	}
	return report, runErr
}

func newRunner(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector, opts Options) (*runner.Runner, error) {
	envMode, err := runner.ParseEnvMode(cfg.Calibredb.EnvMode)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "batch", "runner", "", err)
	}
	options := []runner.Option{
		runner.WithLogger(logger),
		runner.WithEnvMode(envMode),
		runner.WithCatalogBinary(cfg.Calibredb.Binary),
		runner.WithFetchBinary(cfg.Fetch.Binary),
		runner.WithCleanPrefixes(cfg.Calibredb.CleanEnvPrefixes),
		runner.WithRetryTrigger(runner.StderrContains(cfg.Calibredb.CleanRetrySignatures...)),
		runner.WithHeadless(cfg.Fetch.Headless, cfg.Fetch.HeadlessEnv),
		runner.WithXvfb(cfg.Fetch.UseXvfb),
		runner.WithDebugEnv(cfg.Calibredb.DebugEnv),
	}
	if opts.Stdout != nil || opts.Stderr != nil {
		stdout, stderr := opts.Stdout, opts.Stderr
		if stdout == nil {
			stdout = os.Stdout
		}
		if stderr == nil {
			stderr = os.Stderr
		}
		options = append(options, runner.WithPassthrough(stdout, stderr))
	}
	if collector != nil {
		options = append(options, runner.WithObserver(collector.Observe))
	}
	return runner.New(options...), nil
}

// openHistory opens the ledger and registers the run. The ledger is
// advisory, so failures only warn. Dry runs are not recorded.
func openHistory(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger) *history.Store {
	if !cfg.State.HistoryEnabled || cfg.Policy.DryRun || cfg.State.HistoryPath == "" {
		return nil
	}
	store, err := history.Open(cfg.State.HistoryPath, logger)
	if err != nil {
		logging.WarnWithContext(logger, "history unavailable", "history_open_failed",
			logging.String("path", cfg.State.HistoryPath),
			logging.String(logging.FieldErrorHint, "delete the history database if its schema is outdated"),
			logging.String(logging.FieldImpact, "this run is not recorded in history"),
			logging.Error(err))
		return nil
	}
	if err := store.BeginRun(ctx, runID, cfg.LibrarySpec(), cfg.Policy.DryRun, time.Now()); err != nil {
		logging.WarnWithContext(logger, "history begin failed", "history_begin_failed",
			logging.String(logging.FieldImpact, "this run is not recorded in history"),
			logging.Error(err))
		_ = store.Close()
		return nil
	}
	return store
}
