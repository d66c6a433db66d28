package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"updatr/internal/fetch"
	"updatr/internal/fileutil"
	"updatr/internal/logging"
	"updatr/internal/metadata"
	"updatr/internal/services"
	"updatr/internal/state"
)

const (
	msgStarted  = "started"
	msgEmbedded = "good enough; embedded"
	msgUpdated  = "fetched+applied+embedded"
)

// Step names attached to the context of each external call.
const (
	stageFetch   = "fetch"
	stageApply   = "apply"
	stageCover   = "cover"
	stageEmbed   = "embed"
	stageRefresh = "refresh"
)

// Processor runs the per-item state machine. It is not safe for concurrent
// use; items are processed one at a time.
type Processor struct {
	opts    Options
	store   *state.Store
	catalog Catalog
	fetcher Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewProcessor wires a processor.
func NewProcessor(store *state.Store, catalog Catalog, fetcher Fetcher, opts Options, logger *slog.Logger) (*Processor, error) {
	if store == nil {
		return nil, errors.New("pipeline: state store required")
	}
	if catalog == nil || fetcher == nil {
		return nil, errors.New("pipeline: catalog and fetcher required")
	}
	if len(opts.Formats) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "", "no target formats", nil)
	}
	if opts.WorkDir == "" {
		return nil, errors.New("pipeline: work directory required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		opts:    opts,
		store:   store,
		catalog: catalog,
		fetcher: fetcher,
		logger:  logging.NewComponentLogger(logger, "pipeline"),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// item bundles what every step needs to know about the item in flight.
type item struct {
	metadata.Item
	snap    metadata.Snapshot
	fp      string
	prev    state.ItemState
	hasPrev bool
	logger  *slog.Logger
}

// Process decides and performs the work for one item. Tool failures are
// recorded in the store and reported through the Outcome. Only ErrPersist and
// context cancellation are returned as errors.
func (p *Processor) Process(ctx context.Context, it metadata.Item) (out Outcome, err error) {
	ctx = services.WithItemID(ctx, it.ID)
	start := p.now()
	cur := &item{Item: it}
	cur.logger = logging.WithContext(ctx, p.logger).With(logging.String("title", it.Title()))
	out = Outcome{ItemID: it.ID, Title: it.Title(), DryRun: p.opts.DryRun}

	defer func() {
		if r := recover(); r != nil {
			out, err = p.exception(ctx, cur, out, fmt.Errorf("%v", r))
		}
		out.Duration = p.now().Sub(start)
	}()

	cur.snap = metadata.TakeSnapshot(it)
	cur.fp = metadata.Fingerprint(cur.snap)
	cur.prev, cur.hasPrev = p.store.Get(it.ID)
	out.Fingerprint = cur.fp

	if reason, ok := p.resting(cur); ok {
		cur.logger.Info("item skipped", logging.Args(logging.DecisionAttrs("resting", "skip", reason)...)...)
		out.Action, out.Result, out.Status, out.Message = ActionSkip, ResultSkipped, cur.prev.Status, reason
		return out, nil
	}

	good, score, reasons := p.opts.Scoring.GoodEnough(cur.snap)
	out.Score, out.Reasons = score, reasons
	out.Action = ActionFetch
	if good {
		out.Action = ActionEmbed
	}

	if p.opts.DryRun {
		return p.dryRun(cur, out), nil
	}

	started := state.ItemState{
		Status:          state.StatusStarted,
		LastFingerprint: cur.fp,
		LastAttempt:     p.now(),
		LastSuccess:     cur.prev.LastSuccess,
		Message:         msgStarted,
		FailCount:       cur.prev.FailCount,
	}
	if err := p.persist(it.ID, started); err != nil {
		return out, err
	}

	if good {
		cur.logger.Info("metadata good enough, embedding only",
			logging.Int("score", score),
			logging.String(logging.FieldEventType, "embed_only"))
		return p.embedOnly(ctx, cur, out)
	}
	cur.logger.Info("fetching metadata",
		logging.Int("score", score),
		logging.String("missing", strings.Join(reasons, ", ")),
		logging.String(logging.FieldEventType, "fetch_start"))
	return p.fetchAndApply(ctx, cur, out)
}

// resting reports whether a stored record lets the item be skipped.
func (p *Processor) resting(cur *item) (string, bool) {
	if !cur.hasPrev || !cur.prev.Status.Resting() {
		return "", false
	}
	if !p.opts.ReprocessOnChange {
		return "already processed", true
	}
	if cur.prev.LastFingerprint == cur.fp {
		return "already processed for current metadata", true
	}
	return "", false
}

func (p *Processor) dryRun(cur *item, out Outcome) Outcome {
	out.Result = ResultDone
	switch out.Action {
	case ActionEmbed:
		out.Status = state.StatusEmbeddedOnly
		out.Message = "dry-run: would embed metadata"
	default:
		out.Status = state.StatusDone
		out.Message = "dry-run: would fetch, apply and embed"
	}
	cur.logger.Info(out.Message,
		logging.Int("score", out.Score),
		logging.String("formats", strings.Join(p.opts.Formats, ",")),
		logging.String(logging.FieldEventType, "dry_run"))
	return out
}

func (p *Processor) embedOnly(ctx context.Context, cur *item, out Outcome) (Outcome, error) {
	if err := p.catalog.Embed(services.WithStage(ctx, stageEmbed), cur.ID, p.opts.Formats); err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		msg := fmt.Sprintf("%v (good enough reasons: %s)", err, strings.Join(out.Reasons, ", "))
		return p.fail(cur, out, state.StatusFailed, msg)
	}
	now := p.now()
	rec := state.ItemState{
		Status:          state.StatusEmbeddedOnly,
		LastFingerprint: cur.fp,
		LastAttempt:     now,
		LastSuccess:     &now,
		Message:         msgEmbedded,
	}
	if err := p.persist(cur.ID, rec); err != nil {
		return out, err
	}
	cur.logger.Info("item done", logging.String("status", string(rec.Status)))
	out.Result, out.Status, out.Message = ResultDone, rec.Status, rec.Message
	return out, nil
}

func (p *Processor) fetchAndApply(ctx context.Context, cur *item, out Outcome) (Outcome, error) {
	base := filepath.Join(p.opts.WorkDir, strconv.FormatInt(cur.ID, 10))
	opfPath, coverPath := base+".opf", base+".cover.jpg"
	defer func() {
		_ = fileutil.RemoveIfExists(opfPath)
		_ = fileutil.RemoveIfExists(coverPath)
	}()

	if err := p.fetcher.Fetch(services.WithStage(ctx, stageFetch), fetch.RequestFor(cur.Item, opfPath, coverPath)); err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return p.fail(cur, out, failureStatus(err), err.Error())
	}

	if err := sleepContext(ctx, p.opts.FetchDelay); err != nil {
		return out, err
	}

	if err := p.catalog.ApplyMetadata(services.WithStage(ctx, stageApply), cur.ID, opfPath); err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return p.fail(cur, out, state.StatusFailed, err.Error())
	}

	if _, err := p.catalog.ApplyCover(services.WithStage(ctx, stageCover), cur.ID, coverPath); err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		logging.WarnWithContext(cur.logger, "cover not applied", "cover_apply_failed",
			logging.String(logging.FieldImpact, "item keeps its previous cover"),
			logging.Error(err))
	}

	if err := p.catalog.Embed(services.WithStage(ctx, stageEmbed), cur.ID, p.opts.Formats); err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return p.fail(cur, out, state.StatusFailed, err.Error())
	}

	snap := cur.snap
	refreshed, found, err := p.catalog.Refresh(services.WithStage(ctx, stageRefresh), cur.ID)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		logging.WarnWithContext(cur.logger, "refresh failed, keeping pre-fetch fingerprint", "refresh_failed",
			logging.Error(err))
	case !found:
		cur.logger.Warn("refresh returned no record, keeping pre-fetch fingerprint",
			logging.String(logging.FieldEventType, "refresh_missing"))
	default:
		snap = metadata.TakeSnapshot(refreshed)
	}

	now := p.now()
	rec := state.ItemState{
		Status:          state.StatusDone,
		LastFingerprint: metadata.Fingerprint(snap),
		LastAttempt:     now,
		LastSuccess:     &now,
		Message:         msgUpdated,
	}
	if err := p.persist(cur.ID, rec); err != nil {
		return out, err
	}
	cur.logger.Info("item done", logging.String("status", string(rec.Status)))
	out.Result, out.Status, out.Message, out.Fingerprint = ResultDone, rec.Status, rec.Message, rec.LastFingerprint
	return out, nil
}

// fail records a failed attempt. The previous success time is kept and the
// failure counter grows.
func (p *Processor) fail(cur *item, out Outcome, status state.Status, msg string) (Outcome, error) {
	rec := state.ItemState{
		Status:          status,
		LastFingerprint: cur.fp,
		LastAttempt:     p.now(),
		LastSuccess:     cur.prev.LastSuccess,
		Message:         msg,
		FailCount:       cur.prev.FailCount + 1,
	}
	if err := p.persist(cur.ID, rec); err != nil {
		return out, err
	}
	logging.WarnWithContext(cur.logger, "item failed", "item_failed",
		logging.String("status", string(status)),
		logging.Int("fail_count", rec.FailCount),
		logging.String(logging.FieldImpact, "item is retried on a later run unless permanently failed"),
		logging.String("error", msg))
	out.Result, out.Status, out.Message = ResultFailed, status, msg
	return out, nil
}

// exception converts a panic into a failed record.
func (p *Processor) exception(ctx context.Context, cur *item, out Outcome, cause error) (Outcome, error) {
	msg := "exception: " + cause.Error()
	logging.ErrorWithContext(logging.WithContext(ctx, p.logger), "item processing panicked", "item_exception",
		logging.String("error", msg))
	out.Result, out.Status, out.Message = ResultFailed, state.StatusFailed, msg
	if p.opts.DryRun {
		return out, nil
	}
	// An empty fingerprint means hashing itself panicked; the record keeps
	// none rather than hashing again here.
	if !cur.hasPrev {
		cur.prev, cur.hasPrev = p.store.Get(cur.ID)
	}
	rec := state.ItemState{
		Status:          state.StatusFailed,
		LastFingerprint: cur.fp,
		LastAttempt:     p.now(),
		LastSuccess:     cur.prev.LastSuccess,
		Message:         msg,
		FailCount:       cur.prev.FailCount + 1,
	}
	if err := p.persist(cur.ID, rec); err != nil {
		return out, err
	}
	return out, nil
}

func (p *Processor) persist(id int64, rec state.ItemState) error {
	p.store.Put(id, rec)
	if err := p.store.Save(); err != nil {
		return fmt.Errorf("%w: item %d: %w", ErrPersist, id, err)
	}
	return nil
}

// failureStatus maps a fetch error to the status it leaves behind. A timeout
// is not retried on later runs.
func failureStatus(err error) state.Status {
	if services.IsTimeout(err) {
		return state.StatusFailedPermanent
	}
	return state.StatusFailed
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
