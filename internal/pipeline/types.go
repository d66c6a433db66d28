package pipeline

import (
	"context"
	"errors"
	"time"

	"updatr/internal/fetch"
	"updatr/internal/metadata"
	"updatr/internal/state"
)

// ErrPersist marks a failure to write the state store. It is the only item
// level error that aborts a run.
var ErrPersist = errors.New("persist item state")

// Catalog is the subset of catalog operations the processor drives.
type Catalog interface {
	ApplyMetadata(ctx context.Context, id int64, opfPath string) error
	ApplyCover(ctx context.Context, id int64, coverPath string) (bool, error)
	Embed(ctx context.Context, id int64, formats []string) error
	Refresh(ctx context.Context, id int64) (metadata.Item, bool, error)
}

// Fetcher downloads metadata for one item.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) error
}

// Recorder observes finished items. Implementations handle their own errors.
type Recorder interface {
	Record(ctx context.Context, out Outcome)
}

// Action is the path the processor chose for an item.
type Action string

const (
	ActionSkip  Action = "skip"
	ActionEmbed Action = "embed"
	ActionFetch Action = "fetch"
)

// Result is the summary bucket of an outcome.
type Result string

const (
	ResultDone    Result = "done"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
)

// Outcome describes what happened to one item.
type Outcome struct {
	ItemID      int64
	Title       string
	Action      Action
	Result      Result
	Status      state.Status
	Message     string
	Fingerprint string
	Score       int
	Reasons     []string
	DryRun      bool
	Duration    time.Duration
}

// RunSummary accumulates outcomes for one run.
type RunSummary struct {
	Succeeded int
	Failed    int
	Skipped   int
	Started   time.Time
	Finished  time.Time
}

// Add folds one outcome into the summary.
func (s RunSummary) Add(out Outcome) RunSummary {
	switch out.Result {
	case ResultDone:
		s.Succeeded++
	case ResultFailed:
		s.Failed++
	default:
		s.Skipped++
	}
	return s
}

// Total is the number of items folded in.
func (s RunSummary) Total() int {
	return s.Succeeded + s.Failed + s.Skipped
}

// Options carries the per-run policy.
type Options struct {
	Formats           []string
	Scoring           metadata.Scoring
	ReprocessOnChange bool
	DryRun            bool
	FetchDelay        time.Duration
	WorkDir           string
}
