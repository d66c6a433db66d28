package pipeline

import (
	"context"
	"time"

	"updatr/internal/metadata"
)

// Run processes items in order and folds their outcomes into a summary.
// It stops before the next item once ctx is cancelled, and on the first
// error Process returns.
func Run(ctx context.Context, p *Processor, items []metadata.Item, recorders ...Recorder) (RunSummary, error) {
	summary := RunSummary{Started: p.now()}
	finish := func(err error) (RunSummary, error) {
		summary.Finished = p.now()
		return summary, err
	}
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		out, err := p.Process(ctx, it)
		if err != nil {
			return finish(err)
		}
		summary = summary.Add(out)
		for _, rec := range recorders {
			if rec != nil {
				rec.Record(ctx, out)
			}
		}
	}
	return finish(nil)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, out Outcome)

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, out Outcome) { f(ctx, out) }

// Elapsed is the wall time between the first and last item.
func (s RunSummary) Elapsed() time.Duration {
	if s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}
