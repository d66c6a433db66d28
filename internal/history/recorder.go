package history

import (
	"context"
	"time"

	"updatr/internal/logging"
	"updatr/internal/pipeline"
)

// Recorder writes outcomes of one run into the ledger.
type Recorder struct {
	store *Store
	runID string
	now   func() time.Time
}

// Recorder returns a pipeline.Recorder bound to runID.
func (s *Store) Recorder(runID string) *Recorder {
	return &Recorder{store: s, runID: runID, now: time.Now}
}

// Record implements pipeline.Recorder. Failures are logged only.
func (r *Recorder) Record(ctx context.Context, out pipeline.Outcome) {
	if err := r.store.AddEvent(ctx, r.runID, out, r.now()); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.store.logger), "history write failed", "history_write_failed",
			logging.Int64("item", out.ItemID),
			logging.String(logging.FieldImpact, "run history is missing this item; state is unaffected"),
			logging.Error(err))
	}
}

var _ pipeline.Recorder = (*Recorder)(nil)
