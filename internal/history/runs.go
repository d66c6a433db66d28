package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"updatr/internal/pipeline"
)

// Run is one row of the runs table.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Library    string
	DryRun     bool
	Succeeded  int
	Failed     int
	Skipped    int
	Error      string
}

// Event is one recorded item outcome.
type Event struct {
	RunID       string
	ItemID      int64
	Title       string
	Action      string
	Result      string
	Status      string
	Message     string
	Fingerprint string
	Duration    time.Duration
	RecordedAt  time.Time
}

// BeginRun inserts a run row.
func (s *Store) BeginRun(ctx context.Context, id, library string, dryRun bool, startedAt time.Time) error {
	err := s.exec(ctx,
		"INSERT INTO runs (id, started_at, library, dry_run) VALUES (?, ?, ?, ?)",
		id, formatTime(startedAt), library, boolToInt(dryRun))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the summary of a run. runErr is recorded when the run
// aborted.
func (s *Store) FinishRun(ctx context.Context, id string, summary pipeline.RunSummary, runErr error) error {
	finished := summary.Finished
	if finished.IsZero() {
		finished = time.Now()
	}
	var errText string
	if runErr != nil {
		errText = runErr.Error()
	}
	err := s.exec(ctx,
		`UPDATE runs SET finished_at = ?, succeeded = ?, failed = ?, skipped = ?, error = ? WHERE id = ?`,
		formatTime(finished), summary.Succeeded, summary.Failed, summary.Skipped, nullableString(errText), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// AddEvent records one item outcome under a run.
func (s *Store) AddEvent(ctx context.Context, runID string, out pipeline.Outcome, recordedAt time.Time) error {
	err := s.exec(ctx,
		`INSERT INTO item_events (run_id, item_id, title, action, result, status, message, fingerprint, duration_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, out.ItemID, nullableString(out.Title), string(out.Action), string(out.Result),
		nullableString(string(out.Status)), nullableString(out.Message), nullableString(out.Fingerprint),
		out.Duration.Milliseconds(), formatTime(recordedAt))
	if err != nil {
		return fmt.Errorf("insert item event: %w", err)
	}
	return nil
}

const runColumns = "id, started_at, finished_at, library, dry_run, succeeded, failed, skipped, error"

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun loads one run by id or id prefix.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id LIMIT 2`, id, likePrefix(id))
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		if run.ID == id {
			return run, nil
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch len(found) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return found[0], nil
	default:
		return Run{}, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// likePrefix turns a literal prefix into a LIKE pattern escaped with '\'.
func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// RunEvents returns the item events of a run in recording order.
func (s *Store) RunEvents(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, item_id, title, action, result, status, message, fingerprint, duration_ms, recorded_at
		 FROM item_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list item events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev                                  Event
			title, status, message, fingerprint sql.NullString
			durationMS                          int64
			recordedRaw                         string
		)
		if err := rows.Scan(&ev.RunID, &ev.ItemID, &title, &ev.Action, &ev.Result, &status, &message,
			&fingerprint, &durationMS, &recordedRaw); err != nil {
			return nil, fmt.Errorf("scan item event: %w", err)
		}
		ev.Title, ev.Status, ev.Message, ev.Fingerprint = title.String, status.String, message.String, fingerprint.String
		ev.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := parseTimeString(recordedRaw); err == nil {
			ev.RecordedAt = ts
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run         Run
		startedRaw  string
		finishedRaw sql.NullString
		dryRun      int
		errText     sql.NullString
	)
	if err := row.Scan(&run.ID, &startedRaw, &finishedRaw, &run.Library, &dryRun,
		&run.Succeeded, &run.Failed, &run.Skipped, &errText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if ts, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = ts
	}
	if finishedRaw.Valid {
		if ts, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &ts
		}
	}
	run.DryRun = dryRun != 0
	run.Error = errText.String
	return run, nil
}
