package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"updatr/internal/history"
)

type runJSON struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Library    string     `json:"library"`
	DryRun     bool       `json:"dry_run"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Error      string     `json:"error,omitempty"`
}

type eventJSON struct {
	ItemID      int64     `json:"item_id"`
	Title       string    `json:"title,omitempty"`
	Action      string    `json:"action"`
	Result      string    `json:"result"`
	Status      string    `json:"status,omitempty"`
	Message     string    `json:"message,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				out := make([]runJSON, 0, len(runs))
				for _, r := range runs {
					out = append(out, toRunJSON(r))
				}
				return writeJSON(cmd, out)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recorded runs")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID[:min(8, len(r.ID))],
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					runDuration(r),
					strconv.Itoa(r.Succeeded),
					strconv.Itoa(r.Failed),
					strconv.Itoa(r.Skipped),
					truncateCell(r.Error, 40),
				})
			}
			writeTable(cmd.OutOrStdout(), []string{"Run", "Started", "Duration", "Succeeded", "Failed", "Skipped", "Error"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight})
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the items processed by one run (id prefixes accepted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			events, err := store.RunEvents(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if asJSON {
				out := struct {
					Run    runJSON     `json:"run"`
					Events []eventJSON `json:"events"`
				}{Run: toRunJSON(run), Events: make([]eventJSON, 0, len(events))}
				for _, ev := range events {
					out.Events = append(out.Events, eventJSON{
						ItemID:      ev.ItemID,
						Title:       ev.Title,
						Action:      ev.Action,
						Result:      ev.Result,
						Status:      ev.Status,
						Message:     ev.Message,
						Fingerprint: ev.Fingerprint,
						DurationMS:  ev.Duration.Milliseconds(),
						RecordedAt:  ev.RecordedAt,
					})
				}
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Run:      %s\n", run.ID)
			fmt.Fprintf(w, "Library:  %s\n", run.Library)
			fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(w, "Duration: %s\n", runDuration(run))
			fmt.Fprintf(w, "Totals:   %d succeeded, %d failed, %d skipped\n", run.Succeeded, run.Failed, run.Skipped)
			if run.Error != "" {
				fmt.Fprintf(w, "Error:    %s\n", run.Error)
			}
			if len(events) == 0 {
				return nil
			}
			fmt.Fprintln(w)
			rows := make([][]string, 0, len(events))
			for _, ev := range events {
				rows = append(rows, []string{
					strconv.FormatInt(ev.ItemID, 10),
					truncateCell(ev.Title, 40),
					ev.Action,
					ev.Result,
					ev.Duration.Round(time.Millisecond).String(),
					truncateCell(ev.Message, 60),
				})
			}
			writeTable(w, []string{"ID", "Title", "Action", "Result", "Took", "Message"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight})
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func openHistory(ctx *commandContext) (*history.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.State.HistoryEnabled {
		return nil, fmt.Errorf("run history is disabled (state.history_enabled = false)")
	}
	return history.Open(cfg.State.HistoryPath, nil)
}

func toRunJSON(r history.Run) runJSON {
	return runJSON{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Library:    r.Library,
		DryRun:     r.DryRun,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
		Error:      r.Error,
	}
}

func runDuration(r history.Run) string {
	if r.FinishedAt == nil {
		return "running"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}
