package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"updatr/internal/state"
)

type stateEntryJSON struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	LastAttempt time.Time  `json:"last_attempt"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	Message     string     `json:"message,omitempty"`
	FailCount   int        `json:"fail_count"`
}

func newStateCommand(ctx *commandContext) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and reset per-item processing state",
	}
	stateCmd.AddCommand(newStateListCommand(ctx))
	stateCmd.AddCommand(newStateShowCommand(ctx))
	stateCmd.AddCommand(newStateResetCommand(ctx))
	return stateCmd
}

func openStateStore(ctx *commandContext) (*state.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return state.Open(cfg.State.Path, nil)
}

func parseStatuses(values []string) (map[state.Status]bool, error) {
	if len(values) == 0 {
		return nil, nil
	}
	known := []state.Status{
		state.StatusStarted, state.StatusDone, state.StatusEmbeddedOnly,
		state.StatusSkipped, state.StatusFailed, state.StatusFailedPermanent,
	}
	out := make(map[state.Status]bool, len(values))
	for _, raw := range values {
		s := state.Status(strings.ToLower(strings.TrimSpace(raw)))
		valid := false
		for _, k := range known {
			if s == k {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("unknown status %q", raw)
		}
		out[s] = true
	}
	return out, nil
}

func parseItemID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", raw)
	}
	return id, nil
}

func newStateListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked items",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			store, err := openStateStore(ctx)
			if err != nil {
				return err
			}
			var entries []state.Entry
			for _, e := range store.Items() {
				if filter == nil || filter[e.State.Status] {
					entries = append(entries, e)
				}
			}

			if asJSON {
				out := make([]stateEntryJSON, 0, len(entries))
				for _, e := range entries {
					out = append(out, toStateJSON(e))
				}
				return writeJSON(cmd, out)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tracked items")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.ID,
					string(e.State.Status),
					strconv.Itoa(e.State.FailCount),
					relativeTime(e.State.LastAttempt),
					truncateCell(e.State.Message, 60),
				})
			}
			writeTable(cmd.OutOrStdout(), []string{"ID", "Status", "Fails", "Last Attempt", "Message"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignRight})
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only list items with this status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newStateShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show the stored record of one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			store, err := openStateStore(ctx)
			if err != nil {
				return err
			}
			rec, ok := store.Get(id)
			if !ok {
				return fmt.Errorf("item %d is not tracked", id)
			}
			entry := state.Entry{ID: state.Key(id), State: rec}
			if asJSON {
				return writeJSON(cmd, toStateJSON(entry))
			}
			lastOK := "-"
			if rec.LastSuccess != nil {
				lastOK = rec.LastSuccess.Format(time.RFC3339)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Item:         %s\n", entry.ID)
			fmt.Fprintf(out, "Status:       %s\n", rec.Status)
			fmt.Fprintf(out, "Resting:      %s\n", yesNo(rec.Status.Resting()))
			fmt.Fprintf(out, "Fingerprint:  %s\n", valueOrDash(rec.LastFingerprint))
			fmt.Fprintf(out, "Last attempt: %s\n", rec.LastAttempt.Format(time.RFC3339))
			fmt.Fprintf(out, "Last success: %s\n", lastOK)
			fmt.Fprintf(out, "Fail count:   %d\n", rec.FailCount)
			fmt.Fprintf(out, "Message:      %s\n", valueOrDash(rec.Message))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newStateResetCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "reset [ID...]",
		Short: "Forget items so the next run processes them again",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			if len(args) == 0 && filter == nil {
				return fmt.Errorf("name item ids or pass --status")
			}
			ids := make([]int64, 0, len(args))
			for _, raw := range args {
				id, err := parseItemID(raw)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock, err := state.AcquireLock(cfg.State.Path)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()
			store, err := state.Open(cfg.State.Path, nil)
			if err != nil {
				return err
			}

			removed := 0
			for _, id := range ids {
				if store.Delete(id) {
					removed++
				} else {
					fmt.Fprintf(cmd.ErrOrStderr(), "item %d is not tracked\n", id)
				}
			}
			if filter != nil {
				for _, e := range store.Items() {
					if !filter[e.State.Status] {
						continue
					}
					id, err := strconv.ParseInt(e.ID, 10, 64)
					if err == nil && store.Delete(id) {
						removed++
					}
				}
			}
			if removed == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to reset")
				return nil
			}
			if err := store.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d item(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Reset every item with this status (repeatable)")
	return cmd
}

func toStateJSON(e state.Entry) stateEntryJSON {
	return stateEntryJSON{
		ID:          e.ID,
		Status:      string(e.State.Status),
		Fingerprint: e.State.LastFingerprint,
		LastAttempt: e.State.LastAttempt,
		LastSuccess: e.State.LastSuccess,
		Message:     e.State.Message,
		FailCount:   e.State.FailCount,
	}
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
