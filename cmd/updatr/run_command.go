package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"updatr/internal/batchrun"
	"updatr/internal/config"
	"updatr/internal/pipeline"
)

type runFlags struct {
	library           string
	libraryURL        string
	username          string
	password          string
	dryRun            bool
	statePath         string
	reprocessOnChange bool
	skipPreflight     bool
	verbose           bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every candidate item in the library once",
		Long: `Lists items carrying one of the configured formats, keeps the English
(or language-less) ones, and for each: skips it when already handled, embeds
existing metadata when it is good enough, or fetches, applies and embeds new
metadata otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg, flags); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}

			report, runErr := batchrun.Run(cmd.Context(), cfg, batchrun.Options{
				Logger:        logger,
				SkipPreflight: flags.skipPreflight,
			})
			if len(report.Outcomes) > 0 || runErr == nil {
				printRunReport(cmd, report, flags.verbose)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&flags.library, "library", "", "Local library directory")
	cmd.Flags().StringVar(&flags.libraryURL, "library-url", "", "Content Server library URL (wins over --library)")
	cmd.Flags().StringVar(&flags.username, "username", "", "Content Server username")
	cmd.Flags().StringVar(&flags.password, "password", "", "Content Server password")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Report what would happen without changing the library or state")
	cmd.Flags().StringVar(&flags.statePath, "state", "", "State file path")
	cmd.Flags().BoolVar(&flags.reprocessOnChange, "reprocess-on-change", false, "Reprocess handled items whose metadata changed since")
	cmd.Flags().BoolVar(&flags.skipPreflight, "skip-preflight", false, "Skip tool and directory checks")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "List skipped items in the report")
	return cmd
}

// applyRunFlags layers explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, flags runFlags) error {
	changed := cmd.Flags().Changed
	if changed("library") {
		path, err := config.ExpandPath(strings.TrimSpace(flags.library))
		if err != nil {
			return fmt.Errorf("resolve library path: %w", err)
		}
		cfg.Library.Path = path
	}
	if changed("library-url") {
		cfg.Library.URL = config.NormalizeLibraryURL(flags.libraryURL)
	}
	if changed("username") {
		cfg.ContentServer.Username = strings.TrimSpace(flags.username)
	}
	if changed("password") {
		cfg.ContentServer.Password = flags.password
	}
	if changed("dry-run") {
		cfg.Policy.DryRun = flags.dryRun
	}
	if changed("reprocess-on-change") {
		cfg.Policy.ReprocessOnMetadataChange = flags.reprocessOnChange
	}
	if changed("state") {
		path, err := config.ExpandPath(strings.TrimSpace(flags.statePath))
		if err != nil {
			return fmt.Errorf("resolve state path: %w", err)
		}
		// A history ledger that followed the old state file follows the new one.
		if cfg.State.HistoryPath == config.DefaultHistoryPath(cfg.State.Path) {
			cfg.State.HistoryPath = config.DefaultHistoryPath(path)
		}
		cfg.State.Path = path
	}
	return nil
}

func printRunReport(cmd *cobra.Command, report batchrun.Report, verbose bool) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		if o.Result == pipeline.ResultSkipped && !verbose {
			continue
		}
		rows = append(rows, []string{
			strconv.FormatInt(o.ItemID, 10),
			truncateCell(o.Title, 40),
			string(o.Action),
			string(o.Result),
			truncateCell(o.Message, 60),
		})
	}
	if len(rows) > 0 {
		writeTable(out, []string{"ID", "Title", "Action", "Result", "Message"}, rows,
			[]columnAlignment{alignRight})
		fmt.Fprintln(out)
	}

	s := report.Summary
	mode := "live"
	if report.DryRun {
		mode = "dry-run"
	}
	writeTable(out, []string{"Run", "Mode", "Candidates", "Succeeded", "Failed", "Skipped", "Elapsed"}, [][]string{{
		report.RunID,
		mode,
		strconv.Itoa(report.Candidates),
		strconv.Itoa(s.Succeeded),
		strconv.Itoa(s.Failed),
		strconv.Itoa(s.Skipped),
		s.Elapsed().Round(time.Millisecond).String(),
	}}, []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight})
}
