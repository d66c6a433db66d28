package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"updatr/internal/config"
	"updatr/internal/dups"
	"updatr/internal/fileutil"
)

func newDupsCommand(ctx *commandContext) *cobra.Command {
	var (
		library         string
		output          string
		outPath         string
		extensions      []string
		followSymlinks  bool
		workers         int
		minSize         int64
		includeSidecars bool
	)

	cmd := &cobra.Command{
		Use:   "dups",
		Short: "Find byte-identical book files in a local library",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root := strings.TrimSpace(library)
			if root == "" {
				root = cfg.Library.Path
			}
			if root == "" {
				return fmt.Errorf("dups needs a local library: pass --library or set library.path")
			}
			if root, err = config.ExpandPath(root); err != nil {
				return fmt.Errorf("resolve library path: %w", err)
			}
			format, err := dups.ParseFormat(output)
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}

			report, err := dups.Scan(cmd.Context(), dups.Options{
				Root:            root,
				Extensions:      extensions,
				FollowSymlinks:  followSymlinks,
				MinSize:         minSize,
				IncludeSidecars: includeSidecars,
				Workers:         workers,
				Logger:          logger,
			})
			if err != nil {
				return err
			}

			if strings.TrimSpace(outPath) == "" {
				return dups.Write(cmd.OutOrStdout(), report, format)
			}
			target, err := config.ExpandPath(outPath)
			if err != nil {
				return fmt.Errorf("resolve output path: %w", err)
			}
			var buf bytes.Buffer
			if err := dups.Write(&buf, report, format); err != nil {
				return err
			}
			if err := fileutil.WriteFileAtomic(target, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d duplicate group(s) to %s\n", len(report.Groups), target)
			return nil
		},
	}

	cmd.Flags().StringVar(&library, "library", "", "Library root to scan (defaults to library.path)")
	cmd.Flags().StringVar(&output, "output", "text", "Output format: text or json")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "Only consider these extensions (repeatable)")
	cmd.Flags().BoolVar(&followSymlinks, "follow-symlinks", false, "Follow symlinks while walking")
	cmd.Flags().IntVar(&workers, "threads", 0, "Concurrent hashing workers (0 = GOMAXPROCS)")
	cmd.Flags().Int64Var(&minSize, "min-size", 0, "Skip files smaller than this many bytes")
	cmd.Flags().BoolVar(&includeSidecars, "include-sidecars", false, "Also hash metadata.opf and cover images")
	return cmd
}
