package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"updatr/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check configuration, directories, and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			configDetail := ctx.configPath
			if !ctx.configExists {
				configDetail += " (not found; defaults used)"
			}
			configOK := "ok"
			if err := cfg.Validate(); err != nil {
				configOK = "FAIL"
				configDetail = err.Error()
			}
			rows := [][]string{{"Configuration", configOK, configDetail}}

			failed := configOK != "ok"
			for _, r := range preflight.RunAll(cfg) {
				status := "ok"
				if !r.Passed {
					status = "FAIL"
					failed = true
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			for _, d := range preflight.CheckSystemDeps(cfg) {
				status := "ok"
				detail := d.Path
				switch {
				case !d.Available && d.Optional:
					status = "missing"
					detail = d.Detail
				case !d.Available:
					status = "FAIL"
					detail = d.Detail
					failed = true
				}
				rows = append(rows, []string{d.Name, status, detail})
			}
			writeTable(out, []string{"Check", "Status", "Detail"}, rows, nil)

			if failed {
				return fmt.Errorf("one or more checks failed")
			}
			return nil
		},
	}
}
