package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/daemonrun"
	"weft/internal/installer"
)

func newInstallCommand(ctx *commandContext) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install definitions from the work directory into the content service",
		Long: "Reads <dir>/<category>.yaml for every definition category in dependency order\n" +
			"and creates or updates each entry. Activity definitions come from the\n" +
			"registered activities. Rerunning with unchanged files changes nothing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			workDir := strings.TrimSpace(dir)
			if workDir == "" {
				workDir = cfg.Paths.WorkDir
			} else {
				expanded, err := config.ExpandPath(workDir)
				if err != nil {
					return fmt.Errorf("resolve work dir: %w", err)
				}
				workDir = expanded
			}
			return ctx.withBackend(cmd, func(runCtx context.Context, client backend.Client) error {
				reg, bundle, err := daemonrun.BuildRegistry(runCtx, cfg, client, daemonrun.Services{})
				if err != nil {
					return err
				}
				seq := installer.New(bundle.InstallerOrNil(), installer.Defaults(reg)...)
				seq.SetLogger(ctx.cliLogger(cmd))
				report, err := seq.Execute(runCtx, client, workDir)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, report)
				}
				printInstallReport(cmd, workDir, report)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding <category>.yaml definition files (default paths.work_dir)")
	return cmd
}

func printInstallReport(cmd *cobra.Command, workDir string, report installer.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Definitions from %s\n", workDir)
	if len(report.Results) == 0 {
		fmt.Fprintln(out, "No definitions found")
		return
	}
	rows := make([][]string, 0, len(report.Results))
	for _, res := range report.Results {
		rows = append(rows, []string{string(res.Category), res.Key, string(res.Outcome)})
	}
	fmt.Fprintln(out, renderTable([]string{"Category", "Key", "Outcome"}, rows, nil))

	counts := report.Counts()
	fmt.Fprintf(out, "%s created, %s updated, %s unchanged\n",
		strconv.Itoa(counts[installer.Created]),
		strconv.Itoa(counts[installer.Updated]),
		strconv.Itoa(counts[installer.Unchanged]),
	)
}
