package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/daemonrun"
)

type activityRow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Ready  *bool  `json:"ready,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func newActivitiesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activities",
		Short: "Inspect registered activities",
	}
	cmd.AddCommand(newActivitiesListCommand(ctx))
	return cmd
}

func newActivitiesListCommand(ctx *commandContext) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered activities in registration order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			return ctx.withBackend(cmd, func(runCtx context.Context, client backend.Client) error {
				svc := daemonrun.Services{}
				if check {
					var closeServices func()
					svc, closeServices = daemonrun.OpenServices(runCtx, cfg, ctx.cliLogger(cmd))
					defer closeServices()
				}
				reg, _, err := daemonrun.BuildRegistry(runCtx, cfg, client, svc)
				if err != nil {
					return err
				}
				rows := collectActivityRows(runCtx, reg, check)
				if ctx.JSONMode() {
					return writeJSON(cmd, rows)
				}
				printActivityRows(cmd, rows, check)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Run each activity's health check")
	return cmd
}

func collectActivityRows(ctx context.Context, reg *activity.Registry, check bool) []activityRow {
	acts := reg.Activities()
	rows := make([]activityRow, 0, len(acts))
	for _, act := range acts {
		def := act.Definition()
		row := activityRow{ID: act.ID(), Name: def.Name}
		if check {
			ready := true
			if hc, ok := act.(activity.HealthChecker); ok {
				health := hc.HealthCheck(ctx)
				ready = health.Ready
				row.Detail = health.Detail
			}
			row.Ready = &ready
		}
		rows = append(rows, row)
	}
	return rows
}

func printActivityRows(cmd *cobra.Command, rows []activityRow, check bool) {
	out := cmd.OutOrStdout()
	headers := []string{"ID", "Name"}
	if check {
		headers = append(headers, "Health", "Detail")
	}
	colorize := shouldColorize(out)
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		line := []string{row.ID, row.Name}
		if check && row.Ready != nil {
			kind := statusOK
			if !*row.Ready {
				kind = statusError
			}
			line = append(line, paint(kind.label(), kind.color(), colorize), row.Detail)
		}
		table = append(table, line)
	}
	fmt.Fprintln(out, renderTable(headers, table, nil))
}
