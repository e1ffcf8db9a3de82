package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/store"
)

const defaultListLimit = 50

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair queued jobs",
	}
	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueRetryCommand(ctx))
	cmd.AddCommand(newQueueHealthCommand(ctx))
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var queue string
	var statuses []string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in creation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := backend.JobFilter{Queue: strings.TrimSpace(queue), Limit: limit}
			for _, raw := range statuses {
				status, err := parseJobStatus(raw)
				if err != nil {
					return err
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withBackend(cmd, func(runCtx context.Context, client backend.Client) error {
				jobs, err := client.ListJobs(runCtx, filter)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, jobs)
				}
				printJobs(cmd, jobs)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "Only jobs on this queue")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (pending, running, complete, failed)")
	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "Maximum jobs to show")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [jobID...]",
		Short: "Return failed jobs to pending",
		Long:  "Resets attempts on the given failed jobs, or on every failed job when no IDs are passed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd, func(runCtx context.Context, client backend.Client) error {
				count, err := client.RetryFailedJobs(runCtx, args...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case count == 0 && len(args) > 0:
					fmt.Fprintln(out, "No matching failed jobs")
				case count == 0:
					fmt.Fprintln(out, "No failed jobs to retry")
				default:
					fmt.Fprintf(out, "Retrying %d job(s)\n", count)
				}
				return nil
			})
		},
	}
}

type storeHealthChecker interface {
	CheckHealth(ctx context.Context) (store.HealthReport, error)
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check backend reachability, database integrity, and job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			return ctx.withBackend(cmd, func(runCtx context.Context, client backend.Client) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Backend", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Kind", statusInfo, cfg.Backend.Kind, colorize))

				if checker, ok := client.(storeHealthChecker); ok {
					report, err := checker.CheckHealth(runCtx)
					if err != nil {
						fmt.Fprintln(out, renderStatusLine("Database", statusError, err.Error(), colorize))
						return err
					}
					printStoreHealth(cmd, report, colorize)
				}

				stats, err := client.JobStats(runCtx)
				if err != nil {
					fmt.Fprintln(out, renderStatusLine("Reachable", statusError, err.Error(), colorize))
					return err
				}
				fmt.Fprintln(out, renderStatusLine("Reachable", statusOK, "", colorize))

				specs, specErr := cfg.QueueSpecs()
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Queues", colorize) {
					fmt.Fprintln(out, line)
				}
				if specErr != nil {
					fmt.Fprintln(out, renderStatusLine("Spec", statusError, specErr.Error(), colorize))
				}
				printQueueStats(cmd, stats, specs)
				return nil
			})
		},
	}
}

func printStoreHealth(cmd *cobra.Command, report store.HealthReport, colorize bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderStatusLine("Database path", statusInfo, report.DBPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Database exists", boolKind(report.DatabaseExists), yesNo(report.DatabaseExists), colorize))
	fmt.Fprintln(out, renderStatusLine("Readable", boolKind(report.Readable), yesNo(report.Readable), colorize))
	fmt.Fprintln(out, renderStatusLine("Schema version", statusInfo, strconv.Itoa(report.SchemaVersion), colorize))
	fmt.Fprintln(out, renderStatusLine("Integrity check", boolKind(report.IntegrityCheck), yesNo(report.IntegrityCheck), colorize))
	fmt.Fprintln(out, renderStatusLine("Total jobs", statusInfo, strconv.Itoa(report.TotalJobs), colorize))
	if report.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, report.Error, colorize))
	}
}

func printQueueStats(cmd *cobra.Command, stats map[string]map[backend.JobStatus]int, specs []config.QueueSpec) {
	workers := make(map[string]int, len(specs))
	names := make([]string, 0, len(stats)+len(specs))
	for _, spec := range specs {
		workers[spec.Name] = spec.Concurrency
		names = append(names, spec.Name)
	}
	for name := range stats {
		if _, ok := workers[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	order := []backend.JobStatus{backend.JobPending, backend.JobRunning, backend.JobComplete, backend.JobFailed}
	headers := []string{"Queue", "Workers"}
	for _, status := range order {
		headers = append(headers, jobStatusLabel(status))
	}
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		w := "-"
		if n, ok := workers[name]; ok {
			w = strconv.Itoa(n)
		}
		row := []string{name, w}
		for _, status := range order {
			row = append(row, strconv.Itoa(stats[name][status]))
		}
		rows = append(rows, row)
	}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
}

func printJobs(cmd *cobra.Command, jobs []*backend.Job) {
	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs")
		return
	}
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			job.Queue,
			job.ActivityID,
			job.Target.String(),
			colorizeJobStatus(job.Status, colorize),
			fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
			job.UpdatedAt.Local().Format(time.DateTime),
			truncate(job.LastError, 60),
		})
	}
	headers := []string{"Job", "Queue", "Activity", "Target", "Status", "Attempts", "Updated", "Last error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight}
	fmt.Fprintln(out, renderTable(headers, rows, aligns))
}

func parseJobStatus(raw string) (backend.JobStatus, error) {
	status := backend.JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case backend.JobPending, backend.JobRunning, backend.JobComplete, backend.JobFailed:
		return status, nil
	}
	return "", fmt.Errorf("unknown job status %q (use pending, running, complete, or failed)", raw)
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusWarn
}
