package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"weft/internal/backend"
)

func newWorkflowsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Start workflows on content",
	}
	cmd.AddCommand(newWorkflowEnqueueCommand(ctx))
	return cmd
}

type enqueueOptions struct {
	workflowID   string
	metadataID   string
	version      int
	collectionID string
	queue        string
	activityID   string
	config       []string
}

func newWorkflowEnqueueCommand(ctx *commandContext) *cobra.Command {
	var opts enqueueOptions

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue the initial state of a workflow, or a single activity job",
		Long: "Without --activity, enters the workflow's initial state for the target and\n" +
			"enqueues one job per activity of that state. With --activity, enqueues one\n" +
			"job directly on --queue with the given --config values.",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := opts.target()
			if err != nil {
				return err
			}
			req, direct, err := opts.request(target)
			if err != nil {
				return err
			}
			return ctx.withBackend(cmd, func(runCtx context.Context, client backend.Client) error {
				jobs, err := enqueue(runCtx, client, opts.workflowID, target, req, direct)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, jobs)
				}
				printEnqueued(cmd, jobs)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.workflowID, "workflow-id", "", "Workflow definition key")
	flags.StringVar(&opts.metadataID, "metadata-id", "", "Target metadata entity")
	flags.IntVar(&opts.version, "version", 0, "Metadata version (default latest)")
	flags.StringVar(&opts.collectionID, "collection-id", "", "Target collection")
	flags.StringVar(&opts.queue, "queue", "", "Queue for a direct activity job (default \""+backend.DefaultQueue+"\")")
	flags.StringVar(&opts.activityID, "activity", "", "Enqueue this activity directly instead of the workflow's initial state")
	flags.StringArrayVar(&opts.config, "config", nil, "Activity configuration as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("workflow-id")
	return cmd
}

func enqueue(ctx context.Context, client backend.Jobs, workflowID string, target backend.ContentRef, req backend.EnqueueRequest, direct bool) ([]*backend.Job, error) {
	if !direct {
		return client.EnqueueWorkflow(ctx, strings.TrimSpace(workflowID), target)
	}
	job, err := client.EnqueueJob(ctx, req)
	if err != nil {
		return nil, err
	}
	return []*backend.Job{job}, nil
}

func (o enqueueOptions) target() (backend.ContentRef, error) {
	metadataID := strings.TrimSpace(o.metadataID)
	collectionID := strings.TrimSpace(o.collectionID)
	switch {
	case metadataID != "" && collectionID != "":
		return backend.ContentRef{}, errors.New("specify exactly one of --metadata-id or --collection-id")
	case metadataID == "" && collectionID == "":
		return backend.ContentRef{}, errors.New("a target is required: pass --metadata-id or --collection-id")
	case collectionID != "":
		if o.version != 0 {
			return backend.ContentRef{}, errors.New("--version only applies to --metadata-id")
		}
		return backend.CollectionRef(collectionID), nil
	}
	if o.version < 0 {
		return backend.ContentRef{}, fmt.Errorf("--version must not be negative, got %d", o.version)
	}
	return backend.MetadataRef(metadataID, o.version), nil
}

func (o enqueueOptions) request(target backend.ContentRef) (backend.EnqueueRequest, bool, error) {
	activityID := strings.TrimSpace(o.activityID)
	if activityID == "" {
		if strings.TrimSpace(o.queue) != "" || len(o.config) > 0 {
			return backend.EnqueueRequest{}, false, errors.New("--queue and --config require --activity")
		}
		return backend.EnqueueRequest{}, false, nil
	}
	configuration, err := parseConfigPairs(o.config)
	if err != nil {
		return backend.EnqueueRequest{}, false, err
	}
	queue := strings.TrimSpace(o.queue)
	if queue == "" {
		queue = backend.DefaultQueue
	}
	return backend.EnqueueRequest{
		Queue:         queue,
		Target:        target,
		WorkflowID:    strings.TrimSpace(o.workflowID),
		ActivityID:    activityID,
		Configuration: configuration,
	}, true, nil
}

// parseConfigPairs turns key=value flags into activity configuration.
// Booleans and integers are typed; everything else stays a string.
func parseConfigPairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, err := splitPair(pair, "--config")
		if err != nil {
			return nil, err
		}
		out[key] = typedValue(value)
	}
	return out, nil
}

func splitPair(pair, flag string) (string, string, error) {
	key, value, ok := strings.Cut(pair, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("%s %q: expected key=value", flag, pair)
	}
	return key, strings.TrimSpace(value), nil
}

func typedValue(raw string) any {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}

func printEnqueued(cmd *cobra.Command, jobs []*backend.Job) {
	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs enqueued (initial state has no activities)")
		return
	}
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{job.ID, job.Queue, job.ActivityID, job.Target.String()})
	}
	fmt.Fprintln(out, renderTable([]string{"Job", "Queue", "Activity", "Target"}, rows, nil))
	fmt.Fprintf(out, "Enqueued %d job(s)\n", len(jobs))
}
