package preflight

import (
	"context"

	"weft/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
// Service checks only run when the service is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
		CheckFreeSpace("Temp free space", cfg.Paths.TempDir, cfg.Media.MinFreeGiB),
	}
	if cfg.Storage.Kind == config.StorageFS {
		results = append(results, CheckDirectoryAccess("Content directory", cfg.Paths.ContentDir))
	}
	results = append(results, CheckBinaries(MediaRequirements(cfg))...)

	if cfg.LLM.APIKey != "" {
		results = append(results, CheckLLM(ctx, "LLM", cfg))
	}
	if cfg.Backend.Kind == config.BackendRemote {
		results = append(results, CheckHTTP(ctx, "Remote backend", cfg.Backend.URL, cfg.Backend.Token))
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
