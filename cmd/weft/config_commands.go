package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"weft/internal/config"
)

var skipConfigLoad = map[string]string{"skipConfigLoad": "true"}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check configuration files",
	}
	cmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		path      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the annotated sample configuration",
		Annotations: skipConfigLoad,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(path)
			if err != nil {
				return err
			}
			_, statErr := os.Stat(target)
			switch {
			case statErr == nil && !overwrite:
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			case statErr != nil && !errors.Is(statErr, fs.ErrNotExist):
				return fmt.Errorf("check config path: %w", statErr)
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n"+
				"Set [queues] spec and [backend] before running weft; the llm and vector sections are optional.\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

// initTarget expands path, falling back to the default config location.
func initTarget(path string) (string, error) {
	if path = strings.TrimSpace(path); path == "" {
		target, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return target, nil
	}
	target, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return target, nil
}

type configSummary struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	Queues   string `json:"queues"`
	Backend  string `json:"backend"`
	Storage  string `json:"storage"`
	StateDir string `json:"state_dir"`
	LLM      bool   `json:"llm_configured"`
	Vector   bool   `json:"vector_configured"`
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load, validate, and summarize the configuration",
		Annotations: skipConfigLoad,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			specs, err := cfg.QueueSpecs()
			if err != nil {
				return err
			}
			summary := configSummary{
				Path:     path,
				Exists:   exists,
				Queues:   config.FormatQueueSpec(specs),
				Backend:  cfg.Backend.Kind,
				Storage:  cfg.Storage.Kind,
				StateDir: cfg.Paths.StateDir,
				LLM:      strings.TrimSpace(cfg.LLM.APIKey) != "",
				Vector:   strings.TrimSpace(cfg.Vector.DSN) != "",
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, summary)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", summary.Path)
			if !summary.Exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintf(out, "Queues: %s\n", summary.Queues)
			fmt.Fprintf(out, "Backend: %s (storage %s)\n", summary.Backend, summary.Storage)
			fmt.Fprintf(out, "State dir: %s\n", summary.StateDir)
			fmt.Fprintf(out, "LLM: %s, vector store: %s\n", yesNo(summary.LLM), yesNo(summary.Vector))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
