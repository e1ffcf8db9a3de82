package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"weft/internal/backend"
	"weft/internal/services"
	"weft/internal/services/llm"
	"weft/internal/services/vectorstore"
)

const (
	defaultSearchLimit = 20
	snippetWidth       = 80
)

func newContentCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Create and search content",
	}
	cmd.AddCommand(newContentAddCommand(ctx))
	cmd.AddCommand(newContentCollectionCommand(ctx))
	cmd.AddCommand(newContentSearchCommand(ctx))
	return cmd
}

func newContentAddCommand(ctx *commandContext) *cobra.Command {
	var name, contentType string
	var attrs []string

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Create a metadata entity from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			attributes, err := parseConfigPairs(attrs)
			if err != nil {
				return err
			}
			in := backend.MetadataInput{
				Name:        strings.TrimSpace(name),
				ContentType: strings.TrimSpace(contentType),
				Attributes:  attributes,
			}
			if in.Name == "" {
				in.Name = filepath.Base(path)
			}
			if in.ContentType == "" {
				in.ContentType = detectContentType(path)
			}
			return ctx.withBackend(cmd, func(runCtx context.Context, client backend.Client) error {
				file, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open %s: %w", path, err)
				}
				defer file.Close()
				meta, err := client.CreateMetadata(runCtx, in, file)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, meta)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s, %d bytes)\n", meta.Ref(), meta.ContentType, meta.ContentLength)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name (default file name)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type (default from file extension)")
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "Attribute as key=value (repeatable)")
	return cmd
}

func newContentCollectionCommand(ctx *commandContext) *cobra.Command {
	var attrs []string

	cmd := &cobra.Command{
		Use:   "collection <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attributes, err := parseConfigPairs(attrs)
			if err != nil {
				return err
			}
			return ctx.withBackend(cmd, func(runCtx context.Context, client backend.Client) error {
				col, err := client.CreateCollection(runCtx, strings.TrimSpace(args[0]), attributes)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, col)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", backend.CollectionRef(col.ID))
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "Attribute as key=value (repeatable)")
	return cmd
}

func newContentSearchCommand(ctx *commandContext) *cobra.Command {
	var query string
	var filters []string
	var limit int
	var semantic bool

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search indexed content",
		Long: "Runs a full-text query against the search index. With --semantic the query\n" +
			"is embedded and matched against stored chunks in the vector store instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			query = strings.TrimSpace(query)
			if query == "" {
				return errors.New("--query is required")
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			if semantic {
				if len(filters) > 0 {
					return errors.New("--filter is not supported with --semantic")
				}
				return runSemanticSearch(cmd, ctx, query, limit)
			}
			filter, err := parseFilterPairs(filters)
			if err != nil {
				return err
			}
			return ctx.withBackend(cmd, func(runCtx context.Context, client backend.Client) error {
				hits, err := client.Search(runCtx, backend.SearchQuery{Query: query, Filter: filter, Limit: limit})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, hits)
				}
				printSearchHits(cmd, hits)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&query, "query", "q", "", "Search text")
	flags.StringArrayVar(&filters, "filter", nil, "Exact attribute match as key=value (repeatable)")
	flags.IntVar(&limit, "limit", defaultSearchLimit, "Maximum results")
	flags.BoolVar(&semantic, "semantic", false, "Use embedding similarity instead of full-text search")
	return cmd
}

func runSemanticSearch(cmd *cobra.Command, ctx *commandContext, query string, limit int) error {
	cfg := ctx.configValue()
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	client := llm.NewClient(llm.FromConfig(cfg))
	if !client.Configured() {
		return services.Wrap(services.ErrConfiguration, "cli", "semantic search", "llm.api_key is not set", nil)
	}
	vectors, err := client.Embed(runCtx, []string{query})
	if err != nil {
		return err
	}
	if len(vectors) != 1 {
		return services.Wrap(services.ErrExternalTool, "cli", "semantic search", fmt.Sprintf("expected 1 embedding, got %d", len(vectors)), nil)
	}
	store, err := vectorstore.Open(runCtx, cfg.Vector)
	if err != nil {
		return err
	}
	defer store.Close()
	matches, err := store.Query(runCtx, vectors[0], limit)
	if err != nil {
		return err
	}
	if ctx.JSONMode() {
		return writeJSON(cmd, matches)
	}
	printMatches(cmd, matches)
	return nil
}

func parseFilterPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, err := splitPair(pair, "--filter")
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func printSearchHits(cmd *cobra.Command, hits []backend.SearchHit) {
	out := cmd.OutOrStdout()
	if len(hits) == 0 {
		fmt.Fprintln(out, "No matches")
		return
	}
	rows := make([][]string, 0, len(hits))
	for _, hit := range hits {
		rows = append(rows, []string{
			hit.Target.String(),
			hit.Title,
			truncate(hit.Snippet, snippetWidth),
			strconv.FormatFloat(hit.Score, 'f', 3, 64),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Target", "Title", "Snippet", "Score"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
}

func printMatches(cmd *cobra.Command, matches []vectorstore.Match) {
	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintln(out, "No matches")
		return
	}
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{
			m.Owner,
			strconv.Itoa(m.Index),
			truncate(m.Text, snippetWidth),
			strconv.FormatFloat(m.Distance, 'f', 4, 64),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Owner", "Chunk", "Text", "Distance"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight}))
}

func detectContentType(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// truncate shortens s to width runes on a single line.
func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-1]) + "…"
}
