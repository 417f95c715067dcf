package cmd

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentfusion/contextd/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit     int
	maxTokens int
	languages []string
	kinds     []string
	paths     []string
	excludes  []string
	format    string
	explain   bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed workspace",
		Long: `Search the indexed workspace with hybrid retrieval.

Semantic, symbol, and full-text providers run in parallel and their
rankings are fused, reranked for diversity, and trimmed to a token budget.

Examples:
  contextd search "authentication middleware"
  contextd search "NewSession" --language go --limit 5
  contextd search "setup instructions" --path docs
  contextd search "error handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 = configured default)")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "Token budget for returned text (0 = configured default)")
	cmd.Flags().StringSliceVarP(&opts.languages, "language", "l", nil, "Filter by language (repeatable)")
	cmd.Flags().StringSliceVar(&opts.kinds, "kind", nil, "Filter by chunk kind (repeatable, e.g. code_function)")
	cmd.Flags().StringSliceVarP(&opts.paths, "path", "p", nil, "Filter by path prefix or glob (repeatable)")
	cmd.Flags().StringSliceVar(&opts.excludes, "exclude", nil, "Exclude paths matching glob (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show per-provider timing and contributions")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	resp, err := eng.Query(ctx, search.Request{
		Query:     query,
		K:         opts.limit,
		MaxTokens: opts.maxTokens,
		Filter: search.Filter{
			Paths:           opts.paths,
			Languages:       opts.languages,
			Kinds:           opts.kinds,
			ExcludePatterns: opts.excludes,
		},
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out := newOutput(cmd)
	if len(resp.Hits) == 0 {
		out.Statusf("no results for %q", query)
		return nil
	}

	for i, hit := range resp.Hits {
		out.Hit(i+1, hit.FilePath, hit.StartLine, hit.EndLine, hit.Language, hit.Kind, hit.Score, hit.Text)
	}
	out.Statusf("%d of %d results, %d tokens, %s",
		len(resp.Hits), resp.TotalHits, resp.TokensUsed, resp.Duration.Round(time.Millisecond))

	if opts.explain {
		out.Newline()
		out.Header("Providers")
		names := make([]string, 0, len(resp.Providers))
		for name := range resp.Providers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			stats := resp.Providers[name]
			detail := "ok"
			switch {
			case stats.TimedOut:
				detail = "timed out"
			case stats.Err != "":
				detail = stats.Err
			}
			out.Statusf("  %-10s %3d hits  %4dms  %s", name, stats.Hits, stats.DurationMs, detail)
		}
	}
	return nil
}
