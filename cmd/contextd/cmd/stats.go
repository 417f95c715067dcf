package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long: `Display index statistics: tracked files, chunks, symbols,
embeddings, database size, language distribution, and provider status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// statsOutput is the JSON shape for `contextd stats --json`.
type statsOutput struct {
	Files        int                `json:"files"`
	IndexedFiles int                `json:"indexed_files"`
	ErrorFiles   int                `json:"error_files"`
	DeletedFiles int                `json:"deleted_files"`
	Chunks       int                `json:"chunks"`
	Symbols      int                `json:"symbols"`
	Embeddings   int                `json:"embeddings"`
	VectorCount  int                `json:"vector_count"`
	FullTextDocs int                `json:"fulltext_docs"`
	DBSizeBytes  int64              `json:"db_size_bytes"`
	ModelTag     string             `json:"model_tag"`
	Languages    map[string]int     `json:"languages"`
	Providers    map[string]float64 `json:"provider_weights"`
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.Stats(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		payload := statsOutput{
			Files:        stats.Store.Files,
			IndexedFiles: stats.Store.IndexedFiles,
			ErrorFiles:   stats.Store.ErrorFiles,
			DeletedFiles: stats.Store.DeletedFiles,
			Chunks:       stats.Store.Chunks,
			Symbols:      stats.Store.Symbols,
			Embeddings:   stats.Store.Embeddings,
			VectorCount:  stats.VectorCount,
			FullTextDocs: stats.FullTextDocs,
			DBSizeBytes:  stats.Store.DBSizeBytes,
			ModelTag:     stats.ModelTag,
			Languages:    stats.Languages,
			Providers:    map[string]float64{},
		}
		for name, p := range stats.Providers {
			if p.Enabled {
				payload.Providers[name] = p.Weight
			}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	out := newOutput(cmd)
	out.Header("Index")
	out.Field("Files", fmt.Sprintf("%d tracked (%d indexed, %d errored, %d deleted)",
		stats.Store.Files, stats.Store.IndexedFiles, stats.Store.ErrorFiles, stats.Store.DeletedFiles))
	out.Field("Chunks", stats.Store.Chunks)
	out.Field("Symbols", stats.Store.Symbols)
	out.Field("Embeddings", fmt.Sprintf("%d stored, %d in vector index", stats.Store.Embeddings, stats.VectorCount))
	out.Field("Full-text", fmt.Sprintf("%d documents", stats.FullTextDocs))
	out.Field("DB size", fmt.Sprintf("%.1f MiB", float64(stats.Store.DBSizeBytes)/(1<<20)))
	out.Field("Model", stats.ModelTag)

	if len(stats.Languages) > 0 {
		out.Newline()
		out.Header("Languages")
		names := make([]string, 0, len(stats.Languages))
		for name := range stats.Languages {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if stats.Languages[names[i]] != stats.Languages[names[j]] {
				return stats.Languages[names[i]] > stats.Languages[names[j]]
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			out.Field(name, stats.Languages[name])
		}
	}

	out.Newline()
	out.Header("Providers")
	providerNames := make([]string, 0, len(stats.Providers))
	for name := range stats.Providers {
		providerNames = append(providerNames, name)
	}
	sort.Strings(providerNames)
	for _, name := range providerNames {
		p := stats.Providers[name]
		if p.Enabled {
			out.Field(name, fmt.Sprintf("enabled, weight %.2f", p.Weight))
		} else {
			out.Field(name, "disabled")
		}
	}
	return nil
}
