// Package search runs hybrid retrieval: semantic, symbol, and full-text
// providers fan out in parallel, their rankings are fused with
// Reciprocal Rank Fusion, reranked for diversity with MMR, and trimmed
// to a token budget.
package search

import "time"

// Filter narrows results. Zero values mean "no restriction".
type Filter struct {
	// Paths match exactly, by ancestor directory, or by glob
	// (e.g. "internal/**/*.go").
	Paths []string
	// Languages are lowercase language names ("go", "python").
	Languages []string
	// Kinds are chunk kinds ("CODE_FUNCTION", "DOC_SECTION").
	Kinds []string
	// ExcludePatterns are globs; any match drops the chunk.
	ExcludePatterns []string
}

// Request is one query.
type Request struct {
	Query     string
	K         int // result count; 0 = configured default
	MaxTokens int // token budget; 0 = configured default
	Filter    Filter
}

// Hit is one scored result.
type Hit struct {
	ChunkID   int64   `json:"chunk_id"`
	Score     float64 `json:"score"`
	FilePath  string  `json:"file_path"`
	Language  string  `json:"language"`
	Kind      string  `json:"kind"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Text      string  `json:"text"`
	// Contributions breaks the fused score down per provider.
	Contributions map[string]float64 `json:"contributions,omitempty"`
}

// ProviderStats is per-provider query metadata.
type ProviderStats struct {
	Hits       int    `json:"hits"`
	DurationMs int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out"`
	Err        string `json:"error,omitempty"`
}

// Response is the query result plus observability metadata.
type Response struct {
	Hits       []Hit                    `json:"hits"`
	TotalHits  int                      `json:"total_hits"` // fused candidates before rerank and budget
	TokensUsed int                      `json:"tokens_used"`
	Providers  map[string]ProviderStats `json:"providers"`
	Duration   time.Duration            `json:"duration_ns"`
}
