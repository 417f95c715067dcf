package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agentfusion/contextd/internal/config"
	"github.com/agentfusion/contextd/internal/embed"
	"github.com/agentfusion/contextd/internal/store"
)

// candidatePoolCap bounds the MMR pool regardless of k.
const candidatePoolCap = 50

// fanoutCap bounds the per-provider fetch regardless of k.
const fanoutCap = 100

type weightedProvider struct {
	provider Provider
	weight   float64
}

// Pipeline fans a query out to the enabled providers and fuses their
// rankings into a budgeted result list.
type Pipeline struct {
	cfg       *config.Config
	st        *store.Store
	providers []weightedProvider
	logger    *slog.Logger
}

// NewPipeline wires the providers the config enables.
func NewPipeline(cfg *config.Config, st *store.Store, embedder embed.Embedder,
	vectors *store.VectorIndex, fulltext store.FullTextIndex, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	pl := &Pipeline{cfg: cfg, st: st, logger: logger}
	if cfg.Providers.Semantic.Enabled {
		pl.providers = append(pl.providers, weightedProvider{
			provider: NewSemanticProvider(embedder, vectors),
			weight:   cfg.Providers.Semantic.Weight,
		})
	}
	if cfg.Providers.Symbol.Enabled {
		pl.providers = append(pl.providers, weightedProvider{
			provider: NewSymbolProvider(st),
			weight:   cfg.Providers.Symbol.Weight,
		})
	}
	if cfg.Providers.FullText.Enabled {
		pl.providers = append(pl.providers, weightedProvider{
			provider: NewFullTextProvider(fulltext),
			weight:   cfg.Providers.FullText.Weight,
		})
	}
	return pl
}

// Query runs the full pipeline: fan-out, RRF fusion, filtering, MMR
// rerank, token budget. Provider failures degrade the result set; only
// an invalid filter or a store failure is an error.
func (pl *Pipeline) Query(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	k := req.K
	if k <= 0 {
		k = pl.cfg.Query.DefaultK
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = pl.cfg.Budget.DefaultMaxTokens
	}

	m, err := compileFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	resp := &Response{Providers: make(map[string]ProviderStats)}
	if strings.TrimSpace(req.Query) == "" {
		resp.Hits = []Hit{}
		resp.Duration = time.Since(start)
		return resp, nil
	}

	if pl.cfg.Query.DeadlineMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(pl.cfg.Query.DeadlineMs)*time.Millisecond)
		defer cancel()
	}

	kPrime := k * 3
	if kPrime > fanoutCap {
		kPrime = fanoutCap
	}
	lists := pl.fanOut(ctx, req.Query, kPrime, resp.Providers)

	fusedAll := fuse(lists)
	if len(fusedAll) == 0 {
		resp.Hits = []Hit{}
		resp.Duration = time.Since(start)
		return resp, nil
	}

	ids := make([]int64, 0, len(fusedAll))
	for _, f := range fusedAll {
		ids = append(ids, f.ChunkID)
	}
	chunks, err := pl.st.ChunksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]store.ChunkRecord, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	// Filtering happens on fused candidates: a chunk any provider found
	// is dropped here only if the caller scoped it out.
	filtered := fusedAll[:0]
	for _, f := range fusedAll {
		c, ok := byID[f.ChunkID]
		if !ok {
			continue
		}
		if m.Match(c) {
			filtered = append(filtered, f)
		}
	}
	resp.TotalHits = len(filtered)

	poolSize := k * 2
	if poolSize > candidatePoolCap {
		poolSize = candidatePoolCap
	}
	pool := filtered
	if len(pool) > poolSize {
		pool = pool[:poolSize]
	}

	selected, err := pl.rerank(ctx, pool, k)
	if err != nil {
		return nil, err
	}

	resp.Hits, resp.TokensUsed = pl.applyBudget(selected, byID, maxTokens)
	resp.Duration = time.Since(start)
	return resp, nil
}

// fanOut queries every provider in parallel. A provider that errors or
// misses the deadline contributes an empty list, recorded in stats.
func (pl *Pipeline) fanOut(ctx context.Context, query string, k int, stats map[string]ProviderStats) []rankedList {
	lists := make([]rankedList, len(pl.providers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, wp := range pl.providers {
		i, wp := i, wp
		wg.Add(1)
		go func() {
			defer wg.Done()
			began := time.Now()
			candidates, err := wp.provider.Search(ctx, query, k)
			st := ProviderStats{
				Hits:       len(candidates),
				DurationMs: time.Since(began).Milliseconds(),
			}
			if err != nil {
				st.TimedOut = ctx.Err() == context.DeadlineExceeded
				st.Err = err.Error()
				pl.logger.Warn("provider failed",
					slog.String("provider", wp.provider.Name()),
					slog.String("error", err.Error()))
				candidates = nil
				st.Hits = 0
			}
			lists[i] = rankedList{Provider: wp.provider.Name(), Weight: wp.weight, Candidates: candidates}
			mu.Lock()
			stats[wp.provider.Name()] = st
			mu.Unlock()
		}()
	}
	wg.Wait()
	return lists
}

// rerank applies MMR diversity when enabled, otherwise takes the top k
// above the relevance threshold.
func (pl *Pipeline) rerank(ctx context.Context, pool []fused, k int) ([]fused, error) {
	minScore := pl.cfg.Query.MinScoreThreshold
	if !pl.cfg.Query.RerankEnabled {
		var out []fused
		for _, f := range pool {
			if f.Relevance < minScore {
				continue
			}
			out = append(out, f)
			if len(out) == k {
				break
			}
		}
		return out, nil
	}

	ids := make([]int64, 0, len(pool))
	for _, f := range pool {
		ids = append(ids, f.ChunkID)
	}
	embeddings, err := pl.st.EmbeddingsByChunkIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return mmrRerank(pool, embeddings, pl.cfg.Query.MMRLambda, k, minScore), nil
}

// applyBudget keeps selected chunks in order until adding the next one
// would exceed the budget after the prompt reserve.
func (pl *Pipeline) applyBudget(selected []fused, byID map[int64]store.ChunkRecord, maxTokens int) ([]Hit, int) {
	budget := maxTokens - pl.cfg.Budget.ReserveForPrompt
	hits := make([]Hit, 0, len(selected))
	used := 0
	for _, f := range selected {
		c, ok := byID[f.ChunkID]
		if !ok {
			continue
		}
		if used+c.TokenCount > budget {
			break
		}
		used += c.TokenCount
		hits = append(hits, Hit{
			ChunkID:       c.ID,
			Score:         f.Score,
			FilePath:      c.RelPath,
			Language:      c.Language,
			Kind:          c.Kind,
			StartLine:     c.StartLine,
			EndLine:       c.EndLine,
			Text:          c.Text,
			Contributions: f.Contributions,
		})
	}
	return hits, used
}
