package search

import (
	"context"
	"strings"

	"github.com/agentfusion/contextd/internal/embed"
	"github.com/agentfusion/contextd/internal/store"
)

// Candidate is one provider hit before fusion. Score semantics are
// provider-local; fusion only uses the rank order.
type Candidate struct {
	ChunkID int64
	Score   float64
}

// Provider is one retrieval strategy.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, k int) ([]Candidate, error)
}

// SemanticProvider embeds the query once and searches the vector index.
// Scores are cosine similarities.
type SemanticProvider struct {
	embedder embed.Embedder
	vectors  *store.VectorIndex
}

func NewSemanticProvider(embedder embed.Embedder, vectors *store.VectorIndex) *SemanticProvider {
	return &SemanticProvider{embedder: embedder, vectors: vectors}
}

func (p *SemanticProvider) Name() string { return "semantic" }

func (p *SemanticProvider) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := p.vectors.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, Candidate{ChunkID: r.ChunkID, Score: float64(r.Score)})
	}
	return candidates, nil
}

// SymbolProvider matches query tokens against declared symbol names.
// Per chunk: score = (exact hits × 2 + prefix hits) / token count.
type SymbolProvider struct {
	st *store.Store
}

func NewSymbolProvider(st *store.Store) *SymbolProvider {
	return &SymbolProvider{st: st}
}

func (p *SymbolProvider) Name() string { return "symbol" }

func (p *SymbolProvider) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	tokens := symbolQueryTokens(query)
	if len(tokens) == 0 {
		return []Candidate{}, nil
	}

	scores := make(map[int64]float64)
	for _, token := range tokens {
		matches, err := p.st.SearchSymbols(ctx, token, k*4)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if m.Exact {
				scores[m.ChunkID] += 2
			} else {
				scores[m.ChunkID]++
			}
		}
	}

	candidates := make([]Candidate, 0, len(scores))
	for id, raw := range scores {
		candidates = append(candidates, Candidate{ChunkID: id, Score: raw / float64(len(tokens))})
	}
	sortCandidates(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// symbolQueryTokens splits a query on identifier boundaries: whitespace,
// dots, camelCase, and snake_case. The compound token is kept alongside
// its parts so exact symbol names still match.
func symbolQueryTokens(query string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	add := func(tok string) {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if len(tok) < 2 {
			return
		}
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}

	for _, field := range strings.FieldsFunc(query, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '.' || r == '/' || r == ':'
	}) {
		add(field)
		for _, part := range store.SplitCodeToken(field) {
			add(part)
		}
	}
	return tokens
}

// FullTextProvider is BM25 over chunk text.
type FullTextProvider struct {
	fts store.FullTextIndex
}

func NewFullTextProvider(fts store.FullTextIndex) *FullTextProvider {
	return &FullTextProvider{fts: fts}
}

func (p *FullTextProvider) Name() string { return "fulltext" }

func (p *FullTextProvider) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	results, err := p.fts.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, Candidate{ChunkID: r.ChunkID, Score: r.Score})
	}
	return candidates, nil
}
