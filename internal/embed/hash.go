package embed

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/agentfusion/contextd/internal/errors"
)

// ModelTagHashV1 is the tag persisted alongside vectors from HashEmbedder.
const ModelTagHashV1 = "hash-v1"

// Feature weights for vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// HashEmbedder produces deterministic embeddings from token and character
// trigram features hashed into fixed buckets. It needs no model download
// and no network, trading semantic quality for speed and reproducibility.
type HashEmbedder struct {
	dim       int
	normalize bool

	mu     sync.RWMutex
	closed bool
}

// programmingStopWords are keywords too common in code to carry signal.
var programmingStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewHashEmbedder creates a hash embedder with the given dimension.
func NewHashEmbedder(dim int, normalize bool) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &HashEmbedder{dim: dim, normalize: normalize}
}

// Embed generates the embedding for a single text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errors.EmbeddingError("embedder is closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled("embed cancelled")
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dim), nil
	}

	vector := e.generateVector(trimmed)
	if e.normalize {
		vector = normalizeVector(vector)
	}
	return vector, nil
}

// EmbedBatch generates embeddings for multiple texts, index-aligned with
// the input.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int { return e.dim }

// ModelTag returns the model identifier.
func (e *HashEmbedder) ModelTag() string { return ModelTagHashV1 }

// Close releases resources.
func (e *HashEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// generateVector hashes token and trigram features into buckets.
func (e *HashEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, e.dim)

	for _, token := range filterStopWords(tokenize(text)) {
		vector[hashToIndex(token, e.dim)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ngram, e.dim)] += ngramWeight
	}
	return vector
}

// tokenize splits text into lowercase code-aware tokens, breaking
// camelCase and snake_case identifiers apart.
func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCodeToken(word) {
			if lower := strings.ToLower(t); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

func splitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			// Split when the previous or next rune is lowercase so runs of
			// capitals (acronyms) stay together.
			if (prevIsLower || nextIsLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func filterStopWords(tokens []string) []string {
	var filtered []string
	for _, t := range tokens {
		if !programmingStopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func normalizeForNgrams(text string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return nil
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

// hashToIndex maps a feature string to a bucket with xxhash.
func hashToIndex(s string, size int) int {
	return int(xxhash.Sum64String(s) % uint64(size))
}
