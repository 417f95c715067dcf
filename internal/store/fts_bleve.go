package store

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/agentfusion/contextd/internal/errors"
)

const (
	codeTokenizerName  = "code_tokenizer"
	codeStopFilterName = "code_stop"
	codeAnalyzerName   = "code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(codeStopFilterName, codeStopFilterConstructor)
}

// BleveIndex is the Bleve v2 full-text backend with a code-aware
// analyzer. BoltDB's exclusive lock makes it single-process only.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// bleveChunkDoc is the indexed document shape.
type bleveChunkDoc struct {
	Content string `json:"content"`
}

// NewBleveIndex opens (or creates) a Bleve index at path. An empty path
// creates an in-memory index for tests.
func NewBleveIndex(path string) (*BleveIndex, error) {
	indexMapping, err := createBleveMapping()
	if err != nil {
		return nil, errors.StoreError("create bleve mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, errors.StoreError("create fulltext directory", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, errors.StoreError("open bleve index", err)
	}
	return &BleveIndex{index: idx, path: path}, nil
}

func createBleveMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": codeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			codeStopFilterName,
		},
	})
	if err != nil {
		return nil, err
	}
	indexMapping.DefaultAnalyzer = codeAnalyzerName
	return indexMapping, nil
}

// Index adds or updates documents.
func (b *BleveIndex) Index(ctx context.Context, docs []FullTextDocument) error {
	if len(docs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.StoreError("fulltext index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		id := strconv.FormatInt(doc.ChunkID, 10)
		if err := batch.Index(id, bleveChunkDoc{Content: doc.Text}); err != nil {
			return errors.StoreError("batch fulltext document", err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return errors.StoreError("execute fulltext batch", err)
	}
	return nil
}

// Delete removes documents by chunk ID.
func (b *BleveIndex) Delete(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.StoreError("fulltext index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(strconv.FormatInt(id, 10))
	}
	if err := b.index.Batch(batch); err != nil {
		return errors.StoreError("execute fulltext delete batch", err)
	}
	return nil
}

// Search runs a BM25-ranked match query.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]FullTextResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.StoreError("fulltext index is closed", nil)
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []FullTextResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")
	request := bleve.NewSearchRequest(matchQuery)
	request.Size = limit
	request.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, request)
	if err != nil {
		return nil, errors.StoreError("fulltext search", err)
	}

	results := make([]FullTextResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		chunkID, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		results = append(results, FullTextResult{
			ChunkID:      chunkID,
			Score:        hit.Score,
			MatchedTerms: matchedTermsOf(hit),
		})
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (b *BleveIndex) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, errors.StoreError("fulltext index is closed", nil)
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, errors.StoreError("count fulltext documents", err)
	}
	return int(n), nil
}

// Reset removes every document. Bleve has no truncate, so IDs are
// collected via match-all and deleted in batches.
func (b *BleveIndex) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.StoreError("fulltext index is closed", nil)
	}

	for {
		request := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
		request.Size = 1000
		result, err := b.index.SearchInContext(ctx, request)
		if err != nil {
			return errors.StoreError("enumerate fulltext documents", err)
		}
		if len(result.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range result.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return errors.StoreError("execute fulltext reset batch", err)
		}
	}
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func matchedTermsOf(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, locations := range hit.Locations {
		for term := range locations {
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				terms = append(terms, term)
			}
		}
	}
	return terms
}

var _ FullTextIndex = (*BleveIndex)(nil)

// codeTokenizerConstructor wires TokenizeCode into Bleve's analysis
// chain.
func codeTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveCodeTokenizer{}, nil
}

type bleveCodeTokenizer struct{}

func (t *bleveCodeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := TokenizeCode(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)
		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

func codeStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveCodeStopFilter{stopWords: BuildStopWordMap(DefaultCodeStopWords)}, nil
}

type bleveCodeStopFilter struct {
	stopWords map[string]struct{}
}

func (f *bleveCodeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
