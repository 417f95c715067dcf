package store

import "context"

// FullTextBackend selects the full-text index implementation.
type FullTextBackend string

const (
	// FullTextBackendFTS5 uses SQLite FTS5 (default). WAL mode allows
	// concurrent readers.
	FullTextBackendFTS5 FullTextBackend = "fts5"

	// FullTextBackendBleve uses Bleve v2. BoltDB holds an exclusive file
	// lock, so it is single-process only.
	FullTextBackendBleve FullTextBackend = "bleve"
)

// FullTextDocument is one chunk's text for full-text indexing.
type FullTextDocument struct {
	ChunkID int64
	Text    string
}

// FullTextResult is one BM25-scored hit. Higher scores are better.
type FullTextResult struct {
	ChunkID      int64
	Score        float64
	MatchedTerms []string
}

// FullTextIndex is the BM25 search index over chunk text.
type FullTextIndex interface {
	// Index adds or updates documents.
	Index(ctx context.Context, docs []FullTextDocument) error

	// Delete removes documents by chunk ID.
	Delete(ctx context.Context, chunkIDs []int64) error

	// Search returns up to limit hits for the query, best first. An
	// empty or unparseable query returns no hits, not an error.
	Search(ctx context.Context, query string, limit int) ([]FullTextResult, error)

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)

	// Reset removes every document. Used by full rebuilds.
	Reset(ctx context.Context) error

	// Close releases resources.
	Close() error
}
