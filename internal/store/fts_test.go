package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both backends must satisfy the same behavioral contract.
func fullTextBackends(t *testing.T) map[string]FullTextIndex {
	t.Helper()
	fts5, err := NewFTS5Index("")
	require.NoError(t, err)
	blv, err := NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = fts5.Close()
		_ = blv.Close()
	})
	return map[string]FullTextIndex{"fts5": fts5, "bleve": blv}
}

func TestFullText_IndexAndSearch(t *testing.T) {
	for name, idx := range fullTextBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, []FullTextDocument{
				{ChunkID: 1, Text: "func openDatabaseConnection(dsn string) establishes the pool"},
				{ChunkID: 2, Text: "render the HTML template for the footer section"},
			}))

			results, err := idx.Search(ctx, "database connection", 10)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.EqualValues(t, 1, results[0].ChunkID)
			assert.Greater(t, results[0].Score, 0.0)
		})
	}
}

func TestFullText_CamelCaseMatchesParts(t *testing.T) {
	for name, idx := range fullTextBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, []FullTextDocument{
				{ChunkID: 7, Text: "replaceFileArtifacts swaps chunks atomically"},
			}))

			results, err := idx.Search(ctx, "artifacts", 10)
			require.NoError(t, err)
			require.NotEmpty(t, results, "identifier parts must be searchable")
			assert.EqualValues(t, 7, results[0].ChunkID)
		})
	}
}

func TestFullText_UpdateReplacesContent(t *testing.T) {
	for name, idx := range fullTextBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, []FullTextDocument{{ChunkID: 1, Text: "original banana content"}}))
			require.NoError(t, idx.Index(ctx, []FullTextDocument{{ChunkID: 1, Text: "replacement cherry content"}}))

			results, err := idx.Search(ctx, "banana", 10)
			require.NoError(t, err)
			assert.Empty(t, results)

			results, err = idx.Search(ctx, "cherry", 10)
			require.NoError(t, err)
			require.Len(t, results, 1)

			n, err := idx.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestFullText_Delete(t *testing.T) {
	for name, idx := range fullTextBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, []FullTextDocument{
				{ChunkID: 1, Text: "keep this document"},
				{ChunkID: 2, Text: "remove this document"},
			}))
			require.NoError(t, idx.Delete(ctx, []int64{2}))

			results, err := idx.Search(ctx, "remove", 10)
			require.NoError(t, err)
			for _, r := range results {
				assert.NotEqualValues(t, 2, r.ChunkID)
			}
		})
	}
}

func TestFullText_EmptyQuery(t *testing.T) {
	for name, idx := range fullTextBackends(t) {
		t.Run(name, func(t *testing.T) {
			results, err := idx.Search(context.Background(), "   ", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestFullText_ResetRemovesEverything(t *testing.T) {
	for name, idx := range fullTextBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, []FullTextDocument{
				{ChunkID: 1, Text: "first document about parsers"},
				{ChunkID: 2, Text: "second document about lexers"},
			}))

			require.NoError(t, idx.Reset(ctx))

			n, err := idx.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)

			results, err := idx.Search(ctx, "document", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestNewFullTextIndex_UnknownBackend(t *testing.T) {
	_, err := NewFullTextIndex("lucene", "")
	assert.Error(t, err)
}
