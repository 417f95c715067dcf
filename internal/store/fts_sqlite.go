package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/agentfusion/contextd/internal/errors"
)

// FTS5Index is the SQLite FTS5 full-text backend. Content is
// pre-tokenized with the code tokenizer so camelCase and snake_case
// identifiers match their parts.
type FTS5Index struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	stopWords map[string]struct{}
	closed    bool
}

// NewFTS5Index opens (or creates) the FTS5 index at path. An empty path
// creates an in-memory index for tests.
func NewFTS5Index(path string) (*FTS5Index, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.StoreError("create fulltext directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StoreError("open fulltext database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.StoreError("set fulltext pragma", err)
		}
	}

	// chunk_id is UNINDEXED: stored for retrieval, not searchable.
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_chunks USING fts5(
		chunk_id UNINDEXED,
		content,
		tokenize='unicode61'
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.StoreError("create fts5 schema", err)
	}

	return &FTS5Index{
		db:        db,
		path:      path,
		stopWords: BuildStopWordMap(DefaultCodeStopWords),
	}, nil
}

// Index adds or updates documents. FTS5 virtual tables lack REPLACE, so
// existing rows are deleted first.
func (f *FTS5Index) Index(ctx context.Context, docs []FullTextDocument) error {
	if len(docs) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.StoreError("fulltext index is closed", nil)
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError("begin fulltext transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_chunks WHERE chunk_id = ?`)
	if err != nil {
		return errors.StoreError("prepare fulltext delete", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_chunks(chunk_id, content) VALUES (?, ?)`)
	if err != nil {
		return errors.StoreError("prepare fulltext insert", err)
	}
	defer insertStmt.Close()

	for _, doc := range docs {
		tokens := FilterStopWords(TokenizeCode(doc.Text), f.stopWords)
		processed := strings.Join(tokens, " ")

		if _, err := deleteStmt.ExecContext(ctx, doc.ChunkID); err != nil {
			return errors.StoreError(fmt.Sprintf("delete stale fulltext row %d", doc.ChunkID), err)
		}
		if _, err := insertStmt.ExecContext(ctx, doc.ChunkID, processed); err != nil {
			return errors.StoreError(fmt.Sprintf("index fulltext row %d", doc.ChunkID), err)
		}
	}
	return tx.Commit()
}

// Delete removes documents by chunk ID.
func (f *FTS5Index) Delete(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.StoreError("fulltext index is closed", nil)
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError("begin fulltext delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_chunks WHERE chunk_id = ?`)
	if err != nil {
		return errors.StoreError("prepare fulltext delete", err)
	}
	defer stmt.Close()
	for _, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return errors.StoreError("delete fulltext row", err)
		}
	}
	return tx.Commit()
}

// Search runs a BM25-ranked match. The query goes through the same
// tokenization as indexed content.
func (f *FTS5Index) Search(ctx context.Context, query string, limit int) ([]FullTextResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, errors.StoreError("fulltext index is closed", nil)
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []FullTextResult{}, nil
	}

	tokens := FilterStopWords(TokenizeCode(query), f.stopWords)
	if len(tokens) == 0 {
		return []FullTextResult{}, nil
	}
	// Quote terms so identifier fragments never parse as FTS5 operators,
	// and OR them so partial matches still rank.
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	matchQuery := strings.Join(quoted, " OR ")

	// bm25() returns negative values where lower is better.
	rows, err := f.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(fts_chunks) AS score
		FROM fts_chunks
		WHERE content MATCH ?
		ORDER BY score
		LIMIT ?`, matchQuery, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return []FullTextResult{}, nil
		}
		return nil, errors.StoreError("fulltext search", err)
	}
	defer rows.Close()

	var results []FullTextResult
	for rows.Next() {
		var rawID string
		var score float64
		if err := rows.Scan(&rawID, &score); err != nil {
			return nil, errors.StoreError("scan fulltext hit", err)
		}
		chunkID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			continue
		}
		results = append(results, FullTextResult{
			ChunkID:      chunkID,
			Score:        -score,
			MatchedTerms: tokens,
		})
	}
	return results, rows.Err()
}

// Count returns the number of indexed documents.
func (f *FTS5Index) Count(ctx context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, errors.StoreError("fulltext index is closed", nil)
	}
	var n int
	if err := f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fts_chunks`).Scan(&n); err != nil {
		return 0, errors.StoreError("count fulltext rows", err)
	}
	return n, nil
}

// Reset removes every document. Used by full rebuilds.
func (f *FTS5Index) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.StoreError("fulltext index is closed", nil)
	}
	if _, err := f.db.ExecContext(ctx, `DELETE FROM fts_chunks`); err != nil {
		return errors.StoreError("reset fulltext index", err)
	}
	return nil
}

// Close checkpoints and closes the database.
func (f *FTS5Index) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.path != "" {
		_, _ = f.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return f.db.Close()
}

var _ FullTextIndex = (*FTS5Index)(nil)
