package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentfusion/contextd/internal/errors"
)

const schemaVersion = 1

// Store is the SQLite metadata store. A single writer connection with WAL
// mode keeps multi-goroutine access safe without lock contention.
type Store struct {
	db     *sql.DB
	path   string
	lock   *DBLock
	logger *slog.Logger
}

// Open opens (or creates) the store at path. An empty path opens an
// in-memory database for tests. On-disk stores take a cross-process file
// lock; a second process opening the same store fails fast with
// ERR_504_STORE_LOCKED.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dsn string
	var lock *DBLock
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.StoreError(fmt.Sprintf("create store directory %s", filepath.Dir(path)), err)
		}
		lock = NewDBLock(path)
		acquired, err := lock.TryLock()
		if err != nil {
			return nil, errors.StoreError("acquire store lock", err)
		}
		if !acquired {
			return nil, errors.New(errors.ErrCodeStoreLocked,
				fmt.Sprintf("store at %s is locked by another process", path), nil).
				WithSuggestion("stop the other contextd instance or point storage.db_path elsewhere")
		}
		if validErr := validateIntegrity(path); validErr != nil {
			lock.Unlock()
			return nil, errors.New(errors.ErrCodeStoreCorrupt,
				fmt.Sprintf("store at %s failed integrity check", path), validErr).
				WithSuggestion("remove the database file and rebuild the index")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		if lock != nil {
			lock.Unlock()
		}
		return nil, errors.StoreError("open database", err)
	}

	// Single writer prevents SQLITE_BUSY under concurrent indexing.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = OFF",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			if lock != nil {
				lock.Unlock()
			}
			return nil, errors.StoreError("set pragma", err)
		}
	}

	s := &Store{db: db, path: path, lock: lock, logger: logger}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		if lock != nil {
			lock.Unlock()
		}
		return nil, errors.StoreError("initialize schema", err)
	}
	return s, nil
}

// validateIntegrity runs a quick integrity check on an existing database
// file before the store opens it for real.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("quick_check reported: %s", result)
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS engine_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS files (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		root          TEXT NOT NULL,
		rel_path      TEXT NOT NULL,
		language      TEXT NOT NULL DEFAULT '',
		size_bytes    INTEGER NOT NULL DEFAULT 0,
		mtime_ns      INTEGER NOT NULL DEFAULT 0,
		content_hash  TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL DEFAULT 'PENDING',
		error_message TEXT NOT NULL DEFAULT '',
		indexed_at    INTEGER NOT NULL DEFAULT 0,
		updated_at    INTEGER NOT NULL DEFAULT 0,
		UNIQUE(root, rel_path)
	);
	CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);

	-- Chunk IDs come from AUTOINCREMENT and are never reused, so stale
	-- vector or full-text entries can never alias new content.
	CREATE TABLE IF NOT EXISTS chunks (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id     INTEGER NOT NULL,
		ordinal     INTEGER NOT NULL,
		kind        TEXT NOT NULL,
		start_line  INTEGER NOT NULL,
		end_line    INTEGER NOT NULL,
		byte_start  INTEGER NOT NULL,
		byte_end    INTEGER NOT NULL,
		token_count INTEGER NOT NULL,
		text        TEXT NOT NULL,
		summary     TEXT NOT NULL DEFAULT '',
		UNIQUE(file_id, ordinal)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);

	CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id  INTEGER PRIMARY KEY,
		file_id   INTEGER NOT NULL,
		model_tag TEXT NOT NULL,
		dim       INTEGER NOT NULL,
		vector    BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_file ON embeddings(file_id);

	CREATE TABLE IF NOT EXISTS symbols (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id       INTEGER NOT NULL,
		file_id        INTEGER NOT NULL,
		name           TEXT NOT NULL,
		kind           TEXT NOT NULL,
		qualified_name TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
	CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);

	CREATE TABLE IF NOT EXISTS links (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id    INTEGER NOT NULL,
		file_id     INTEGER NOT NULL,
		target_path TEXT NOT NULL,
		kind        TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_links_file ON links(file_id);

	CREATE TABLE IF NOT EXISTS usage_metrics (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id   INTEGER NOT NULL,
		file_id    INTEGER NOT NULL,
		event      TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_chunk ON usage_metrics(chunk_id);
	CREATE INDEX IF NOT EXISTS idx_usage_file ON usage_metrics(file_id);

	CREATE TABLE IF NOT EXISTS bootstrap_progress (
		root       TEXT NOT NULL,
		rel_path   TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'PENDING',
		attempts   INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY(root, rel_path)
	);
	CREATE INDEX IF NOT EXISTS idx_bootstrap_status ON bootstrap_progress(root, status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO engine_state(key, value) VALUES (?, ?)`,
		StateKeySchema, fmt.Sprintf("%d", schemaVersion))
	return err
}

// Close checkpoints the WAL, closes the database, and releases the file
// lock.
func (s *Store) Close() error {
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	err := s.db.Close()
	if s.lock != nil {
		s.lock.Unlock()
	}
	return err
}

// ReplacementResult reports what ReplaceFileArtifacts changed so the
// caller can mirror the change into the vector and full-text indexes.
type ReplacementResult struct {
	File            FileRecord
	NewChunks       []ChunkRecord
	RemovedChunkIDs []int64
}

// ReplaceFileArtifacts atomically swaps a file's indexed artifacts. In a
// single transaction it deletes the file's links, symbols, embeddings,
// usage metrics, and chunks, in that order, then inserts the new chunks
// with fresh IDs and upserts the file row as INDEXED. No partially
// updated state is ever visible.
func (s *Store) ReplaceFileArtifacts(ctx context.Context, file FileRecord, chunks []ChunkInput, modelTag string) (*ReplacementResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.StoreError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	fileID, removed, err := s.upsertFileTx(ctx, tx, &file, now)
	if err != nil {
		return nil, err
	}

	result := &ReplacementResult{RemovedChunkIDs: removed}
	for _, in := range chunks {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO chunks(file_id, ordinal, kind, start_line, end_line,
			                    byte_start, byte_end, token_count, text, summary)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, in.Ordinal, in.Kind, in.StartLine, in.EndLine,
			in.ByteStart, in.ByteEnd, in.TokenCount, in.Text, in.Summary)
		if err != nil {
			return nil, errors.StoreError(fmt.Sprintf("insert chunk %d of %s", in.Ordinal, file.RelPath), err)
		}
		chunkID, err := res.LastInsertId()
		if err != nil {
			return nil, errors.StoreError("read chunk id", err)
		}

		for _, sym := range in.Symbols {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO symbols(chunk_id, file_id, name, kind, qualified_name)
				 VALUES (?, ?, ?, ?, ?)`,
				chunkID, fileID, sym.Name, sym.Kind, sym.QualifiedName); err != nil {
				return nil, errors.StoreError("insert symbol", err)
			}
		}
		for _, link := range in.Links {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO links(chunk_id, file_id, target_path, kind)
				 VALUES (?, ?, ?, ?)`,
				chunkID, fileID, link.TargetPath, link.Kind); err != nil {
				return nil, errors.StoreError("insert link", err)
			}
		}
		if len(in.Vector) > 0 {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO embeddings(chunk_id, file_id, model_tag, dim, vector)
				 VALUES (?, ?, ?, ?, ?)`,
				chunkID, fileID, modelTag, len(in.Vector), encodeVector(in.Vector)); err != nil {
				return nil, errors.StoreError("insert embedding", err)
			}
		}

		result.NewChunks = append(result.NewChunks, ChunkRecord{
			ID:         chunkID,
			FileID:     fileID,
			Root:       file.Root,
			RelPath:    file.RelPath,
			Language:   file.Language,
			Ordinal:    in.Ordinal,
			Kind:       in.Kind,
			StartLine:  in.StartLine,
			EndLine:    in.EndLine,
			ByteStart:  in.ByteStart,
			ByteEnd:    in.ByteEnd,
			TokenCount: in.TokenCount,
			Text:       in.Text,
			Summary:    in.Summary,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.StoreError("commit replace", err)
	}
	file.ID = fileID
	result.File = file
	return result, nil
}

// upsertFileTx writes the file row as INDEXED and cascades away the old
// artifacts in the fixed order links, symbols, embeddings, usage
// metrics, chunks. Returns the file ID and the removed chunk IDs.
func (s *Store) upsertFileTx(ctx context.Context, tx *sql.Tx, file *FileRecord, now time.Time) (int64, []int64, error) {
	var fileID int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM files WHERE root = ? AND rel_path = ?`,
		file.Root, file.RelPath).Scan(&fileID)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx,
			`INSERT INTO files(root, rel_path, language, size_bytes, mtime_ns,
			                   content_hash, status, error_message, indexed_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
			file.Root, file.RelPath, file.Language, file.SizeBytes, file.MTimeNs,
			file.ContentHash, FileStatusIndexed, now.UnixNano(), now.UnixNano())
		if err != nil {
			return 0, nil, errors.StoreError("insert file", err)
		}
		fileID, err = res.LastInsertId()
		if err != nil {
			return 0, nil, errors.StoreError("read file id", err)
		}
		return fileID, nil, nil
	case err != nil:
		return 0, nil, errors.StoreError("lookup file", err)
	}

	removed, err := cascadeFileArtifactsTx(ctx, tx, fileID)
	if err != nil {
		return 0, nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE files SET language = ?, size_bytes = ?, mtime_ns = ?, content_hash = ?,
		        status = ?, error_message = '', indexed_at = ?, updated_at = ?
		 WHERE id = ?`,
		file.Language, file.SizeBytes, file.MTimeNs, file.ContentHash,
		FileStatusIndexed, now.UnixNano(), now.UnixNano(), fileID); err != nil {
		return 0, nil, errors.StoreError("update file", err)
	}
	return fileID, removed, nil
}

// cascadeFileArtifactsTx deletes a file's dependent rows. The order is
// fixed: links, symbols, embeddings, usage_metrics, then chunks, so no
// dependent row can outlive its chunk even mid-transaction.
func cascadeFileArtifactsTx(ctx context.Context, tx *sql.Tx, fileID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, errors.StoreError("list old chunks", err)
	}
	var removed []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.StoreError("scan chunk id", err)
		}
		removed = append(removed, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("iterate chunks", err)
	}

	for _, stmt := range []string{
		`DELETE FROM links WHERE file_id = ?`,
		`DELETE FROM symbols WHERE file_id = ?`,
		`DELETE FROM embeddings WHERE file_id = ?`,
		`DELETE FROM usage_metrics WHERE file_id = ?`,
		`DELETE FROM chunks WHERE file_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, fileID); err != nil {
			return nil, errors.StoreError("cascade delete", err)
		}
	}
	return removed, nil
}

// MarkFileDeleted tombstones a file and cascades its artifacts away. The
// removed chunk IDs are returned so the caller can purge the vector and
// full-text indexes. Unknown paths are a no-op.
func (s *Store) MarkFileDeleted(ctx context.Context, root, relPath string) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.StoreError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var fileID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM files WHERE root = ? AND rel_path = ?`, root, relPath).Scan(&fileID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StoreError("lookup file", err)
	}

	removed, err := cascadeFileArtifactsTx(ctx, tx, fileID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE files SET status = ?, error_message = '', updated_at = ? WHERE id = ?`,
		FileStatusDeleted, time.Now().UnixNano(), fileID); err != nil {
		return nil, errors.StoreError("tombstone file", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.StoreError("commit delete", err)
	}
	return removed, nil
}

// MarkFileError records a per-file indexing failure without touching any
// existing artifacts from the last good index of the file.
func (s *Store) MarkFileError(ctx context.Context, root, relPath, message string) error {
	now := time.Now().UnixNano()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files(root, rel_path, status, error_message, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(root, rel_path) DO UPDATE SET
		   status = excluded.status,
		   error_message = excluded.error_message,
		   updated_at = excluded.updated_at`,
		root, relPath, FileStatusError, message, now)
	if err != nil {
		return errors.StoreError("mark file error", err)
	}
	return nil
}

// TouchFile refreshes the stored mtime for a file whose content did not
// change, so the change detector's prefilter stops rehashing it.
func (s *Store) TouchFile(ctx context.Context, root, relPath string, mtimeNs int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET mtime_ns = ?, updated_at = ?
		 WHERE root = ? AND rel_path = ?`,
		mtimeNs, time.Now().UnixNano(), root, relPath)
	if err != nil {
		return errors.StoreError("touch file", err)
	}
	return nil
}

// GetFileByPath returns the tracked file or nil when unknown.
func (s *Store) GetFileByPath(ctx context.Context, root, relPath string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, root, rel_path, language, size_bytes, mtime_ns, content_hash,
		        status, error_message, indexed_at, updated_at
		 FROM files WHERE root = ? AND rel_path = ?`, root, relPath)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StoreError("get file", err)
	}
	return f, nil
}

// ListFiles returns all non-deleted tracked files under root, sorted by
// rel_path.
func (s *Store) ListFiles(ctx context.Context, root string) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, root, rel_path, language, size_bytes, mtime_ns, content_hash,
		        status, error_message, indexed_at, updated_at
		 FROM files WHERE root = ? AND status != ? ORDER BY rel_path`, root, FileStatusDeleted)
	if err != nil {
		return nil, errors.StoreError("list files", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, errors.StoreError("scan file", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*FileRecord, error) {
	var f FileRecord
	var indexedAt, updatedAt int64
	var status string
	if err := row.Scan(&f.ID, &f.Root, &f.RelPath, &f.Language, &f.SizeBytes,
		&f.MTimeNs, &f.ContentHash, &status, &f.ErrorMessage, &indexedAt, &updatedAt); err != nil {
		return nil, err
	}
	f.Status = FileStatus(status)
	if indexedAt > 0 {
		f.IndexedAt = time.Unix(0, indexedAt)
	}
	if updatedAt > 0 {
		f.UpdatedAt = time.Unix(0, updatedAt)
	}
	return &f, nil
}

// ChunksByIDs fetches chunks preserving the order of ids; missing IDs are
// skipped.
func (s *Store) ChunksByIDs(ctx context.Context, ids []int64) ([]ChunkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT c.id, c.file_id, f.root, f.rel_path, f.language, c.ordinal, c.kind,
		        c.start_line, c.end_line, c.byte_start, c.byte_end, c.token_count,
		        c.text, c.summary
		 FROM chunks c JOIN files f ON f.id = c.file_id
		 WHERE c.id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, errors.StoreError("fetch chunks", err)
	}
	defer rows.Close()

	byID := make(map[int64]ChunkRecord, len(ids))
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ID, &c.FileID, &c.Root, &c.RelPath, &c.Language,
			&c.Ordinal, &c.Kind, &c.StartLine, &c.EndLine, &c.ByteStart,
			&c.ByteEnd, &c.TokenCount, &c.Text, &c.Summary); err != nil {
			return nil, errors.StoreError("scan chunk", err)
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("iterate chunks", err)
	}

	out := make([]ChunkRecord, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// SearchSymbols finds symbols by exact or prefix name match against the
// pre-split token. Results carry the owning chunk ID.
func (s *Store) SearchSymbols(ctx context.Context, name string, limit int) ([]SymbolMatch, error) {
	if name == "" || limit <= 0 {
		return nil, nil
	}
	// Escape LIKE wildcards in the token itself.
	escaped := strings.NewReplacer("%", `\%`, "_", `\_`).Replace(name)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chunk_id, file_id, name, kind, qualified_name
		 FROM symbols
		 WHERE name = ? COLLATE NOCASE
		    OR name LIKE ? ESCAPE '\' COLLATE NOCASE
		 LIMIT ?`,
		name, escaped+"%", limit)
	if err != nil {
		return nil, errors.StoreError("search symbols", err)
	}
	defer rows.Close()

	var matches []SymbolMatch
	for rows.Next() {
		var sym SymbolRecord
		if err := rows.Scan(&sym.ID, &sym.ChunkID, &sym.FileID, &sym.Name,
			&sym.Kind, &sym.QualifiedName); err != nil {
			return nil, errors.StoreError("scan symbol", err)
		}
		matches = append(matches, SymbolMatch{
			Symbol:  sym,
			ChunkID: sym.ChunkID,
			Exact:   strings.EqualFold(sym.Name, name),
		})
	}
	return matches, rows.Err()
}

// AllEmbeddings streams every persisted embedding, used to rebuild the
// in-memory vector index on startup.
func (s *Store) AllEmbeddings(ctx context.Context) ([]int64, [][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, vector FROM embeddings`)
	if err != nil {
		return nil, nil, errors.StoreError("load embeddings", err)
	}
	defer rows.Close()

	var ids []int64
	var vectors [][]float32
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, nil, errors.StoreError("scan embedding", err)
		}
		ids = append(ids, id)
		vectors = append(vectors, decodeVector(blob))
	}
	return ids, vectors, rows.Err()
}

// EmbeddingsByChunkIDs returns the persisted vectors for the given
// chunks, for MMR similarity computations.
func (s *Store) EmbeddingsByChunkIDs(ctx context.Context, ids []int64) (map[int64][]float32, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT chunk_id, vector FROM embeddings WHERE chunk_id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, errors.StoreError("fetch embeddings", err)
	}
	defer rows.Close()

	out := make(map[int64][]float32, len(ids))
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, errors.StoreError("scan embedding", err)
		}
		out[id] = decodeVector(blob)
	}
	return out, rows.Err()
}

// GetState reads a key from engine_state; missing keys return "".
func (s *Store) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM engine_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.StoreError("get state", err)
	}
	return value, nil
}

// SetState writes a key to engine_state.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engine_state(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errors.StoreError("set state", err)
	}
	return nil
}

// RecordUsage appends usage_metrics rows for chunks served in query
// results.
func (s *Store) RecordUsage(ctx context.Context, chunkIDs []int64, event string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError("begin usage transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixNano()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO usage_metrics(chunk_id, file_id, event, created_at)
		 SELECT id, file_id, ?, ? FROM chunks WHERE id = ?`)
	if err != nil {
		return errors.StoreError("prepare usage insert", err)
	}
	defer stmt.Close()

	for _, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, event, now, id); err != nil {
			return errors.StoreError("insert usage metric", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreError("commit usage", err)
	}
	return nil
}

// UsageCounts returns per-chunk event counts for the given chunks.
func (s *Store) UsageCounts(ctx context.Context, chunkIDs []int64) (map[int64]int, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT chunk_id, COUNT(*) FROM usage_metrics
		 WHERE chunk_id IN (%s) GROUP BY chunk_id`, placeholders), args...)
	if err != nil {
		return nil, errors.StoreError("usage counts", err)
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, errors.StoreError("scan usage count", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

// Stats reports index-wide counters.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	queries := []struct {
		sql  string
		dest *int
	}{
		{`SELECT COUNT(*) FROM files WHERE status != 'DELETED'`, &st.Files},
		{`SELECT COUNT(*) FROM files WHERE status = 'INDEXED'`, &st.IndexedFiles},
		{`SELECT COUNT(*) FROM files WHERE status = 'ERROR'`, &st.ErrorFiles},
		{`SELECT COUNT(*) FROM files WHERE status = 'DELETED'`, &st.DeletedFiles},
		{`SELECT COUNT(*) FROM chunks`, &st.Chunks},
		{`SELECT COUNT(*) FROM embeddings`, &st.Embeddings},
		{`SELECT COUNT(*) FROM symbols`, &st.Symbols},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, errors.StoreError("collect stats", err)
		}
	}
	if s.path != "" {
		if info, err := os.Stat(s.path); err == nil {
			st.DBSizeBytes = info.Size()
		}
	}
	return &st, nil
}

// LanguageDistribution counts live files per language.
func (s *Store) LanguageDistribution(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT language, COUNT(*) FROM files WHERE status != 'DELETED' GROUP BY language`)
	if err != nil {
		return nil, errors.StoreError("language distribution", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var lang string
		var n int
		if err := rows.Scan(&lang, &n); err != nil {
			return nil, errors.StoreError("scan language count", err)
		}
		out[lang] = n
	}
	return out, rows.Err()
}

// Reset drops every indexed artifact and all bootstrap progress. Used by
// rebuild before a from-scratch bootstrap.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError("begin reset", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM links`,
		`DELETE FROM symbols`,
		`DELETE FROM embeddings`,
		`DELETE FROM usage_metrics`,
		`DELETE FROM chunks`,
		`DELETE FROM files`,
		`DELETE FROM bootstrap_progress`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.StoreError("reset store", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreError("commit reset", err)
	}
	return nil
}
