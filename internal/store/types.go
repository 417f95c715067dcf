// Package store persists indexed artifacts: file records, chunks, symbols,
// links, embeddings, and bootstrap progress in SQLite, plus a full-text
// index (FTS5 or Bleve) and an in-memory HNSW vector index rebuilt from
// persisted embeddings on startup.
package store

import (
	"encoding/binary"
	"math"
	"time"
)

// FileStatus tracks a file's lifecycle in the index.
type FileStatus string

const (
	FileStatusPending FileStatus = "PENDING"
	FileStatusIndexed FileStatus = "INDEXED"
	FileStatusError   FileStatus = "ERROR"
	FileStatusDeleted FileStatus = "DELETED"
)

// BootstrapStatus tracks per-file progress of the initial scan.
type BootstrapStatus string

const (
	BootstrapPending    BootstrapStatus = "PENDING"
	BootstrapInProgress BootstrapStatus = "IN_PROGRESS"
	BootstrapDone       BootstrapStatus = "DONE"
	BootstrapFailed     BootstrapStatus = "FAILED"
)

// FileRecord is a tracked file. Deleted files stay as tombstones so late
// watcher events for them are recognized.
type FileRecord struct {
	ID           int64
	Root         string
	RelPath      string
	Language     string
	SizeBytes    int64
	MTimeNs      int64
	ContentHash  string // sha256 hex of file content
	Status       FileStatus
	ErrorMessage string
	IndexedAt    time.Time
	UpdatedAt    time.Time
}

// ChunkRecord is a persisted chunk. IDs are assigned by SQLite and are
// never reused for re-chunked content.
type ChunkRecord struct {
	ID         int64
	FileID     int64
	Root       string
	RelPath    string
	Language   string
	Ordinal    int
	Kind       string
	StartLine  int
	EndLine    int
	ByteStart  int
	ByteEnd    int
	TokenCount int
	Text       string
	Summary    string
}

// SymbolRecord is a named definition inside a chunk.
type SymbolRecord struct {
	ID            int64
	ChunkID       int64
	FileID        int64
	Name          string
	Kind          string
	QualifiedName string
}

// LinkRecord is a reference from a chunk to another path (imports,
// markdown links).
type LinkRecord struct {
	ID         int64
	ChunkID    int64
	FileID     int64
	TargetPath string
	Kind       string
}

// SymbolMatch pairs a symbol with its chunk for the symbol provider.
type SymbolMatch struct {
	Symbol  SymbolRecord
	ChunkID int64
	Exact   bool
}

// ChunkInput carries one chunk and its artifacts into
// ReplaceFileArtifacts. The vector may be nil when embedding failed.
type ChunkInput struct {
	Ordinal    int
	Kind       string
	StartLine  int
	EndLine    int
	ByteStart  int
	ByteEnd    int
	TokenCount int
	Text       string
	Summary    string
	Symbols    []SymbolRecord
	Links      []LinkRecord
	Vector     []float32
}

// BootstrapCounts summarizes bootstrap_progress rows by status.
type BootstrapCounts struct {
	Pending    int
	InProgress int
	Done       int
	Failed     int
}

// Total returns the number of tracked bootstrap entries.
func (c BootstrapCounts) Total() int {
	return c.Pending + c.InProgress + c.Done + c.Failed
}

// Stats is a point-in-time snapshot of the index.
type Stats struct {
	Files        int
	IndexedFiles int
	ErrorFiles   int
	DeletedFiles int
	Chunks       int
	Embeddings   int
	Symbols      int
	DBSizeBytes  int64
}

// State keys persisted in engine_state.
const (
	StateKeyModelTag   = "embedding_model_tag"
	StateKeyDimensions = "embedding_dimensions"
	StateKeySchema     = "schema_version"
)

// encodeVector packs float32s into a little-endian blob for the
// embeddings table.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a blob written by encodeVector.
func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
