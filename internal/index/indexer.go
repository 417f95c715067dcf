// Package index runs the per-file indexing pipeline: classify, read,
// hash, chunk, embed, persist, and mirror into the full-text and vector
// indexes.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/agentfusion/contextd/internal/chunk"
	"github.com/agentfusion/contextd/internal/config"
	"github.com/agentfusion/contextd/internal/detect"
	"github.com/agentfusion/contextd/internal/embed"
	"github.com/agentfusion/contextd/internal/errors"
	"github.com/agentfusion/contextd/internal/policy"
	"github.com/agentfusion/contextd/internal/store"
)

// Outcome classifies what IndexPath did with a file.
type Outcome string

const (
	OutcomeIndexed   Outcome = "indexed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDeleted   Outcome = "deleted"
	OutcomeFailed    Outcome = "failed"
)

// Result reports one file's pipeline run.
type Result struct {
	Path    string
	Outcome Outcome
	Chunks  int
	Err     error
}

// pathLockCount stripes per-path locks; two goroutines may index
// different files concurrently but never the same file.
const pathLockCount = 64

// Indexer drives the per-file pipeline against the store and the
// derived indexes.
type Indexer struct {
	cfg      *config.Config
	policy   *policy.Policy
	chunker  *chunk.Chunker
	embedder embed.Embedder
	store    *store.Store
	fulltext store.FullTextIndex
	vectors  *store.VectorIndex
	logger   *slog.Logger

	// embedBreaker pauses the pool when the embedder fails repeatedly,
	// instead of burning a retry cycle on every remaining file.
	embedBreaker *errors.CircuitBreaker

	pathLocks [pathLockCount]sync.Mutex
}

// New creates an Indexer over already-constructed components.
func New(cfg *config.Config, pol *policy.Policy, chunker *chunk.Chunker,
	embedder embed.Embedder, st *store.Store, fulltext store.FullTextIndex,
	vectors *store.VectorIndex, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		cfg:          cfg,
		policy:       pol,
		chunker:      chunker,
		embedder:     embedder,
		store:        st,
		fulltext:     fulltext,
		vectors:      vectors,
		logger:       logger,
		embedBreaker: errors.NewCircuitBreaker("embedder"),
	}
}

func (ix *Indexer) lockFor(root, rel string) *sync.Mutex {
	h := xxhash.Sum64String(root + "\x00" + rel)
	return &ix.pathLocks[h%pathLockCount]
}

// IndexPath runs the full pipeline for one absolute path. A tracked file
// whose classification flipped to non-indexable is treated as deleted.
// Failures are recorded on the file row and returned; they never abort
// sibling files.
func (ix *Indexer) IndexPath(ctx context.Context, absPath string) Result {
	decision := ix.policy.Classify(absPath)
	if !decision.Index() {
		// If we tracked it before, the file left the indexable set.
		if root, rel, ok := ix.policy.Resolve(absPath); ok {
			if tracked, err := ix.store.GetFileByPath(ctx, root, rel); err == nil &&
				tracked != nil && tracked.Status != store.FileStatusDeleted {
				return ix.deleteTracked(ctx, absPath, root, rel)
			}
		}
		ix.logger.Debug("path skipped",
			slog.String("path", absPath),
			slog.String("verdict", decision.Verdict.String()),
			slog.String("reason", string(decision.Reason)))
		return Result{Path: absPath, Outcome: OutcomeSkipped}
	}

	if ix.cfg.FileTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ix.cfg.FileTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	lock := ix.lockFor(decision.Root, decision.RelPath)
	lock.Lock()
	defer lock.Unlock()

	result, err := ix.indexFile(ctx, absPath, decision)
	if err != nil {
		if recErr := ix.store.MarkFileError(context.WithoutCancel(ctx), decision.Root, decision.RelPath, err.Error()); recErr != nil {
			ix.logger.Error("record file error failed",
				slog.String("path", decision.RelPath),
				slog.String("error", recErr.Error()))
		}
		ix.logger.Warn("index failed",
			slog.String("path", decision.RelPath),
			slog.String("error", err.Error()))
		return Result{Path: absPath, Outcome: OutcomeFailed, Err: err}
	}
	return result
}

func (ix *Indexer) indexFile(ctx context.Context, absPath string, decision policy.Decision) (Result, error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return Result{}, errors.FilesystemError("read "+decision.RelPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return Result{}, errors.FilesystemError("stat "+decision.RelPath, err)
	}

	hash, err := detect.HashFile(absPath)
	if err != nil {
		return Result{}, err
	}

	tracked, err := ix.store.GetFileByPath(ctx, decision.Root, decision.RelPath)
	if err != nil {
		return Result{}, err
	}
	if tracked != nil && tracked.Status == store.FileStatusIndexed && tracked.ContentHash == hash {
		// A touch moves the mtime without changing content; record the
		// new mtime so the detector's prefilter stops rehashing it.
		if tracked.MTimeNs != info.ModTime().UnixNano() {
			if err := ix.store.TouchFile(ctx, decision.Root, decision.RelPath, info.ModTime().UnixNano()); err != nil {
				return Result{}, err
			}
		}
		return Result{Path: absPath, Outcome: OutcomeUnchanged}, nil
	}

	opts := ix.chunkOptions(decision.Language)
	drafts, err := ix.chunker.Chunk(ctx, content, decision.Language, opts)
	if err != nil {
		return Result{}, err
	}

	inputs, err := ix.buildInputs(ctx, drafts, decision)
	if err != nil {
		return Result{}, err
	}

	replacement, err := ix.store.ReplaceFileArtifacts(ctx, store.FileRecord{
		Root:        decision.Root,
		RelPath:     decision.RelPath,
		Language:    decision.Language,
		SizeBytes:   info.Size(),
		MTimeNs:     info.ModTime().UnixNano(),
		ContentHash: hash,
	}, inputs, ix.embedder.ModelTag())
	if err != nil {
		return Result{}, err
	}

	if err := ix.syncDerivedIndexes(ctx, replacement); err != nil {
		return Result{}, err
	}

	ix.logger.Debug("file indexed",
		slog.String("path", decision.RelPath),
		slog.Int("chunks", len(replacement.NewChunks)),
		slog.Int("replaced", len(replacement.RemovedChunkIDs)))
	return Result{Path: absPath, Outcome: OutcomeIndexed, Chunks: len(replacement.NewChunks)}, nil
}

// buildInputs converts chunk drafts into store inputs, batching
// embeddings with retry.
func (ix *Indexer) buildInputs(ctx context.Context, drafts []chunk.Draft, decision policy.Decision) ([]store.ChunkInput, error) {
	inputs := make([]store.ChunkInput, len(drafts))
	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Text
		symbols := make([]store.SymbolRecord, 0, len(d.Symbols))
		for _, s := range d.Symbols {
			symbols = append(symbols, store.SymbolRecord{
				Name:          s.Name,
				Kind:          string(s.Kind),
				QualifiedName: s.QualifiedName,
			})
		}
		inputs[i] = store.ChunkInput{
			Ordinal:    d.Ordinal,
			Kind:       string(d.Kind),
			StartLine:  d.StartLine,
			EndLine:    d.EndLine,
			ByteStart:  d.ByteStart,
			ByteEnd:    d.ByteEnd,
			TokenCount: d.TokenCount,
			Text:       d.Text,
			Summary:    d.Summary,
			Symbols:    symbols,
			Links:      extractLinks(d, decision.Language),
		}
	}

	batchSize := ix.cfg.Embedding.BatchSize
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		var vectors [][]float32
		err := ix.embedBreaker.Execute(func() error {
			return errors.Retry(ctx, errors.DefaultRetryConfig(), func() error {
				var embErr error
				vectors, embErr = ix.embedder.EmbedBatch(ctx, texts[start:end])
				return embErr
			})
		})
		if err != nil {
			return nil, errors.EmbeddingError(
				fmt.Sprintf("embed batch %d-%d of %s", start, end, decision.RelPath), err)
		}
		for i, vec := range vectors {
			inputs[start+i].Vector = vec
		}
	}
	return inputs, nil
}

// syncDerivedIndexes mirrors a replacement into the full-text and
// vector indexes: stale entries out, new entries in.
func (ix *Indexer) syncDerivedIndexes(ctx context.Context, r *store.ReplacementResult) error {
	if len(r.RemovedChunkIDs) > 0 {
		if err := ix.fulltext.Delete(ctx, r.RemovedChunkIDs); err != nil {
			return err
		}
		ix.vectors.Delete(r.RemovedChunkIDs)
	}
	if len(r.NewChunks) == 0 {
		return nil
	}

	docs := make([]store.FullTextDocument, 0, len(r.NewChunks))
	ids := make([]int64, 0, len(r.NewChunks))
	for _, c := range r.NewChunks {
		docs = append(docs, store.FullTextDocument{ChunkID: c.ID, Text: c.Text})
		ids = append(ids, c.ID)
	}

	// Pull the just-persisted vectors; chunks whose embedding failed
	// simply stay out of the vector index.
	persisted, err := ix.store.EmbeddingsByChunkIDs(ctx, ids)
	if err != nil {
		return err
	}
	var vecIDs []int64
	var vecs [][]float32
	for _, id := range ids {
		if v, ok := persisted[id]; ok {
			vecIDs = append(vecIDs, id)
			vecs = append(vecs, v)
		}
	}

	if err := ix.fulltext.Index(ctx, docs); err != nil {
		return err
	}
	if len(vecIDs) > 0 {
		if err := ix.vectors.Add(ctx, vecIDs, vecs); err != nil {
			return err
		}
	}
	return nil
}

// DeletePath removes a path from the index, tombstoning the file row and
// purging derived indexes. Unknown paths are a no-op.
func (ix *Indexer) DeletePath(ctx context.Context, absPath string) Result {
	root, rel, ok := ix.policy.Resolve(absPath)
	if !ok {
		return Result{Path: absPath, Outcome: OutcomeSkipped}
	}
	return ix.deleteTracked(ctx, absPath, root, rel)
}

func (ix *Indexer) deleteTracked(ctx context.Context, absPath, root, rel string) Result {
	lock := ix.lockFor(root, rel)
	lock.Lock()
	defer lock.Unlock()

	removed, err := ix.store.MarkFileDeleted(ctx, root, rel)
	if err != nil {
		return Result{Path: absPath, Outcome: OutcomeFailed, Err: err}
	}
	if len(removed) > 0 {
		if err := ix.fulltext.Delete(ctx, removed); err != nil {
			return Result{Path: absPath, Outcome: OutcomeFailed, Err: err}
		}
		ix.vectors.Delete(removed)
	}
	ix.logger.Debug("file deleted from index",
		slog.String("path", rel),
		slog.Int("chunks_removed", len(removed)))
	return Result{Path: absPath, Outcome: OutcomeDeleted, Chunks: len(removed)}
}

// BatchSummary aggregates UpdateBatch results.
type BatchSummary struct {
	Indexed   int
	Unchanged int
	Skipped   int
	Deleted   int
	Failed    int
}

// UpdateBatch indexes paths concurrently with the configured worker
// count. Per-file failures are counted, not propagated; only context
// cancellation aborts the batch.
func (ix *Indexer) UpdateBatch(ctx context.Context, absPaths []string) (BatchSummary, error) {
	var mu sync.Mutex
	var summary BatchSummary

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Workers())
	for _, path := range absPaths {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.Cancelled("batch cancelled")
			}
			res := ix.IndexPath(gctx, path)
			mu.Lock()
			switch res.Outcome {
			case OutcomeIndexed:
				summary.Indexed++
			case OutcomeUnchanged:
				summary.Unchanged++
			case OutcomeSkipped:
				summary.Skipped++
			case OutcomeDeleted:
				summary.Deleted++
			case OutcomeFailed:
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return summary, err
}

// RebuildVectorIndex reloads every persisted embedding into a fresh
// vector index. Called on startup.
func RebuildVectorIndex(ctx context.Context, st *store.Store, dim int) (*store.VectorIndex, error) {
	idx, err := store.NewVectorIndex(store.VectorIndexConfig{Dimensions: dim})
	if err != nil {
		return nil, err
	}
	ids, vectors, err := st.AllEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	// Skip vectors from an older dimension; they are rebuilt on reindex.
	var keepIDs []int64
	var keepVecs [][]float32
	for i, v := range vectors {
		if len(v) == dim {
			keepIDs = append(keepIDs, ids[i])
			keepVecs = append(keepVecs, v)
		}
	}
	if len(keepIDs) > 0 {
		if err := idx.Add(ctx, keepIDs, keepVecs); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (ix *Indexer) chunkOptions(language string) chunk.Options {
	lc := ix.cfg.LanguageChunkingFor(language)
	return chunk.Options{
		MaxTokens:       lc.MaxTokens,
		OverlapPercent:  lc.OverlapPercent,
		MaxHeadingLevel: ix.cfg.Chunking.MaxHeadingLevel,
	}
}

// RelativeDisplayPath shortens an absolute path against a root for logs.
func RelativeDisplayPath(root, absPath string) string {
	if rel, err := filepath.Rel(root, absPath); err == nil {
		return rel
	}
	return absPath
}
