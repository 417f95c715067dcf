// Package engine wires the context engine together: store, indexes,
// embedder, indexer, watcher, bootstrap, and the search pipeline behind
// one API.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/agentfusion/contextd/internal/bootstrap"
	"github.com/agentfusion/contextd/internal/chunk"
	"github.com/agentfusion/contextd/internal/config"
	"github.com/agentfusion/contextd/internal/detect"
	"github.com/agentfusion/contextd/internal/embed"
	"github.com/agentfusion/contextd/internal/errors"
	"github.com/agentfusion/contextd/internal/index"
	"github.com/agentfusion/contextd/internal/logging"
	"github.com/agentfusion/contextd/internal/policy"
	"github.com/agentfusion/contextd/internal/search"
	"github.com/agentfusion/contextd/internal/store"
	"github.com/agentfusion/contextd/internal/watcher"
)

const schemaVersion = "1"

// Engine is the composition root. Construct with New, release with
// Close.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	cleanup  func()
	st       *store.Store
	fulltext store.FullTextIndex
	vectors  *store.VectorIndex
	embedder embed.Embedder
	pol      *policy.Policy
	indexer  *index.Indexer
	detector *detect.Detector
	pipeline *search.Pipeline
	boot     *bootstrap.Runner
	jobs     *jobRegistry
}

type options struct {
	logger *slog.Logger
}

// Option adjusts engine construction.
type Option func(*options)

// WithLogger supplies a logger instead of the config-driven file setup.
// Tests use this to keep output quiet.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New validates the config and builds every component. The persisted
// embedding identity is checked against the configured one; a mismatch
// is fatal because stored vectors would be incomparable with new ones.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	cleanup := func() {}
	if logger == nil {
		var err error
		logger, cleanup, err = logging.Setup(cfg.Logging)
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{cfg: cfg, logger: logger, cleanup: cleanup, jobs: newJobRegistry()}
	if err := e.build(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) build(ctx context.Context) error {
	st, err := store.Open(e.cfg.Storage.DBPath, e.logger)
	if err != nil {
		return err
	}
	e.st = st

	embedder, err := embed.New(e.cfg.Embedding, e.logger)
	if err != nil {
		return err
	}
	e.embedder = embedder

	if err := e.checkEmbeddingState(ctx); err != nil {
		return err
	}

	fulltext, err := store.NewFullTextIndex(
		store.FullTextBackend(e.cfg.Storage.FullTextBackend), e.fulltextPath())
	if err != nil {
		return err
	}
	e.fulltext = fulltext

	vectors, err := index.RebuildVectorIndex(ctx, st, e.cfg.Embedding.Dim)
	if err != nil {
		return err
	}
	e.vectors = vectors

	pol, err := policy.New(e.cfg, e.logger)
	if err != nil {
		return err
	}
	e.pol = pol

	chunker := chunk.New(e.logger)
	e.indexer = index.New(e.cfg, pol, chunker, embedder, st, fulltext, vectors, e.logger)
	e.detector = detect.New(st, pol, e.logger)
	e.pipeline = search.NewPipeline(e.cfg, st, embedder, vectors, fulltext, e.logger)
	e.boot = bootstrap.New(e.cfg, pol, e.indexer, st, e.logger)

	e.logger.Info("engine ready",
		slog.String("db", e.cfg.Storage.DBPath),
		slog.String("fulltext", e.cfg.Storage.FullTextBackend),
		slog.String("model", embedder.ModelTag()),
		slog.Int("vectors", vectors.Count()))
	return nil
}

// checkEmbeddingState pins the store to one embedding identity. First
// open records it; later opens must match or be rebuilt.
func (e *Engine) checkEmbeddingState(ctx context.Context) error {
	storedTag, err := e.st.GetState(ctx, store.StateKeyModelTag)
	if err != nil {
		return err
	}
	storedDim, err := e.st.GetState(ctx, store.StateKeyDimensions)
	if err != nil {
		return err
	}

	tag := e.embedder.ModelTag()
	dim := strconv.Itoa(e.embedder.Dimensions())
	if storedTag == "" {
		if err := e.st.SetState(ctx, store.StateKeyModelTag, tag); err != nil {
			return err
		}
		if err := e.st.SetState(ctx, store.StateKeyDimensions, dim); err != nil {
			return err
		}
		return e.st.SetState(ctx, store.StateKeySchema, schemaVersion)
	}

	if storedTag != tag || storedDim != dim {
		return errors.New(errors.ErrCodeEmbedDimension,
			fmt.Sprintf("store was built with model %s/%s dims, config wants %s/%s",
				storedTag, storedDim, tag, dim), nil).
			WithSuggestion("run a rebuild to re-embed the corpus with the new model")
	}
	return nil
}

// fulltextPath derives the on-disk location of the full-text index from
// the database path. An in-memory store gets an in-memory index.
func (e *Engine) fulltextPath() string {
	if e.cfg.Storage.DBPath == "" {
		return ""
	}
	dir := filepath.Dir(e.cfg.Storage.DBPath)
	if store.FullTextBackend(e.cfg.Storage.FullTextBackend) == store.FullTextBackendBleve {
		if e.cfg.Storage.BlevePath != "" {
			return e.cfg.Storage.BlevePath
		}
		return filepath.Join(dir, "fulltext.bleve")
	}
	return filepath.Join(dir, "fulltext.db")
}

// Query runs the search pipeline and records usage on the returned
// chunks.
func (e *Engine) Query(ctx context.Context, req search.Request) (*search.Response, error) {
	resp, err := e.pipeline.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Hits) > 0 {
		ids := make([]int64, 0, len(resp.Hits))
		for _, h := range resp.Hits {
			ids = append(ids, h.ChunkID)
		}
		if err := e.st.RecordUsage(context.WithoutCancel(ctx), ids, "query"); err != nil {
			e.logger.Warn("usage recording failed", slog.String("error", err.Error()))
		}
	}
	return resp, nil
}

// ProviderStatus describes one configured provider.
type ProviderStatus struct {
	Enabled bool
	Weight  float64
}

// Stats is the external stats surface.
type Stats struct {
	Store        *store.Stats
	Languages    map[string]int
	Providers    map[string]ProviderStatus
	VectorCount  int
	FullTextDocs int
	ModelTag     string
}

// Stats aggregates counters across the store and derived indexes.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	st, err := e.st.Stats(ctx)
	if err != nil {
		return nil, err
	}
	languages, err := e.st.LanguageDistribution(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := e.fulltext.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Store:     st,
		Languages: languages,
		Providers: map[string]ProviderStatus{
			"semantic": {Enabled: e.cfg.Providers.Semantic.Enabled, Weight: e.cfg.Providers.Semantic.Weight},
			"symbol":   {Enabled: e.cfg.Providers.Symbol.Enabled, Weight: e.cfg.Providers.Symbol.Weight},
			"fulltext": {Enabled: e.cfg.Providers.FullText.Enabled, Weight: e.cfg.Providers.FullText.Weight},
		},
		VectorCount:  e.vectors.Count(),
		FullTextDocs: docs,
		ModelTag:     e.embedder.ModelTag(),
	}, nil
}

// Refresh reconciles the index with the filesystem. With explicit paths
// only those are reindexed; otherwise every root is diffed and the
// changes applied. force reindexes even unchanged paths by discarding
// their tracked artifacts first.
func (e *Engine) Refresh(ctx context.Context, paths []string, force bool) (index.BatchSummary, error) {
	if len(paths) > 0 {
		return e.refreshPaths(ctx, paths, force)
	}

	var summary index.BatchSummary
	for _, root := range e.cfg.WatchRoots {
		root = filepath.Clean(root)
		changes, err := e.detector.Diff(ctx, root)
		if err != nil {
			return summary, err
		}
		for _, rel := range changes.Deleted {
			res := e.indexer.DeletePath(ctx, filepath.Join(root, filepath.FromSlash(rel)))
			if res.Outcome == index.OutcomeDeleted {
				summary.Deleted++
			}
		}
		var stale []string
		for _, rel := range append(changes.Created, changes.Modified...) {
			stale = append(stale, filepath.Join(root, filepath.FromSlash(rel)))
		}
		s, err := e.indexer.UpdateBatch(ctx, stale)
		summary.Indexed += s.Indexed
		summary.Unchanged += s.Unchanged
		summary.Skipped += s.Skipped
		summary.Failed += s.Failed
		if err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (e *Engine) refreshPaths(ctx context.Context, paths []string, force bool) (index.BatchSummary, error) {
	if force {
		// Dropping the tracked row defeats the unchanged short-circuit;
		// the file reindexes with fresh chunk IDs.
		for _, p := range paths {
			e.indexer.DeletePath(ctx, p)
		}
	}
	return e.indexer.UpdateBatch(ctx, paths)
}

// RefreshAsync runs Refresh as a background job.
func (e *Engine) RefreshAsync(paths []string, force bool) string {
	return e.jobs.Start("refresh", func(ctx context.Context) error {
		_, err := e.Refresh(ctx, paths, force)
		return err
	})
}

// Bootstrap runs the initial (or resumed) full scan.
func (e *Engine) Bootstrap(ctx context.Context) error {
	return e.boot.Run(ctx)
}

// BootstrapProgress exposes the current bootstrap snapshot.
func (e *Engine) BootstrapProgress(ctx context.Context) (bootstrap.Progress, error) {
	return e.boot.Progress(ctx)
}

// Rebuild wipes all artifacts and re-indexes from scratch. confirm
// guards against accidental destruction.
func (e *Engine) Rebuild(ctx context.Context, confirm bool) error {
	if !confirm {
		return errors.ValidationError("rebuild requires confirmation", nil).
			WithSuggestion("pass confirm to discard and re-create the whole index")
	}
	return e.boot.Rebuild(ctx, e.fulltext, e.vectors)
}

// RebuildAsync runs Rebuild as a background job.
func (e *Engine) RebuildAsync(confirm bool) (string, error) {
	if !confirm {
		return "", errors.ValidationError("rebuild requires confirmation", nil)
	}
	return e.jobs.Start("rebuild", func(ctx context.Context) error {
		return e.Rebuild(ctx, true)
	}), nil
}

// JobStatus looks up a background job by ID.
func (e *Engine) JobStatus(id string) (Job, bool) {
	return e.jobs.Status(id)
}

// Watch blocks serving filesystem events until ctx is cancelled.
func (e *Engine) Watch(ctx context.Context) error {
	w, err := watcher.New(e.cfg, e.pol, e.indexer, e.logger)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// Indexer exposes the per-file pipeline for callers that drive single
// files (tests, tools).
func (e *Engine) Indexer() *index.Indexer { return e.indexer }

// Close releases every component. Safe on a partially built engine.
func (e *Engine) Close() {
	if e.vectors != nil {
		_ = e.vectors.Close()
	}
	if e.fulltext != nil {
		_ = e.fulltext.Close()
	}
	if e.embedder != nil {
		_ = e.embedder.Close()
	}
	if e.st != nil {
		_ = e.st.Close()
	}
	if e.cleanup != nil {
		e.cleanup()
	}
}
