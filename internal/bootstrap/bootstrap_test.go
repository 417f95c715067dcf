package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextd/internal/chunk"
	"github.com/agentfusion/contextd/internal/config"
	"github.com/agentfusion/contextd/internal/embed"
	"github.com/agentfusion/contextd/internal/index"
	"github.com/agentfusion/contextd/internal/policy"
	"github.com/agentfusion/contextd/internal/store"
)

type harness struct {
	runner   *Runner
	indexer  *index.Indexer
	st       *store.Store
	fulltext store.FullTextIndex
	vectors  *store.VectorIndex
	root     string
}

func setupHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default(root)

	st, err := store.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fts, err := store.NewFTS5Index("")
	require.NoError(t, err)
	t.Cleanup(func() { fts.Close() })

	vectors, err := store.NewVectorIndex(store.VectorIndexConfig{Dimensions: cfg.Embedding.Dim})
	require.NoError(t, err)

	pol, err := policy.New(cfg, nil)
	require.NoError(t, err)

	ix := index.New(cfg, pol, chunk.New(nil), embed.NewHashEmbedder(cfg.Embedding.Dim, true),
		st, fts, vectors, nil)
	return &harness{
		runner:   New(cfg, pol, ix, st, nil),
		indexer:  ix,
		st:       st,
		fulltext: fts,
		vectors:  vectors,
		root:     root,
	}
}

func seedTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestRunner_IndexesEveryCandidate(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	seedTree(t, h.root, map[string]string{
		"main.go":        "package main\n\nfunc main() {}\n",
		"pkg/util.go":    "package pkg\n\nfunc Util() int { return 1 }\n",
		"docs/README.md": "# Docs\n\nSome prose.\n",
	})

	require.NoError(t, h.runner.Run(ctx))

	files, err := h.st.ListFiles(ctx, h.root)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	progress, err := h.runner.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Done)
	assert.True(t, progress.Complete())
	assert.Empty(t, progress.CurrentFiles)
}

func TestRunner_ResumeSkipsCompletedWork(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	seedTree(t, h.root, map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
	})

	// Simulate a crash: a was finished, b was claimed mid-flight.
	require.NoError(t, h.st.SeedBootstrap(ctx, h.root, []string{"a.go", "b.go"}))
	require.NoError(t, h.st.FinishBootstrapEntry(ctx, h.root, "a.go", store.BootstrapDone))
	claimed, err := h.st.ClaimBootstrapBatch(ctx, h.root, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"b.go"}, claimed)

	require.NoError(t, h.runner.Run(ctx))

	counts, err := h.st.BootstrapProgress(ctx, h.root)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Done)
	assert.Zero(t, counts.Pending)
	assert.Zero(t, counts.InProgress)

	// Only b was actually indexed; a's DONE row was trusted.
	rec, err := h.st.GetFileByPath(ctx, h.root, "a.go")
	require.NoError(t, err)
	assert.Nil(t, rec)
	rec, err = h.st.GetFileByPath(ctx, h.root, "b.go")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, store.FileStatusIndexed, rec.Status)
}

func TestRunner_VanishedCandidateCompletes(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	seedTree(t, h.root, map[string]string{"ok.go": "package ok\n"})

	// A seeded candidate gone from disk has nothing left to index.
	require.NoError(t, h.st.SeedBootstrap(ctx, h.root, []string{"gone.go"}))

	require.NoError(t, h.runner.Run(ctx))

	counts, err := h.st.BootstrapProgress(ctx, h.root)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Done)
	assert.Zero(t, counts.Failed)
}

func TestRunner_FailedOutcomeMarksRowFailed(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	seedTree(t, h.root, map[string]string{
		"good.go": "package good\n",
		"bad.go":  "package bad\n",
	})

	h.runner.indexer = &failingIndexer{inner: h.indexer, failRel: "bad.go"}
	require.NoError(t, h.runner.Run(ctx))

	counts, err := h.st.BootstrapProgress(ctx, h.root)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Done)
	assert.Equal(t, 1, counts.Failed)
}

type failingIndexer struct {
	inner   FileIndexer
	failRel string
}

func (f *failingIndexer) IndexPath(ctx context.Context, absPath string) index.Result {
	if filepath.Base(absPath) == f.failRel {
		return index.Result{Path: absPath, Outcome: index.OutcomeFailed}
	}
	return f.inner.IndexPath(ctx, absPath)
}

func TestRunner_RebuildClearsStaleProgress(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	seedTree(t, h.root, map[string]string{"real.go": "package real\n"})

	// A stale row for a path no longer on disk must not survive the
	// rebuild, or it would masquerade as the only remaining work.
	require.NoError(t, h.st.SeedBootstrap(ctx, h.root, []string{"stale/old.kt"}))

	require.NoError(t, h.runner.Rebuild(ctx, h.fulltext, h.vectors))

	counts, err := h.st.BootstrapProgress(ctx, h.root)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total())
	assert.Equal(t, 1, counts.Done)
	assert.Zero(t, counts.Failed)

	files, err := h.st.ListFiles(ctx, h.root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "real.go", files[0].RelPath)
}

func TestRunner_RebuildResetsDerivedIndexes(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	seedTree(t, h.root, map[string]string{"one.go": "package one\n\nfunc One() {}\n"})

	require.NoError(t, h.runner.Run(ctx))
	beforeVectors := h.vectors.Count()
	require.Greater(t, beforeVectors, 0)

	require.NoError(t, h.runner.Rebuild(ctx, h.fulltext, h.vectors))

	// The rebuilt indexes hold exactly the fresh artifacts, no leftovers.
	stats, err := h.st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Embeddings, h.vectors.Count())

	n, err := h.fulltext.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Chunks, n)
}

func TestRunner_CancelledRunLeavesResumableState(t *testing.T) {
	h := setupHarness(t)
	seedTree(t, h.root, map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.runner.Run(ctx)
	require.Error(t, err)

	// A fresh run with a live context completes everything.
	require.NoError(t, h.runner.Run(context.Background()))
	counts, err := h.st.BootstrapProgress(context.Background(), h.root)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Done)
}

func TestProgress_TracksCurrentFiles(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	var mu sync.Mutex
	var observed []string
	blocking := &observingIndexer{
		inner: h.indexer,
		onIndex: func() {
			p, err := h.runner.Progress(ctx)
			if err != nil {
				return
			}
			mu.Lock()
			observed = append(observed, p.CurrentFiles...)
			mu.Unlock()
		},
	}
	h.runner.indexer = blocking

	seedTree(t, h.root, map[string]string{"watched.go": "package watched\n"})
	require.NoError(t, h.runner.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, observed, "watched.go")
}

type observingIndexer struct {
	inner   FileIndexer
	onIndex func()
}

func (o *observingIndexer) IndexPath(ctx context.Context, absPath string) index.Result {
	o.onIndex()
	return o.inner.IndexPath(ctx, absPath)
}
