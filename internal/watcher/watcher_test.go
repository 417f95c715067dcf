package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextd/internal/config"
	"github.com/agentfusion/contextd/internal/index"
	"github.com/agentfusion/contextd/internal/policy"
)

// recordingDispatcher captures dispatch calls for assertions.
type recordingDispatcher struct {
	mu      sync.Mutex
	batches [][]string
	deletes []string
}

func (r *recordingDispatcher) UpdateBatch(_ context.Context, absPaths []string) (index.BatchSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, absPaths)
	return index.BatchSummary{Indexed: len(absPaths)}, nil
}

func (r *recordingDispatcher) DeletePath(_ context.Context, absPath string) index.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, absPath)
	return index.Result{Path: absPath, Outcome: index.OutcomeDeleted}
}

func (r *recordingDispatcher) snapshot() (batches [][]string, deletes []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...), append([]string(nil), r.deletes...)
}

func setupWatcher(t *testing.T) (*Watcher, *recordingDispatcher, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default(root)
	cfg.DebounceMs = 50

	pol, err := policy.New(cfg, nil)
	require.NoError(t, err)

	rec := &recordingDispatcher{}
	w, err := New(cfg, pol, rec, nil)
	require.NoError(t, err)
	return w, rec, root
}

func runWatcher(t *testing.T, w *Watcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	// Give the watch registrations a moment to land.
	time.Sleep(100 * time.Millisecond)
	return cancel
}

func TestWatcher_DispatchesCreatedFiles(t *testing.T) {
	w, rec, root := setupWatcher(t)
	runWatcher(t, w)

	path := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0o644))

	require.Eventually(t, func() bool {
		batches, _ := rec.snapshot()
		for _, b := range batches {
			for _, p := range b {
				if p == path {
					return true
				}
			}
		}
		return false
	}, 5*time.Second, 25*time.Millisecond)
}

func TestWatcher_DeleteBypassesClassification(t *testing.T) {
	w, rec, root := setupWatcher(t)

	// Exists before Run so only the removal is observed.
	path := filepath.Join(root, "gone.go")
	require.NoError(t, os.WriteFile(path, []byte("package gone\n"), 0o644))
	runWatcher(t, w)

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		_, deletes := rec.snapshot()
		for _, p := range deletes {
			if p == path {
				return true
			}
		}
		return false
	}, 5*time.Second, 25*time.Millisecond)
}

func TestWatcher_RapidWritesCoalesce(t *testing.T) {
	w, rec, root := setupWatcher(t)
	runWatcher(t, w)

	path := filepath.Join(root, "hot.go")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("package hot\n"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		batches, _ := rec.snapshot()
		return len(batches) > 0
	}, 5*time.Second, 25*time.Millisecond)

	// Quiet period, then count mentions: coalescing keeps it to one
	// dispatch per debounce window, far below the raw write count.
	time.Sleep(200 * time.Millisecond)
	batches, _ := rec.snapshot()
	mentions := 0
	for _, b := range batches {
		for _, p := range b {
			if p == path {
				mentions++
			}
		}
	}
	assert.Less(t, mentions, 5)
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	w, rec, root := setupWatcher(t)
	runWatcher(t, w)

	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(sub, "b.go")
	require.NoError(t, os.WriteFile(path, []byte("package pkg\n"), 0o644))

	require.Eventually(t, func() bool {
		batches, _ := rec.snapshot()
		for _, b := range batches {
			for _, p := range b {
				if p == path {
					return true
				}
			}
		}
		return false
	}, 5*time.Second, 25*time.Millisecond)
}

func TestWatcher_ShutdownDrainsPending(t *testing.T) {
	w, rec, root := setupWatcher(t)
	w.cfg.DebounceMs = 60_000 // window never expires on its own
	w.deb = NewDebouncer(time.Hour, nil)
	cancel := runWatcher(t, w)

	path := filepath.Join(root, "late.go")
	require.NoError(t, os.WriteFile(path, []byte("package late\n"), 0o644))

	// Wait for the raw event to reach the debouncer, then stop.
	require.Eventually(t, func() bool {
		w.deb.mu.Lock()
		defer w.deb.mu.Unlock()
		return len(w.deb.pending) > 0
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	require.Eventually(t, func() bool {
		batches, _ := rec.snapshot()
		return len(batches) > 0
	}, 5*time.Second, 25*time.Millisecond)
}
