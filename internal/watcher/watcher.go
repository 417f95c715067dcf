package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentfusion/contextd/internal/config"
	"github.com/agentfusion/contextd/internal/errors"
	"github.com/agentfusion/contextd/internal/index"
	"github.com/agentfusion/contextd/internal/policy"
)

// Dispatcher receives debounced work from the watcher. *index.Indexer
// satisfies it.
type Dispatcher interface {
	UpdateBatch(ctx context.Context, absPaths []string) (index.BatchSummary, error)
	DeletePath(ctx context.Context, absPath string) index.Result
}

var _ Dispatcher = (*index.Indexer)(nil)

// Watcher subscribes to filesystem events on every watch root, debounces
// them, and dispatches coalesced batches to the indexer. One goroutine
// receives raw events, a second dispatches batches so intake never stalls
// behind indexing, and indexing fans out inside the dispatcher's pool.
type Watcher struct {
	cfg        *config.Config
	pol        *policy.Policy
	dispatcher Dispatcher
	logger     *slog.Logger

	fsw *fsnotify.Watcher
	deb *Debouncer

	mu      sync.Mutex
	stopped bool
}

// New creates a watcher over already-constructed components.
func New(cfg *config.Config, pol *policy.Policy, dispatcher Dispatcher, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.FilesystemError("create filesystem watcher", err)
	}
	window := time.Duration(cfg.DebounceMs) * time.Millisecond
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	return &Watcher{
		cfg:        cfg,
		pol:        pol,
		dispatcher: dispatcher,
		logger:     logger,
		fsw:        fsw,
		deb:        NewDebouncer(window, logger),
	}, nil
}

// Run watches until ctx is cancelled. On cancellation the pending batch
// is drained and dispatched, bounded by the shutdown timeout; in-flight
// index operations complete, new events are refused.
func (w *Watcher) Run(ctx context.Context) error {
	for _, root := range w.cfg.WatchRoots {
		if err := w.addRecursive(root); err != nil {
			return err
		}
	}
	w.logger.Info("watching",
		slog.Int("roots", len(w.cfg.WatchRoots)),
		slog.Int("debounce_ms", w.cfg.DebounceMs))

	// Dispatch runs on its own goroutine so intake keeps draining raw
	// events while a batch indexes; a long UpdateBatch must not back up
	// the debouncer's output.
	// Cancellation stops intake, not indexing: batches already emitted
	// still dispatch during shutdown, bounded by the shutdown timeout.
	dispatchCtx := context.WithoutCancel(ctx)
	dispatchDone := make(chan struct{})
	output := w.deb.Output()
	go func() {
		defer close(dispatchDone)
		for batch := range output {
			w.dispatch(dispatchCtx, batch)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.shutdown(ctx, dispatchDone)
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.shutdown(ctx, dispatchDone)
				return nil
			}
			w.handleRaw(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.shutdown(ctx, dispatchDone)
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// addRecursive registers root and every non-pruned subdirectory.
func (w *Watcher) addRecursive(root string) error {
	root = filepath.Clean(root)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			if rel, relErr := filepath.Rel(root, path); relErr == nil && w.pol.SkipDir(root, rel) {
				return filepath.SkipDir
			}
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			w.logger.Warn("cannot watch directory",
				slog.String("path", path),
				slog.String("error", addErr.Error()))
		}
		return nil
	})
}

// handleRaw translates one fsnotify event into the debouncer's model.
// Deletions never go through classification: the path is gone.
func (w *Watcher) handleRaw(ev fsnotify.Event) {
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// Rename shows up as Rename(old) then Create(new); the old
		// path is a deletion from the index's point of view.
		w.deb.Add(Event{Path: ev.Name, Op: OpDeleted, At: time.Now()})
	case ev.Op&fsnotify.Create != 0:
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// New directories need their own watch registration.
			if root, rel, ok := w.pol.Resolve(ev.Name); ok && !w.pol.SkipDir(root, rel) {
				_ = w.addRecursive(ev.Name)
			}
			return
		}
		w.deb.Add(Event{Path: ev.Name, Op: OpCreated, At: time.Now()})
	case ev.Op&fsnotify.Write != 0:
		w.deb.Add(Event{Path: ev.Name, Op: OpModified, At: time.Now()})
	}
	// Chmod is noise.
}

// dispatch routes a coalesced batch: deletions straight to DeletePath,
// everything else through the batch indexer.
func (w *Watcher) dispatch(ctx context.Context, batch []Event) {
	var upserts []string
	for _, ev := range batch {
		if ev.Op == OpDeleted {
			res := w.dispatcher.DeletePath(ctx, ev.Path)
			if res.Err != nil {
				w.logger.Warn("delete dispatch failed",
					slog.String("path", ev.Path),
					slog.String("error", res.Err.Error()))
			}
			continue
		}
		upserts = append(upserts, ev.Path)
	}
	if len(upserts) == 0 {
		return
	}
	summary, err := w.dispatcher.UpdateBatch(ctx, upserts)
	if err != nil {
		w.logger.Warn("batch dispatch aborted", slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("batch dispatched",
		slog.Int("indexed", summary.Indexed),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("deleted", summary.Deleted),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed))
}

// shutdown stops event intake, waits for the dispatch goroutine to finish
// its in-flight batch, then drains and dispatches whatever the debouncer
// still holds under the shutdown timeout.
func (w *Watcher) shutdown(ctx context.Context, dispatchDone <-chan struct{}) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	_ = w.fsw.Close()
	w.deb.Stop()

	timeout := time.Duration(w.cfg.ShutdownTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	select {
	case <-dispatchDone:
	case <-time.After(timeout):
		w.logger.Warn("dispatch did not finish before shutdown timeout")
	}

	remaining := w.deb.Drain()
	if len(remaining) == 0 {
		return
	}
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	w.logger.Info("draining pending events", slog.Int("count", len(remaining)))
	w.dispatch(drainCtx, remaining)
}
