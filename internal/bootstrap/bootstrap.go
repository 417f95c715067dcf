// Package bootstrap performs the initial full scan of every watch root,
// with progress persisted so an interrupted run resumes where it left
// off instead of starting over.
package bootstrap

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentfusion/contextd/internal/config"
	"github.com/agentfusion/contextd/internal/index"
	"github.com/agentfusion/contextd/internal/policy"
	"github.com/agentfusion/contextd/internal/store"
)

// claimBatchSize bounds how many paths a single claim transaction moves
// to IN_PROGRESS. Small enough that a crash loses little claimed work.
const claimBatchSize = 64

// FileIndexer is the part of the indexer bootstrap drives.
type FileIndexer interface {
	IndexPath(ctx context.Context, absPath string) index.Result
}

// Progress is an observable snapshot of a bootstrap run.
type Progress struct {
	Total        int
	Pending      int
	InProgress   int
	Done         int
	Failed       int
	CurrentFiles []string
	StartedAt    time.Time
}

// Complete reports whether no work remains.
func (p Progress) Complete() bool {
	return p.Pending == 0 && p.InProgress == 0
}

// Runner drives a persisted, resumable scan of the watch roots.
type Runner struct {
	cfg     *config.Config
	pol     *policy.Policy
	indexer FileIndexer
	st      *store.Store
	logger  *slog.Logger

	mu        sync.Mutex
	current   map[string]struct{}
	startedAt time.Time
}

// New creates a bootstrap runner over already-constructed components.
func New(cfg *config.Config, pol *policy.Policy, indexer FileIndexer, st *store.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:     cfg,
		pol:     pol,
		indexer: indexer,
		st:      st,
		logger:  logger,
		current: make(map[string]struct{}),
	}
}

// Run bootstraps every watch root. Rows left IN_PROGRESS by a previous
// crash are returned to PENDING first, then the scan seeds any paths not
// yet tracked, and workers drain the queue.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.startedAt = time.Now()
	r.mu.Unlock()

	for _, root := range r.cfg.WatchRoots {
		if err := r.runRoot(ctx, filepath.Clean(root)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runRoot(ctx context.Context, root string) error {
	resumed, err := r.st.ResetInFlightBootstrap(ctx, root)
	if err != nil {
		return err
	}
	if resumed > 0 {
		r.logger.Info("resuming interrupted bootstrap",
			slog.String("root", root),
			slog.Int64("reclaimed", resumed))
	}

	decisions, err := r.pol.ScanRoot(ctx, root)
	if err != nil {
		return err
	}
	rels := make([]string, 0, len(decisions))
	for _, d := range decisions {
		rels = append(rels, d.RelPath)
	}
	if err := r.st.SeedBootstrap(ctx, root, rels); err != nil {
		return err
	}

	counts, err := r.st.BootstrapProgress(ctx, root)
	if err != nil {
		return err
	}
	r.logger.Info("bootstrap started",
		slog.String("root", root),
		slog.Int("candidates", len(rels)),
		slog.Int("pending", counts.Pending),
		slog.Int("already_done", counts.Done))

	return r.drain(ctx, root)
}

// drain claims PENDING batches and indexes them with the configured
// worker count until the queue is empty.
func (r *Runner) drain(ctx context.Context, root string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := r.st.ClaimBootstrapBatch(ctx, root, claimBatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Workers())
		for _, rel := range batch {
			rel := rel
			g.Go(func() error {
				return r.indexOne(gctx, root, rel)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

func (r *Runner) indexOne(ctx context.Context, root, rel string) error {
	if err := ctx.Err(); err != nil {
		// Leave the row IN_PROGRESS; the next run resets it.
		return err
	}

	r.trackCurrent(rel, true)
	defer r.trackCurrent(rel, false)

	abs := filepath.Join(root, filepath.FromSlash(rel))
	res := r.indexer.IndexPath(ctx, abs)

	status := store.BootstrapDone
	if res.Outcome == index.OutcomeFailed {
		status = store.BootstrapFailed
	}
	return r.st.FinishBootstrapEntry(context.WithoutCancel(ctx), root, rel, status)
}

func (r *Runner) trackCurrent(rel string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if active {
		r.current[rel] = struct{}{}
	} else {
		delete(r.current, rel)
	}
}

// Progress aggregates persisted counts across all roots plus the files
// currently being indexed.
func (r *Runner) Progress(ctx context.Context) (Progress, error) {
	var p Progress
	for _, root := range r.cfg.WatchRoots {
		counts, err := r.st.BootstrapProgress(ctx, filepath.Clean(root))
		if err != nil {
			return Progress{}, err
		}
		p.Pending += counts.Pending
		p.InProgress += counts.InProgress
		p.Done += counts.Done
		p.Failed += counts.Failed
	}
	p.Total = p.Pending + p.InProgress + p.Done + p.Failed

	r.mu.Lock()
	p.StartedAt = r.startedAt
	p.CurrentFiles = make([]string, 0, len(r.current))
	for rel := range r.current {
		p.CurrentFiles = append(p.CurrentFiles, rel)
	}
	r.mu.Unlock()
	sort.Strings(p.CurrentFiles)
	return p, nil
}

// Rebuild wipes all indexed artifacts and the progress table, then runs
// a fresh bootstrap. Clearing progress first is load-bearing: stale rows
// would otherwise masquerade as the remaining work and starve the scan.
func (r *Runner) Rebuild(ctx context.Context, fulltext store.FullTextIndex, vectors *store.VectorIndex) error {
	for _, root := range r.cfg.WatchRoots {
		if err := r.st.ClearBootstrap(ctx, filepath.Clean(root)); err != nil {
			return err
		}
	}
	if err := r.st.Reset(ctx); err != nil {
		return err
	}
	if fulltext != nil {
		if err := fulltext.Reset(ctx); err != nil {
			return err
		}
	}
	if vectors != nil {
		vectors.Reset()
	}
	return r.Run(ctx)
}
