package cmd

import (
	"context"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/agentfusion/contextd/internal/engine"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [paths...]",
		Short: "Build or refresh the index",
		Long: `Build the index for the workspace, or refresh specific paths.

With no arguments, runs a resumable bootstrap over every watch root and
then reconciles the store against the filesystem. With path arguments,
reindexes just those paths.

Examples:
  contextd index
  contextd index internal/auth cmd/server/main.go
  contextd index --force internal/auth`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, args, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reindex paths even if unchanged")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, paths []string, force bool) error {
	out := newOutput(cmd)

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	start := time.Now()

	if len(paths) > 0 {
		files, err := expandPaths(paths)
		if err != nil {
			return err
		}
		summary, err := eng.Refresh(ctx, files, force)
		if err != nil {
			return err
		}
		out.Successf("indexed %d, unchanged %d, skipped %d, deleted %d, failed %d in %s",
			summary.Indexed, summary.Unchanged, summary.Skipped, summary.Deleted, summary.Failed,
			time.Since(start).Round(time.Millisecond))
		return nil
	}

	if err := bootstrapWithProgress(ctx, cmd, eng); err != nil {
		return err
	}

	// Bootstrap only sees files that exist; a diff pass tombstones
	// anything deleted since the last run.
	summary, err := eng.Refresh(ctx, nil, false)
	if err != nil {
		return err
	}

	stats, err := eng.Stats(ctx)
	if err != nil {
		return err
	}
	out.Successf("%d files, %d chunks, %d symbols indexed in %s",
		stats.Store.IndexedFiles, stats.Store.Chunks, stats.Store.Symbols,
		time.Since(start).Round(time.Millisecond))
	if summary.Deleted > 0 {
		out.Statusf("reconciled %d deleted files", summary.Deleted)
	}
	return nil
}

// expandPaths resolves arguments to absolute file paths, walking directory
// arguments. Files that no longer exist pass through so their tracked rows
// get tombstoned.
func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			files = append(files, abs)
			continue
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" || d.Name() == ".contextd" {
					return filepath.SkipDir
				}
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// bootstrapWithProgress runs the bootstrap in the background and renders a
// progress bar from polled progress snapshots.
func bootstrapWithProgress(ctx context.Context, cmd *cobra.Command, eng *engine.Engine) error {
	done := make(chan error, 1)
	go func() {
		done <- eng.Bootstrap(ctx)
	}()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Indexing files"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			_, _ = cmd.ErrOrStderr().Write([]byte("\n"))
		}),
	)

	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			_ = bar.Finish()
			return err
		case <-ticker.C:
			progress, err := eng.BootstrapProgress(ctx)
			if err != nil {
				continue
			}
			if progress.Total > 0 {
				bar.ChangeMax(progress.Total)
				_ = bar.Set(progress.Done + progress.Failed)
			}
		}
	}
}
