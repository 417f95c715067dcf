package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newRebuildCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Drop the index and build it from scratch",
		Long: `Drop every chunk, symbol, embedding, and derived index, then
reindex the workspace from scratch.

Required after changing the embedding model, and useful when the index
is suspected to be corrupt. Destructive: requires --yes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := newOutput(cmd)
			if !yes {
				out.Error("rebuild drops the whole index; re-run with --yes to confirm")
				return nil
			}

			eng, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			start := time.Now()
			if err := eng.Rebuild(ctx, true); err != nil {
				return err
			}

			stats, err := eng.Stats(ctx)
			if err != nil {
				return err
			}
			out.Successf("rebuilt %d files, %d chunks in %s",
				stats.Store.IndexedFiles, stats.Store.Chunks,
				time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the destructive rebuild")

	return cmd
}
