package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var skipCatchup bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index live while files change",
		Long: `Watch every configured root and reindex files as they change.

Before watching, the store is reconciled against the filesystem so edits
made while contextd was not running are picked up. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, skipCatchup)
		},
	}

	cmd.Flags().BoolVar(&skipCatchup, "skip-catchup", false, "Skip the startup reconciliation pass")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, skipCatchup bool) error {
	out := newOutput(cmd)

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	if !skipCatchup {
		summary, err := eng.Refresh(ctx, nil, false)
		if err != nil {
			return err
		}
		if summary.Indexed+summary.Deleted > 0 {
			out.Statusf("caught up: %d indexed, %d deleted", summary.Indexed, summary.Deleted)
		}
	}

	out.Status("watching for changes (ctrl-c to stop)")
	if err := eng.Watch(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	if ctx.Err() == context.Canceled {
		out.Status("stopped")
	}
	return nil
}
