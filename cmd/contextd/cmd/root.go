// Package cmd provides the CLI commands for contextd.
package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentfusion/contextd/internal/config"
	"github.com/agentfusion/contextd/internal/engine"
	"github.com/agentfusion/contextd/internal/output"
	"github.com/agentfusion/contextd/internal/profiling"
	"github.com/agentfusion/contextd/pkg/version"
)

// Persistent flags shared by all subcommands.
var (
	flagRoot   string
	flagConfig string
	flagDebug  bool
)

// Profiling flags.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// NewRootCmd creates the root command for the contextd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contextd",
		Short: "Local context engine with live indexing and hybrid search",
		Long: `contextd indexes a workspace into chunks, symbols, and embeddings,
keeps the index live by watching the filesystem, and serves hybrid
search (semantic + symbol + full-text) over the result.

Typical usage:
  contextd index              # bootstrap the index for the current directory
  contextd watch              # keep it live while you work
  contextd search "auth middleware"`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("contextd version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&flagRoot, "root", "r", ".", "Workspace root to operate on")
	cmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file path (default: <root>/.contextd.yaml)")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfiling
	cmd.PersistentPostRunE = stopProfiling

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// startProfiling starts CPU and trace profiling if the flags are set.
func startProfiling(_ *cobra.Command, _ []string) error {
	var err error
	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return err
		}
	}
	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
				cpuCleanup = nil
			}
			return err
		}
	}
	return nil
}

// stopProfiling flushes profiles and writes the heap snapshot if requested.
func stopProfiling(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		return profiler.WriteHeap(profileMem)
	}
	return nil
}

// loadConfig resolves the workspace root and loads its configuration.
func loadConfig() (*config.Config, error) {
	root, err := filepath.Abs(flagRoot)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root, flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDebug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// openEngine loads configuration and constructs a ready engine. The caller
// owns the returned engine and must Close it.
func openEngine(ctx context.Context) (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return engine.New(ctx, cfg)
}

// newOutput builds the output writer for a command, honoring redirection.
func newOutput(cmd *cobra.Command) *output.Writer {
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		return output.New(f)
	}
	return output.NewStyled(cmd.OutOrStdout(), output.NoColorStyles())
}
