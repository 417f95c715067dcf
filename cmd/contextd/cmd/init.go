package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentfusion/contextd/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write a .contextd.yaml with the default configuration to the
workspace root, as a starting point for customization.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newOutput(cmd)

			root, err := filepath.Abs(flagRoot)
			if err != nil {
				return err
			}
			path := filepath.Join(root, config.DefaultConfigFile)
			if _, err := os.Stat(path); err == nil && !force {
				out.Warning(path + " already exists; use --force to overwrite")
				return nil
			}

			if err := config.Default(root).WriteYAML(path); err != nil {
				return err
			}
			out.Successf("wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")

	return cmd
}
