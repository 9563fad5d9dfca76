package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// initCmd represents the init command.
var initCmd = newInitCmd()

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default strata.yaml",
		Long: `Write strata.yaml into the current directory with every setting strata reads:
workspace paths, diff context and extensions, fuzzy threshold, decompiler and
downloader commands, and logging. An existing file is kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targetPath := filepath.Join(configFolderPath, configFileName)

			write := viper.SafeWriteConfigAs
			if force {
				write = viper.WriteConfigAs
			}

			if err := write(targetPath); err != nil {
				return fmt.Errorf("write %s: %w", configFileName, err)
			}

			cmd.Printf("Wrote %s\n", targetPath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, forceFlagName, false, "overwrite an existing "+configFileName)

	return cmd
}

func init() {
	rootCmd.AddCommand(initCmd)
}
