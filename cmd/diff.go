package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"strata.dev/pkg/strata/internal/domain"
)

// diffCmd represents the diff command.
var diffCmd = newDiffCmd()

func newDiffCmd() *cobra.Command {
	var flags selectionFlags

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Capture node trees as patch sets against their parents",
		Long: `Compare decompiled/<parent> with decompiled/<node> and rewrite the node's
patch directory: unified diffs for text files, copies for new files and a
removed_files.list for deleted ones. Root nodes only get an empty patch directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := flags.selection()
			if err != nil {
				return err
			}

			return workflow.Diff(cmd.Context(), domain.DiffNodesArgs{
				WorkflowArgs: workflowArgs(sel),
				ContextLines: viper.GetInt(diffContextLinesKey),
				Extensions:   viper.GetStringSlice(diffExtensionsKey),
			})
		},
	}

	flags.register(cmd, "diff every node of this kind (depot, mod)", false)
	configureDiffFlags(cmd)

	return cmd
}

func configureDiffFlags(cmd *cobra.Command) {
	cmd.Flags().Int(contextFlagName, viper.GetInt(diffContextLinesKey), "unchanged lines kept around each hunk")
	bindFlagToConfig(cmd.Flags().Lookup(contextFlagName), diffContextLinesKey)
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
