package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"strata.dev/pkg/strata/internal/domain"
)

// patchCmd represents the patch command.
var patchCmd = newPatchCmd()

func newPatchCmd() *cobra.Command {
	var (
		flags        selectionFlags
		failOnReject bool
	)

	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Rebuild node trees from their parents and patch sets",
		Long: `Rebuild decompiled/<node> from decompiled/<parent> and the node's patch
directory. Hunks are placed exactly, at an offset, or fuzzily; rejected hunks
are listed in the summary. Root nodes are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := flags.selection()
			if err != nil {
				return err
			}

			return workflow.Patch(cmd.Context(), domain.PatchNodesArgs{
				WorkflowArgs:   workflowArgs(sel),
				ContextLines:   viper.GetInt(diffContextLinesKey),
				FuzzyThreshold: viper.GetFloat64(patchFuzzyThresholdKey),
				WritePartial:   viper.GetBool(patchWritePartialKey),
				FailOnReject:   failOnReject,
			})
		},
	}

	flags.register(cmd, "patch every node of this kind (depot, mod)", true)
	cmd.Flags().BoolVar(&failOnReject, failOnRejectFlagName, false, "exit non-zero when any hunk is rejected")
	configurePatchFlags(cmd)

	return cmd
}

func configurePatchFlags(cmd *cobra.Command) {
	cmd.Flags().Float64(fuzzyFlagName, viper.GetFloat64(patchFuzzyThresholdKey), "minimum similarity (0-1] for fuzzy hunk placement")
	bindFlagToConfig(cmd.Flags().Lookup(fuzzyFlagName), patchFuzzyThresholdKey)

	cmd.Flags().Bool(writePartialFlagName, viper.GetBool(patchWritePartialKey), "write files whose patch only partly applied")
	bindFlagToConfig(cmd.Flags().Lookup(writePartialFlagName), patchWritePartialKey)
}

func init() {
	rootCmd.AddCommand(patchCmd)
}
