package cmd

import (
	"github.com/spf13/cobra"

	"strata.dev/pkg/strata/internal/domain"
	m "strata.dev/pkg/strata/internal/model"
)

// decompileCmd represents the decompile command.
var decompileCmd = newDecompileCmd()

func newDecompileCmd() *cobra.Command {
	var flags selectionFlags

	cmd := &cobra.Command{
		Use:   "decompile",
		Short: "Decompile installed depots",
		Long: `Copy each installed depot into the cloned directory and run the configured
decompiler on its entry binary. The output replaces decompiled/<name>;
version-control metadata there is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.kind = string(m.KindDepot)

			sel, err := flags.selection()
			if err != nil {
				return err
			}

			return workflow.Decompile(cmd.Context(), domain.DecompileArgs{WorkflowArgs: workflowArgs(sel)})
		},
	}

	cmd.Flags().StringVarP(&flags.node, nodeFlagName, "n", "", "decompile a single named depot")

	return cmd
}

func init() {
	rootCmd.AddCommand(decompileCmd)
}
