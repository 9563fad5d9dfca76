package cmd

import (
	"github.com/spf13/cobra"
)

// nodesCmd represents the nodes command.
var nodesCmd = newNodesCmd()

func newNodesCmd() *cobra.Command {
	var flags selectionFlags

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List the workspace nodes",
		Long:  "Load the node-graph description with its dependencies and print every node in processing order.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := flags.selection()
			if err != nil {
				return err
			}

			return workflow.Nodes(cmd.Context(), workflowArgs(sel))
		},
	}

	flags.register(cmd, "only list nodes of this kind (depot, mod)", false)

	return cmd
}

func init() {
	rootCmd.AddCommand(nodesCmd)
}
