// Package cmd provides the root command and CLI setup for strata.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"strata.dev/pkg/strata/internal/adapter"
	"strata.dev/pkg/strata/internal/controller"
	"strata.dev/pkg/strata/internal/domain"
	m "strata.dev/pkg/strata/internal/model"
)

var fsAdapter adapter.SourceFSAdapter
var patchCodec adapter.PatchCodec
var descriptionReader adapter.DescriptionReader
var decompiler adapter.DecompilerAdapter
var downloader adapter.DownloadAdapter
var workflow domain.Workflow
var ui controller.UI

func init() {
	configureRootFlags(rootCmd)

	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	fsAdapter = adapter.NewLocalSourceFSAdapter()
	patchCodec = adapter.NewUnifiedPatchCodec()
	descriptionReader = adapter.NewLocalDescriptionReader()
	decompiler = adapter.NewCommandDecompiler(
		adapter.NewLocalCommandRunnerAdapter(timeoutFromConfig(decompilerTimeoutKey)),
		viper.GetString(decompilerCommandKey),
		viper.GetStringSlice(decompilerArgsKey),
	)
	downloader = adapter.NewCommandDownloader(
		adapter.NewLocalCommandRunnerAdapter(timeoutFromConfig(downloadTimeoutKey)),
		viper.GetString(downloadCommandKey),
		viper.GetStringSlice(downloadArgsKey),
	)
	workflow = domain.NewWorkflow(
		fsAdapter,
		patchCodec,
		descriptionReader,
		decompiler,
		downloader,
		ui,
	)
}

const rootLongDescription = `Strata maintains a forest of layered source workspaces. Depot nodes hold
a pristine decompiled program; every mod node is stored as a patch set
against its parent and rebuilt from it on demand.

Nodes are read from a JSON or YAML description (default: patches.json).`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "strata",
		Short:        "Layered workspace diff and patch tool",
		Long:         rootLongDescription,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logFile, _ := cmd.Flags().GetString(logFileFlagName)
			verbose, _ := cmd.Flags().GetBool(verboseFlagName)
			configureLogger(logFile, verbose)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

// newRootCmd builds a fresh root command with its persistent flags, for
// tests that attach a single subcommand.
func newRootCmd() *cobra.Command {
	cmd := baseRootCmd()
	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP(patchesFlagName, "f", viper.GetString(patchesConfigKey), "node-graph description file (.json, .yaml)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(patchesFlagName), patchesConfigKey)

	cmd.PersistentFlags().IntP(runParallelFlagName, "p", viper.GetInt(runParallelConfigKey), "number of parallel file workers (0 = cores - 1)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(runParallelFlagName), runParallelConfigKey)

	cmd.PersistentFlags().String(logFileFlagName, "", "log file path (default from config, "+defaultLogFilename+")")
	cmd.PersistentFlags().BoolP(verboseFlagName, "v", false, "log at debug level")
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

// workflowArgs collects the arguments every workflow operation shares.
func workflowArgs(sel domain.Selection) domain.WorkflowArgs {
	return domain.WorkflowArgs{
		Description: m.Path(viper.GetString(patchesConfigKey)),
		Layout: domain.Layout{
			Downloads:  m.Path(viper.GetString(downloadsDirConfigKey)),
			Cloned:     m.Path(viper.GetString(clonedDirConfigKey)),
			Decompiled: m.Path(viper.GetString(decompiledDirConfigKey)),
		},
		Selection: sel,
		Parallel:  viper.GetInt(runParallelConfigKey),
	}
}

// selectionFlags holds the node selection flags of one command.
type selectionFlags struct {
	kind          string
	node          string
	withAncestors bool
}

func (s *selectionFlags) register(cmd *cobra.Command, kindHelp string, ancestors bool) {
	cmd.Flags().StringVarP(&s.kind, kindFlagName, "k", "", kindHelp)
	cmd.Flags().StringVarP(&s.node, nodeFlagName, "n", "", "run on a single named node")

	if ancestors {
		cmd.Flags().BoolVar(&s.withAncestors, withAncestorsFlagName, false, "also run on the ancestors of --node, root first")
	}
}

func (s *selectionFlags) selection() (domain.Selection, error) {
	sel := domain.Selection{Name: s.node, WithAncestors: s.withAncestors}

	if s.kind != "" {
		kind, err := m.ParseKind(s.kind)
		if err != nil {
			return domain.Selection{}, err
		}

		sel.Kind = kind
	}

	if sel.WithAncestors && sel.Name == "" {
		return domain.Selection{}, fmt.Errorf("--%s requires --%s", withAncestorsFlagName, nodeFlagName)
	}

	return sel, nil
}
