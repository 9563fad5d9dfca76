package cmd

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"
)

const toolName = "strata"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the strata version",
		Long:  "Prints the strata module version, the VCS revision it was built from and the Go version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info, _ := debug.ReadBuildInfo()
			writeVersion(cmd.OutOrStdout(), info)
		},
	}
}

// writeVersion prints one "key value" line per known build detail.
func writeVersion(out io.Writer, info *debug.BuildInfo) {
	version := "(devel)"
	goVersion := "unknown"
	revision := ""
	modified := false

	if info != nil {
		if info.Main.Version != "" {
			version = info.Main.Version
		}

		goVersion = info.GoVersion

		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
			case "vcs.modified":
				modified = setting.Value == "true"
			}
		}
	}

	_, _ = fmt.Fprintf(out, "%s %s\n", toolName, version)

	if revision != "" {
		if modified {
			revision += " (modified)"
		}

		_, _ = fmt.Fprintf(out, "revision %s\n", revision)
	}

	_, _ = fmt.Fprintf(out, "go %s\n", goVersion)
}

// versionCmd represents the version command.
var versionCmd = newVersionCmd()

func init() {
	rootCmd.AddCommand(versionCmd)
}
