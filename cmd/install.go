package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"strata.dev/pkg/strata/internal/domain"
	m "strata.dev/pkg/strata/internal/model"
)

// readPassword reads a secret from the terminal without echo.
var readPassword = func() (string, error) {
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}

	return string(secret), nil
}

// stdinIsTTY reports whether credentials may be prompted for.
var stdinIsTTY = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// installCmd represents the install command.
var installCmd = newInstallCmd()

func newInstallCmd() *cobra.Command {
	var node string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download every depot referenced by the node graph",
		Long: `Download each distinct (app, depot) pair into downloads/<app>/<depot>,
replacing any previous download. Files matching the exclusion regex are skipped
by the downloader. The password is read from STRATA_INSTALL_PASSWORD, the
config file, or prompted for on a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			username := viper.GetString(installUsernameKey)
			password := viper.GetString(installPasswordKey)

			if stdinIsTTY() {
				var err error

				username, password, err = promptCredentials(cmd.InOrStdin(), cmd.OutOrStdout(), username, password)
				if err != nil {
					return err
				}
			}

			return workflow.Install(cmd.Context(), domain.InstallArgs{
				WorkflowArgs: workflowArgs(domain.Selection{Kind: m.KindDepot, Name: node}),
				Username:     username,
				Password:     password,
				Exclude:      viper.GetString(downloadExcludeKey),
			})
		},
	}

	cmd.Flags().StringVarP(&node, nodeFlagName, "n", "", "install the depot of a single named node")
	configureInstallFlags(cmd)

	return cmd
}

func configureInstallFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(usernameFlagName, "u", viper.GetString(installUsernameKey), "download service username")
	bindFlagToConfig(cmd.Flags().Lookup(usernameFlagName), installUsernameKey)

	cmd.Flags().String(excludeFlagName, viper.GetString(downloadExcludeKey), "regex of depot files the downloader keeps")
	bindFlagToConfig(cmd.Flags().Lookup(excludeFlagName), downloadExcludeKey)
}

// promptCredentials asks for whichever of username and password is empty.
func promptCredentials(in io.Reader, out io.Writer, username, password string) (string, string, error) {
	if username == "" {
		_, _ = fmt.Fprint(out, "Username: ")

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return "", "", fmt.Errorf("read username: %w", err)
		}

		username = strings.TrimSpace(line)
	}

	if password == "" {
		_, _ = fmt.Fprint(out, "Password: ")

		secret, err := readPassword()
		if err != nil {
			return "", "", fmt.Errorf("read password: %w", err)
		}

		_, _ = fmt.Fprintln(out)
		password = secret
	}

	return username, password, nil
}

func init() {
	rootCmd.AddCommand(installCmd)
}
