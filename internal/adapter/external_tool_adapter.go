package adapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	m "strata.dev/pkg/strata/internal/model"
)

// maxToolOutput bounds how much tool output is carried in an error.
const maxToolOutput = 2048

// DecompilerAdapter turns an entry binary into a source tree.
type DecompilerAdapter interface {
	Decompile(ctx context.Context, entry, outDir m.Path) error
}

// DownloadRequest describes one depot download.
type DownloadRequest struct {
	AppID    int
	DepotID  int
	Username string
	Password string
	FileList m.Path
	Dir      m.Path
}

// DownloadAdapter acquires depot content from the distribution service.
type DownloadAdapter interface {
	Download(ctx context.Context, req DownloadRequest) error
}

// CommandDecompiler runs an external decompiler. Args may use the {input}
// and {output} placeholders.
type CommandDecompiler struct {
	runner  CommandRunnerAdapter
	command string
	args    []string
}

// NewCommandDecompiler constructs a CommandDecompiler.
func NewCommandDecompiler(runner CommandRunnerAdapter, command string, args []string) *CommandDecompiler {
	return &CommandDecompiler{runner: runner, command: command, args: args}
}

// Decompile runs the configured command.
func (d *CommandDecompiler) Decompile(ctx context.Context, entry, outDir m.Path) error {
	args := ExpandArgs(d.args, map[string]string{
		"input":  string(entry),
		"output": string(outDir),
	})

	out, err := d.runner.Run(ctx, "", d.command, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", d.command, entry, err, tail(out))
	}

	return nil
}

// CommandDownloader runs an external depot downloader. Args may use the
// {app}, {depot}, {filelist}, {username}, {password} and {dir} placeholders.
type CommandDownloader struct {
	runner  CommandRunnerAdapter
	command string
	args    []string
}

// NewCommandDownloader constructs a CommandDownloader.
func NewCommandDownloader(runner CommandRunnerAdapter, command string, args []string) *CommandDownloader {
	return &CommandDownloader{runner: runner, command: command, args: args}
}

// Download runs the configured command for one depot.
func (d *CommandDownloader) Download(ctx context.Context, req DownloadRequest) error {
	args := ExpandArgs(d.args, map[string]string{
		"app":      strconv.Itoa(req.AppID),
		"depot":    strconv.Itoa(req.DepotID),
		"filelist": string(req.FileList),
		"username": req.Username,
		"password": req.Password,
		"dir":      string(req.Dir),
	})

	out, err := d.runner.Run(ctx, "", d.command, args...)
	if err != nil {
		// Redact the password if the tool echoed it.
		if req.Password != "" {
			out = strings.ReplaceAll(out, req.Password, "***")
		}

		return fmt.Errorf("%s app %d depot %d: %w: %s", d.command, req.AppID, req.DepotID, err, tail(out))
	}

	return nil
}

func tail(out string) string {
	out = strings.TrimSpace(out)
	if len(out) <= maxToolOutput {
		return out
	}

	return "..." + out[len(out)-maxToolOutput:]
}
