package adapter

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// CommandRunnerAdapter abstracts execution of the external tools strata
// drives (decompiler, depot downloader).
type CommandRunnerAdapter interface {
	// Run executes name with args in workDir and returns the combined
	// stdout/stderr output and any error.
	Run(ctx context.Context, workDir, name string, args ...string) (output string, err error)
}

// LocalCommandRunnerAdapter provides a concrete implementation using os/exec.
type LocalCommandRunnerAdapter struct {
	timeout time.Duration
}

// NewLocalCommandRunnerAdapter constructs a LocalCommandRunnerAdapter. A zero
// timeout means commands run until the context is cancelled.
func NewLocalCommandRunnerAdapter(timeout time.Duration) *LocalCommandRunnerAdapter {
	return &LocalCommandRunnerAdapter{
		timeout: timeout,
	}
}

// Run executes the command and captures its output.
func (a *LocalCommandRunnerAdapter) Run(ctx context.Context, workDir, name string, args ...string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	// #nosec G204 - the command is configured by the operator
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := stdout.String() + stderr.String()

	return output, err
}

// ExpandArgs substitutes {key} placeholders in every argument.
func ExpandArgs(args []string, values map[string]string) []string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}

	replacer := strings.NewReplacer(pairs...)

	out := make([]string, 0, len(args))
	for _, arg := range args {
		out = append(out, replacer.Replace(arg))
	}

	return out
}
