package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// chdirTemp moves the test into a fresh directory for the duration of t.
func chdirTemp(t *testing.T) string {
	t.Helper()

	tempDir := t.TempDir()
	originalWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tempDir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(originalWD)) })

	return tempDir
}

func runInit(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}

	cmd := newRootCmd()
	cmd.AddCommand(newInitCmd())
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"init", "--" + logFileFlagName, filepath.Join(t.TempDir(), "strata.log")}, args...))

	err := cmd.Execute()

	return out.String(), err
}

func TestInitCmd_WritesStrataSettings(t *testing.T) {
	tempDir := chdirTemp(t)

	out, err := runInit(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+configFileName)

	contents, err := os.ReadFile(filepath.Join(tempDir, configFileName))
	require.NoError(t, err)

	var written struct {
		Patches string `yaml:"patches"`
		Diff    struct {
			ContextLines int      `yaml:"context_lines"`
			Extensions   []string `yaml:"extensions"`
		} `yaml:"diff"`
		Patch struct {
			FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
			WritePartial   bool    `yaml:"write_partial"`
		} `yaml:"patch"`
		Paths struct {
			Decompiled string `yaml:"decompiled"`
		} `yaml:"paths"`
		Decompiler struct {
			Command string `yaml:"command"`
		} `yaml:"decompiler"`
	}
	require.NoError(t, yaml.Unmarshal(contents, &written))

	assert.Equal(t, defaultPatches, written.Patches)
	assert.Equal(t, 3, written.Diff.ContextLines)
	assert.Contains(t, written.Diff.Extensions, ".cs")
	assert.InDelta(t, 0.5, written.Patch.FuzzyThreshold, 1e-9)
	assert.True(t, written.Patch.WritePartial)
	assert.Equal(t, "decompiled", written.Paths.Decompiled)
	assert.Equal(t, defaultDecompilerCommand, written.Decompiler.Command)
}

func TestInitCmd_ExistingFile(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantErr   bool
		wantEqual bool
	}{
		{name: "kept without force", wantErr: true, wantEqual: true},
		{name: "overwritten with force", args: []string{"--" + forceFlagName}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := chdirTemp(t)

			targetPath := filepath.Join(tempDir, configFileName)
			require.NoError(t, os.WriteFile(targetPath, []byte("existing: true\n"), 0o644))

			_, err := runInit(t, tt.args...)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			contents, err := os.ReadFile(targetPath)
			require.NoError(t, err)

			if tt.wantEqual {
				assert.Equal(t, "existing: true\n", string(contents))
			} else {
				assert.Contains(t, string(contents), "fuzzy_threshold")
			}
		})
	}
}
