package cmd

import (
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestConfigConstants(t *testing.T) {
	assert.Equal(t, "strata", configBaseName)
	assert.Equal(t, "strata.yaml", configFileName)
	assert.Equal(t, ".", configFolderPath)
	assert.Equal(t, "patches", patchesFlagName)
	assert.Equal(t, "parallel", runParallelFlagName)
	assert.Equal(t, "run.parallel", runParallelConfigKey)
	assert.Equal(t, "patches.json", defaultPatches)
	assert.Equal(t, "STRATA", envPrefix)
	assert.Equal(t, ".strata.log", defaultLogFilename)
}

func TestConfigVersionConstants(t *testing.T) {
	assert.Equal(t, "version", configVersionKey)
	assert.Equal(t, 1, currentConfigVersion)
}

func TestConfigDefaults(t *testing.T) {
	assert.Equal(t, "decompiled", viper.GetString(decompiledDirConfigKey))
	assert.Equal(t, "ilspycmd", viper.GetString(decompilerCommandKey))
	assert.Equal(t, defaultDecompilerArgs, viper.GetStringSlice(decompilerArgsKey))
	assert.Equal(t, 3, viper.GetInt(diffContextLinesKey))
	assert.InDelta(t, 0.5, viper.GetFloat64(patchFuzzyThresholdKey), 1e-9)
	assert.Equal(t, time.Hour, timeoutFromConfig(downloadTimeoutKey))
}

func TestConfigEnvOverride(t *testing.T) {
	t.Setenv("STRATA_INSTALL_PASSWORD", "from-env")
	t.Setenv("STRATA_PATHS_DECOMPILED", "out")

	assert.Equal(t, "from-env", viper.GetString(installPasswordKey))
	assert.Equal(t, "out", viper.GetString(decompiledDirConfigKey))
}

func TestParseSlogLevel(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"-4", slog.LevelDebug},
		{"loud", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSlogLevel(tt.value, slog.LevelInfo))
		})
	}
}
