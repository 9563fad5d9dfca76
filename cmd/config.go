package cmd

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"strata.dev/pkg/strata/internal/domain"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "strata"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	patchesFlagName       = "patches"
	runParallelFlagName   = "parallel"
	logFileFlagName       = "log-file"
	verboseFlagName       = "verbose"
	kindFlagName          = "kind"
	nodeFlagName          = "node"
	withAncestorsFlagName = "with-ancestors"
	failOnRejectFlagName  = "fail-on-reject"
	usernameFlagName      = "username"
	excludeFlagName       = "exclude"
	contextFlagName       = "context"
	fuzzyFlagName         = "fuzzy-threshold"
	writePartialFlagName  = "write-partial"
	forceFlagName         = "force"

	patchesConfigKey       = "patches"
	runParallelConfigKey   = "run.parallel"
	downloadsDirConfigKey  = "paths.downloads"
	clonedDirConfigKey     = "paths.cloned"
	decompiledDirConfigKey = "paths.decompiled"

	diffContextLinesKey = "diff.context_lines"
	diffExtensionsKey   = "diff.extensions"

	patchFuzzyThresholdKey = "patch.fuzzy_threshold"
	patchWritePartialKey   = "patch.write_partial"

	decompilerCommandKey = "decompiler.command"
	decompilerArgsKey    = "decompiler.args"
	decompilerTimeoutKey = "decompiler.timeout"

	downloadCommandKey = "download.command"
	downloadArgsKey    = "download.args"
	downloadExcludeKey = "download.exclude"
	downloadTimeoutKey = "download.timeout"

	installUsernameKey = "install.username"
	installPasswordKey = "install.password"

	defaultPatches     = "patches.json"
	defaultRunParallel = 0

	defaultDecompilerCommand = "ilspycmd"
	defaultDecompilerTimeout = time.Minute * 30
	defaultDownloadCommand   = "DepotDownloader"
	defaultDownloadTimeout   = time.Hour
	defaultDownloadExclude   = `^.*(?<!\.xnb)(?<!\.xwb)(?<!\.xsb)(?<!\.xgs)(?<!\.bat)(?<!\.txt)(?<!\.xml)(?<!\.msi)$`

	envPrefix = "STRATA"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".strata.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var (
	defaultDecompilerArgs = []string{"-p", "-o", "{output}", "{input}"}
	defaultDownloadArgs   = []string{
		"-app", "{app}",
		"-depot", "{depot}",
		"-filelist", "{filelist}",
		"-username", "{username}",
		"-password", "{password}",
		"-dir", "{dir}",
	}
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(patchesConfigKey, defaultPatches)
	viper.SetDefault(runParallelConfigKey, defaultRunParallel)

	layout := domain.DefaultLayout()
	viper.SetDefault(downloadsDirConfigKey, string(layout.Downloads))
	viper.SetDefault(clonedDirConfigKey, string(layout.Cloned))
	viper.SetDefault(decompiledDirConfigKey, string(layout.Decompiled))

	viper.SetDefault(diffContextLinesKey, domain.DefaultContextLines)
	viper.SetDefault(diffExtensionsKey, domain.DefaultDiffExtensions)
	viper.SetDefault(patchFuzzyThresholdKey, domain.DefaultFuzzyThreshold)
	viper.SetDefault(patchWritePartialKey, true)

	viper.SetDefault(decompilerCommandKey, defaultDecompilerCommand)
	viper.SetDefault(decompilerArgsKey, defaultDecompilerArgs)
	viper.SetDefault(decompilerTimeoutKey, int64(defaultDecompilerTimeout.Seconds()))
	viper.SetDefault(downloadCommandKey, defaultDownloadCommand)
	viper.SetDefault(downloadArgsKey, defaultDownloadArgs)
	viper.SetDefault(downloadExcludeKey, defaultDownloadExclude)
	viper.SetDefault(downloadTimeoutKey, int64(defaultDownloadTimeout.Seconds()))

	viper.SetDefault(installUsernameKey, "")
	viper.SetDefault(installPasswordKey, "")

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		return
	}
}

// timeoutFromConfig reads a timeout stored in seconds. Zero disables it.
func timeoutFromConfig(key string) time.Duration {
	return time.Duration(viper.GetInt64(key)) * time.Second
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose || viper.GetBool(logVerboseKey) {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
