package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigFile(t *testing.T) {
	originalCfgFile := cfgFile
	defer func() {
		cfgFile = originalCfgFile
	}()

	tests := []struct {
		name     string
		cfgValue string
		want     string
	}{
		{name: "empty", cfgValue: "", want: ""},
		{name: "custom config file", cfgValue: "/etc/cdcpipe/prod.yaml", want: "/etc/cdcpipe/prod.yaml"},
		{name: "config file with spaces", cfgValue: "/path/to/my config.yaml", want: "/path/to/my config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgFile = tt.cfgValue
			assert.Equal(t, tt.want, GetConfigFile())
		})
	}
}

func TestGetCLIOverrides(t *testing.T) {
	originalLogLevel := logLevel
	originalLogFormat := logFormat
	originalSchedule := schedule
	defer func() {
		logLevel = originalLogLevel
		logFormat = originalLogFormat
		schedule = originalSchedule
	}()

	tests := []struct {
		name      string
		logLevel  string
		logFormat string
		schedule  string
		want      CLIOverrides
	}{
		{
			name: "empty overrides",
			want: CLIOverrides{},
		},
		{
			name:      "all overrides set",
			logLevel:  "debug",
			logFormat: "text",
			schedule:  "hourly",
			want:      CLIOverrides{LogLevel: "debug", LogFormat: "text", Schedule: "hourly"},
		},
		{
			name:     "partial overrides",
			logLevel: "warn",
			want:     CLIOverrides{LogLevel: "warn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logLevel = tt.logLevel
			logFormat = tt.logFormat
			schedule = tt.schedule

			assert.Equal(t, tt.want, GetCLIOverrides())
		})
	}
}

func TestRootCommandStructure(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "cdcpipe", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.Equal(t, Version, rootCmd.Version)
	assert.NotNil(t, rootCmd.PersistentPreRun)
}

func TestRootCommandPersistentFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	configFlag, err := flags.GetString("config")
	assert.NoError(t, err)
	assert.Equal(t, "cdcpipe.yaml", configFlag)
	assert.Equal(t, "c", flags.Lookup("config").Shorthand)

	logLevelFlag, err := flags.GetString("log-level")
	assert.NoError(t, err)
	assert.Equal(t, "", logLevelFlag)

	logFormatFlag, err := flags.GetString("log-format")
	assert.NoError(t, err)
	assert.Equal(t, "", logFormatFlag)

	scheduleFlag, err := flags.GetString("schedule")
	assert.NoError(t, err)
	assert.Equal(t, "", scheduleFlag)

	noColorFlag, err := flags.GetBool("no-color")
	assert.NoError(t, err)
	assert.False(t, noColorFlag)
}

func TestRootCommandSubcommands(t *testing.T) {
	commands := rootCmd.Commands()
	commandNames := make([]string, len(commands))
	for i, cmd := range commands {
		commandNames[i] = cmd.Name()
	}

	for _, want := range []string{"catalog", "costs", "run", "validate", "version"} {
		assert.Contains(t, commandNames, want)
	}
}

// writeConfig writes a minimal valid config into a temp dir and points the
// --config flag at it.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "cdcpipe.yaml")
	content := `warehouse:
  account: xy12345
  user: pipeline
  password: secret
  database: CLINICAL
pipeline:
  schedule: nightly
  lock_dir: ` + dir + `
logging:
  level: error
  format: json
  output: stderr
` + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("SNOWFLAKE_ACCOUNT", "xy12345")
	t.Setenv("SNOWFLAKE_USER", "pipeline")
	t.Setenv("SNOWFLAKE_PASSWORD", "secret")

	original := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = original })
	return dir
}

func TestLoadConfig(t *testing.T) {
	writeConfig(t, "")

	cfg, log, err := loadConfig()
	require.NoError(t, err)
	require.NotNil(t, log)

	assert.Equal(t, "xy12345", cfg.Warehouse.Account)
	assert.Equal(t, "CLINICAL", cfg.Warehouse.Database)
	assert.Equal(t, "nightly", cfg.Pipeline.Schedule)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadConfig_AppliesOverrides(t *testing.T) {
	writeConfig(t, "")

	originalLogLevel, originalSchedule := logLevel, schedule
	defer func() { logLevel, schedule = originalLogLevel, originalSchedule }()
	logLevel = "warn"
	schedule = "hourly"

	cfg, _, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "hourly", cfg.Pipeline.Schedule)
}

func TestLoadConfig_Invalid(t *testing.T) {
	writeConfig(t, "")

	original := logFormat
	defer func() { logFormat = original }()
	logFormat = "xml"

	_, _, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "logging.format")
}

func TestLoadConfig_DefaultFileIsOptional(t *testing.T) {
	for _, env := range []string{"SNOWFLAKE_ROLE", "SNOWFLAKE_DATABASE", "SNOWFLAKE_SCHEMA",
		"CDCPIPE_TIER_INITIAL", "CDCPIPE_TIER_CDC", "CDCPIPE_TIER_INTERACTIVE", "CDC_SOURCE_DSN"} {
		t.Setenv(env, "")
	}
	t.Setenv("SNOWFLAKE_ACCOUNT", "xy12345")
	t.Setenv("SNOWFLAKE_USER", "pipeline")
	t.Setenv("SNOWFLAKE_PASSWORD", "secret")
	t.Setenv("CDCPIPE_TIER_CDC", "clinical_cdc_wh")

	// The default path is relative, so run from an empty directory.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(wd) }()

	original := cfgFile
	defer func() { cfgFile = original }()
	cfgFile = defaultConfigFile

	cfg, _, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "xy12345", cfg.Warehouse.Account)
	assert.Equal(t, "CLINICAL_CDC_WH", cfg.Warehouse.Tiers.CDC)
	assert.Equal(t, "RAW_DATA", cfg.Warehouse.Schema)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	original := cfgFile
	defer func() { cfgFile = original }()
	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, _, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
