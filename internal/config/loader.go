package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/dbsmedya/cdcpipe/internal/sqlutil"
)

// envBindings maps config keys to the environment variables that the
// scheduler injects. They take precedence over values in the config file.
var envBindings = map[string]string{
	"warehouse.account":  "SNOWFLAKE_ACCOUNT",
	"warehouse.user":     "SNOWFLAKE_USER",
	"warehouse.password": "SNOWFLAKE_PASSWORD",
	"warehouse.role":     "SNOWFLAKE_ROLE",
	"warehouse.database": "SNOWFLAKE_DATABASE",
	"warehouse.schema":   "SNOWFLAKE_SCHEMA",

	"warehouse.tiers.initial":     "CDCPIPE_TIER_INITIAL",
	"warehouse.tiers.cdc":         "CDCPIPE_TIER_CDC",
	"warehouse.tiers.interactive": "CDCPIPE_TIER_INTERACTIVE",

	"source.dsn": "CDC_SOURCE_DSN",
}

// Load reads configuration from the specified file path.
// An empty path loads defaults plus environment only.
// It supports YAML files and performs environment variable substitution.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadIfExists is Load for an optional file: a path that does not exist
// loads defaults plus environment, so a scheduler can run the pipeline with
// no file at all.
func LoadIfExists(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			return Load("")
		}
	}
	return Load(configPath)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := substituteEnvVars(cfg); err != nil {
		return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
	}
	normalizeIdentifiers(cfg)

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(cfg *Config) error {
	cfg.Warehouse.Account = expandEnvVar(cfg.Warehouse.Account)
	cfg.Warehouse.User = expandEnvVar(cfg.Warehouse.User)
	cfg.Warehouse.Password = expandEnvVar(cfg.Warehouse.Password)
	cfg.Warehouse.Role = expandEnvVar(cfg.Warehouse.Role)
	cfg.Warehouse.Database = expandEnvVar(cfg.Warehouse.Database)
	cfg.Warehouse.Schema = expandEnvVar(cfg.Warehouse.Schema)
	cfg.Warehouse.Tiers.Initial = expandEnvVar(cfg.Warehouse.Tiers.Initial)
	cfg.Warehouse.Tiers.CDC = expandEnvVar(cfg.Warehouse.Tiers.CDC)
	cfg.Warehouse.Tiers.Interactive = expandEnvVar(cfg.Warehouse.Tiers.Interactive)

	cfg.Source.DSN = expandEnvVar(cfg.Source.DSN)

	cfg.Pipeline.LockDir = expandEnvVar(cfg.Pipeline.LockDir)
	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)

	return nil
}

// normalizeIdentifiers upper-cases the names that are quoted into
// statements or compared against INFORMATION_SCHEMA, matching how
// Snowflake resolves them unquoted.
func normalizeIdentifiers(cfg *Config) {
	w := &cfg.Warehouse
	w.Schema = sqlutil.NormalizeIdentifier(w.Schema)
	w.Tiers.Initial = sqlutil.NormalizeIdentifier(w.Tiers.Initial)
	w.Tiers.CDC = sqlutil.NormalizeIdentifier(w.Tiers.CDC)
	w.Tiers.Interactive = sqlutil.NormalizeIdentifier(w.Tiers.Interactive)
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Return original if env var not found
		return match
	})
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat, schedule string) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if schedule != "" {
		c.Pipeline.Schedule = schedule
	}
}
