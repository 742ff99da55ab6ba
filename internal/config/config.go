// Package config provides configuration structures and loading for cdcpipe.
package config

import "time"

// Config represents the complete application configuration.
type Config struct {
	Warehouse WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// WarehouseConfig represents the Snowflake account the pipeline runs against.
type WarehouseConfig struct {
	Account             string      `yaml:"account" mapstructure:"account"`
	User                string      `yaml:"user" mapstructure:"user"`
	Password            string      `yaml:"password" mapstructure:"password"`
	Role                string      `yaml:"role" mapstructure:"role"`
	Database            string      `yaml:"database" mapstructure:"database"`
	Schema              string      `yaml:"schema" mapstructure:"schema"` // schema holding the CDC streams
	Tiers               TiersConfig `yaml:"tiers" mapstructure:"tiers"`
	LoginTimeoutSeconds int         `yaml:"login_timeout_seconds" mapstructure:"login_timeout_seconds"`
	ConnectRetries      int         `yaml:"connect_retries" mapstructure:"connect_retries"`
}

// TiersConfig names the three compute warehouses.
type TiersConfig struct {
	Initial     string `yaml:"initial" mapstructure:"initial"`         // tier the session connects on
	CDC         string `yaml:"cdc" mapstructure:"cdc"`                 // staged table processing
	Interactive string `yaml:"interactive" mapstructure:"interactive"` // fact table population
}

// Names returns the tier names in fixed order: initial, CDC, interactive.
func (t TiersConfig) Names() []string {
	return []string{t.Initial, t.CDC, t.Interactive}
}

// SourceConfig represents the operational Postgres database feeding CDC.
// The source is only probed by the validate command; it is optional.
type SourceConfig struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN                 string `yaml:"dsn" mapstructure:"dsn"`
	ReplicationSlot     string `yaml:"replication_slot" mapstructure:"replication_slot"`
	MaxRetainedWALBytes int64  `yaml:"max_retained_wal_bytes" mapstructure:"max_retained_wal_bytes"`
}

// PipelineConfig represents run-level settings.
type PipelineConfig struct {
	Schedule string `yaml:"schedule" mapstructure:"schedule"` // run lock name
	LockDir  string `yaml:"lock_dir" mapstructure:"lock_dir"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Warehouse: WarehouseConfig{
			Database: "CLINICAL_DATA_PIPELINE",
			Schema:   "RAW_DATA",
			Tiers: TiersConfig{
				Initial:     "CLINICAL_INIT_WH",
				CDC:         "CLINICAL_CDC_WH",
				Interactive: "CLINICAL_INTERACTIVE_WH",
			},
			LoginTimeoutSeconds: 60,
			ConnectRetries:      3,
		},
		Source: SourceConfig{
			Enabled:             false,
			ReplicationSlot:     "cdc_slot",
			MaxRetainedWALBytes: 1 << 30,
		},
		Pipeline: PipelineConfig{
			Schedule: "default",
			LockDir:  "/tmp",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoginTimeout returns the login timeout as a duration.
func (w *WarehouseConfig) LoginTimeout() time.Duration {
	return time.Duration(w.LoginTimeoutSeconds) * time.Second
}
