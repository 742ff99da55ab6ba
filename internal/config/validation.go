package config

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/cdcpipe/internal/sqlutil"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	if err := c.validateWarehouse(); err != nil {
		errors = append(errors, err...)
	}

	if c.Source.Enabled {
		if err := c.validateSource(); err != nil {
			errors = append(errors, err...)
		}
	}

	if err := c.validatePipeline(); err != nil {
		errors = append(errors, err...)
	}

	if err := c.validateLogging(); err != nil {
		errors = append(errors, err...)
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateWarehouse() ValidationErrors {
	var errors ValidationErrors
	w := &c.Warehouse

	if w.Account == "" {
		errors = append(errors, ValidationError{
			Field:   "warehouse.account",
			Message: "account is required (SNOWFLAKE_ACCOUNT)",
		})
	}

	if w.User == "" {
		errors = append(errors, ValidationError{
			Field:   "warehouse.user",
			Message: "user is required (SNOWFLAKE_USER)",
		})
	}

	if w.Password == "" {
		errors = append(errors, ValidationError{
			Field:   "warehouse.password",
			Message: "password is required (SNOWFLAKE_PASSWORD)",
		})
	}

	if w.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "warehouse.database",
			Message: "database name is required",
		})
	}

	// Schema and tier names are spliced into statements, so they must pass
	// the identifier allow-list.
	if !sqlutil.IsValidIdentifier(w.Schema) {
		errors = append(errors, ValidationError{
			Field:   "warehouse.schema",
			Message: "schema must be a plain identifier",
		})
	}

	tiers := []struct{ field, name string }{
		{"warehouse.tiers.initial", w.Tiers.Initial},
		{"warehouse.tiers.cdc", w.Tiers.CDC},
		{"warehouse.tiers.interactive", w.Tiers.Interactive},
	}
	for _, tier := range tiers {
		if !sqlutil.IsValidIdentifier(tier.name) {
			errors = append(errors, ValidationError{
				Field:   tier.field,
				Message: "tier must be a plain identifier",
			})
		}
	}

	if w.LoginTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "warehouse.login_timeout_seconds",
			Message: "login_timeout_seconds cannot be negative",
		})
	}

	if w.ConnectRetries < 1 {
		errors = append(errors, ValidationError{
			Field:   "warehouse.connect_retries",
			Message: "connect_retries must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateSource() ValidationErrors {
	var errors ValidationErrors

	if c.Source.DSN == "" {
		errors = append(errors, ValidationError{
			Field:   "source.dsn",
			Message: "dsn is required when source is enabled",
		})
	}

	if c.Source.ReplicationSlot == "" {
		errors = append(errors, ValidationError{
			Field:   "source.replication_slot",
			Message: "replication_slot is required when source is enabled",
		})
	}

	if c.Source.MaxRetainedWALBytes < 0 {
		errors = append(errors, ValidationError{
			Field:   "source.max_retained_wal_bytes",
			Message: "max_retained_wal_bytes cannot be negative",
		})
	}

	return errors
}

func (c *Config) validatePipeline() ValidationErrors {
	var errors ValidationErrors

	if c.Pipeline.Schedule == "" {
		errors = append(errors, ValidationError{
			Field:   "pipeline.schedule",
			Message: "schedule is required",
		})
	}

	if c.Pipeline.LockDir == "" {
		errors = append(errors, ValidationError{
			Field:   "pipeline.lock_dir",
			Message: "lock_dir is required",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
