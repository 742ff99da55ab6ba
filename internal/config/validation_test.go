package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Warehouse.Account = "xy12345"
	cfg.Warehouse.User = "pipeline_svc"
	cfg.Warehouse.Password = "secret"
	return cfg
}

func TestValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("expected no validation errors, got: %v", err)
	}
}

func TestMissingCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Warehouse.Account = ""
	cfg.Warehouse.User = ""
	cfg.Warehouse.Password = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for missing credentials")
	}
	for _, field := range []string{"warehouse.account", "warehouse.user", "warehouse.password"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected error to mention %q, got: %v", field, err)
		}
	}

	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 3 {
		t.Errorf("expected 3 validation errors, got %d", len(verrs))
	}
}

func TestInvalidTierIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{
			name:  "initial tier with quote",
			mut:   func(c *Config) { c.Warehouse.Tiers.Initial = `INIT"; DROP` },
			field: "warehouse.tiers.initial",
		},
		{
			name:  "empty cdc tier",
			mut:   func(c *Config) { c.Warehouse.Tiers.CDC = "" },
			field: "warehouse.tiers.cdc",
		},
		{
			name:  "interactive tier with space",
			mut:   func(c *Config) { c.Warehouse.Tiers.Interactive = "BI WH" },
			field: "warehouse.tiers.interactive",
		},
		{
			name:  "schema with dot",
			mut:   func(c *Config) { c.Warehouse.Schema = "RAW.DATA" },
			field: "warehouse.schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mut(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to mention %q, got: %v", tt.field, err)
			}
		})
	}
}

func TestConnectRetries(t *testing.T) {
	cfg := validConfig()
	cfg.Warehouse.ConnectRetries = 0

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "warehouse.connect_retries") {
		t.Errorf("expected connect_retries error, got: %v", err)
	}
}

func TestSourceValidationOnlyWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Source.DSN = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled source should not be validated, got: %v", err)
	}

	cfg.Source.Enabled = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "source.dsn") {
		t.Errorf("expected source.dsn error, got: %v", err)
	}
}

func TestInvalidLogging(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("expected logging.level error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "logging.format") {
		t.Errorf("expected logging.format error, got: %v", err)
	}
}

func TestMissingSchedule(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.Schedule = ""
	cfg.Pipeline.LockDir = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "pipeline.schedule") || !strings.Contains(err.Error(), "pipeline.lock_dir") {
		t.Errorf("expected pipeline errors, got: %v", err)
	}
}

func TestValidationErrorsFormat(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Message: "first"},
		{Field: "b", Message: "second"},
	}
	want := "validation failed:\n  - a: first\n  - b: second"
	if errs.Error() != want {
		t.Errorf("unexpected format:\n%s", errs.Error())
	}
	if (ValidationErrors{}).Error() != "" {
		t.Error("expected empty string for no errors")
	}
}
