package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP:  HTTPConfig{Port: 8080},
		Store: StoreConfig{URI: "mongodb://localhost:27017", Database: "app"},
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 || cfg.HTTP.WriteTimeoutSec != 30 || cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("http defaults = %+v", cfg.HTTP)
	}
	if cfg.Schema.SampleSize != 100 {
		t.Errorf("sample size = %d", cfg.Schema.SampleSize)
	}
	if cfg.Vector.Path != "embedding" || cfg.Vector.CandidateFactor != 10 {
		t.Errorf("vector defaults = %+v", cfg.Vector)
	}
	if cfg.Correction.TreatDegenerateAsEmpty == nil || !*cfg.Correction.TreatDegenerateAsEmpty {
		t.Error("degenerate policy must default to true")
	}
}

func TestApplyDefaults_ExplicitFalseKept(t *testing.T) {
	cfg := validConfig()
	off := false
	cfg.Correction.TreatDegenerateAsEmpty = &off
	cfg.ApplyDefaults()

	if *cfg.Correction.TreatDegenerateAsEmpty {
		t.Error("explicit false must survive defaulting")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"missing uri", func(c *Config) { c.Store.URI = "" }, "store.uri"},
		{"missing database", func(c *Config) { c.Store.Database = "" }, "store.database"},
		{"correction without model", func(c *Config) { c.Correction.Enabled = true }, "correction.model"},
		{"negative dimensions", func(c *Config) { c.Vector.Dimensions = -1 }, "vector.dimensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("QG_TEST_URI", "mongodb://db:27017")

	in := []byte("uri: ${QG_TEST_URI}\nkey: ${QG_TEST_MISSING:-fallback}\nempty: ${QG_TEST_MISSING}\n")
	out := string(expandEnvVars(in))

	if !strings.Contains(out, "uri: mongodb://db:27017") {
		t.Errorf("set variable not substituted: %s", out)
	}
	if !strings.Contains(out, "key: fallback") {
		t.Errorf("default not applied: %s", out)
	}
	if !strings.Contains(out, "empty: \n") {
		t.Errorf("missing variable without default should be empty: %s", out)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("GetEnv = %q, want local", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("GetEnv = %q, want prod", got)
	}
}
