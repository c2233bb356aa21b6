package config

import (
	"errors"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	strs := []struct {
		name, got, want string
	}{
		{"credentialsFile", cfg.CredentialsFile, "/secrets/sa.json"},
		{"source.bucket", cfg.Source.Bucket, "reviews-raw"},
		{"source.object", cfg.Source.Object, "amazon/reviews.csv"},
		{"source.format", cfg.Source.Format, FormatCSV},
		{"destination", cfg.Destination.FullTable(), "my-project.Amazon_Reviews_original_dataset_v1.Amazon_dataset_V1"},
		{"destination.location", cfg.Destination.Location, "US"},
		{"query.keyColumn", cfg.Query.KeyColumn, "parent_asin"},
		{"bias.outcomeColumn", cfg.Bias.OutcomeColumn, "rating"},
	}
	for _, s := range strs {
		if s.got != s.want {
			t.Errorf(`%s should be "%s", but "%s"`, s.name, s.want, s.got)
		}
	}

	if !reflect.DeepEqual(cfg.Query.Columns, DefaultColumns) {
		t.Errorf("query.columns should be the default columns, but %v", cfg.Query.Columns)
	}
	if cfg.Bias.MaxDisparity != 1.5 {
		t.Errorf("bias.maxDisparity should be 1.5, but %v", cfg.Bias.MaxDisparity)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("retry.maxAttempts should be 5, but %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Initial != 500*time.Millisecond {
		t.Errorf("retry.initial should be 500ms, but %s", cfg.Retry.Initial)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("timeout should be 45s, but %s", cfg.Timeout)
	}
	if !cfg.Validation.Enabled {
		t.Error("validation should be enabled")
	}

	if err := cfg.ValidateLoad(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := cfg.ValidateFetch(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SOURCE_BUCKET", "other-bucket")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/creds.json")
	t.Setenv("VALIDATION_ENABLED", "false")
	t.Setenv("PIPELINE_TIMEOUT", "10s")

	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Source.Bucket != "other-bucket" {
		t.Errorf(`source.bucket should be "other-bucket", but "%s"`, cfg.Source.Bucket)
	}
	if cfg.CredentialsFile != "/tmp/creds.json" {
		t.Errorf(`credentialsFile should be "/tmp/creds.json", but "%s"`, cfg.CredentialsFile)
	}
	if cfg.Validation.Enabled {
		t.Error("validation should be disabled")
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("timeout should be 10s, but %s", cfg.Timeout)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("VALIDATION_ENABLED", "maybe")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error but no error occurred")
	}

	var nerr *strconv.NumError
	if !errors.As(err, &nerr) {
		t.Errorf("error should wrap the parse error, but %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join("testdata", "nope.yaml")); err == nil {
		t.Error("expected error but no error occurred")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		c := Default()
		c.Source.Bucket = "b"
		c.Source.Object = "o.csv"
		c.Query.Table = "p.d.t"
		c.Destination.Project = "p"
		c.Destination.Dataset = "d"
		c.Destination.Table = "t"
		return c
	}

	if err := valid().ValidateLoad(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := valid().ValidateFetch(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	loadCases := map[string]func(*Config){
		"no bucket":       func(c *Config) { c.Source.Bucket = "" },
		"no object":       func(c *Config) { c.Source.Object = "" },
		"no project":      func(c *Config) { c.Destination.Project = "" },
		"bad dataset":     func(c *Config) { c.Destination.Dataset = "a.b" },
		"bad table":       func(c *Config) { c.Destination.Table = "" },
		"bad format":      func(c *Config) { c.Source.Format = "parquet" },
		"zero timeout":    func(c *Config) { c.Timeout = 0 },
		"no attempts":     func(c *Config) { c.Retry.MaxAttempts = 0 },
		"share above one": func(c *Config) { c.Bias.MinShare = 2 },
	}
	for name, mutate := range loadCases {
		mutate := mutate
		t.Run("load/"+name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			mutate(c)
			if err := c.ValidateLoad(); err == nil {
				t.Error("expected error but no error occurred")
			}
		})
	}

	fetchCases := map[string]func(*Config){
		"injected table":   func(c *Config) { c.Query.Table = "p.d.t` WHERE 1=1 --" },
		"two-part table":   func(c *Config) { c.Query.Table = "d.t" },
		"bad key column":   func(c *Config) { c.Query.KeyColumn = "a; DROP" },
		"bad column":       func(c *Config) { c.Query.Columns = []string{"rating", "1bad"} },
		"no columns":       func(c *Config) { c.Query.Columns = nil },
		"no query project": func(c *Config) { c.Destination.Project = "" },
	}
	for name, mutate := range fetchCases {
		mutate := mutate
		t.Run("fetch/"+name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			mutate(c)
			if err := c.ValidateFetch(); err == nil {
				t.Error("expected error but no error occurred")
			}
		})
	}
}
