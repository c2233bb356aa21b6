// Package config loads pipeline settings from a YAML file and the
// environment. Settings are read once at process start.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

const (
	FormatCSV = "csv"
	FormatXLS = "xls"
)

var (
	tableRE  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*\.[A-Za-z0-9_]+\.[A-Za-z0-9_]+$`)
	columnRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	idRE     = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// DefaultColumns are the review columns read by key.
var DefaultColumns = []string{
	"parent_asin", "rating", "title", "text", "asin", "user_id", "timestamp",
	"helpful_vote", "verified_purchase", "Category", "seller_id",
	"sentiment_label", "sentiment_score",
}

type Config struct {
	CredentialsFile string            `yaml:"credentialsFile"`
	Source          SourceConfig      `yaml:"source"`
	Query           QueryConfig       `yaml:"query"`
	Destination     DestinationConfig `yaml:"destination"`
	Validation      ValidationConfig  `yaml:"validation"`
	Bias            BiasConfig        `yaml:"bias"`
	Notify          NotifyConfig      `yaml:"notify"`
	Metrics         MetricsConfig     `yaml:"metrics"`
	Retry           RetryConfig       `yaml:"retry"`
	Log             LogConfig         `yaml:"log"`

	// Timeout bounds each network call; JobTimeout bounds waiting for a
	// load job.
	Timeout    time.Duration `yaml:"timeout"`
	JobTimeout time.Duration `yaml:"jobTimeout"`
}

type SourceConfig struct {
	Bucket   string `yaml:"bucket"`
	Object   string `yaml:"object"`
	Format   string `yaml:"format"`
	Encoding string `yaml:"encoding"`
}

type QueryConfig struct {
	Project   string   `yaml:"project"`
	Table     string   `yaml:"table"`
	KeyColumn string   `yaml:"keyColumn"`
	Columns   []string `yaml:"columns"`
}

type DestinationConfig struct {
	Project  string `yaml:"project"`
	Dataset  string `yaml:"dataset"`
	Table    string `yaml:"table"`
	Location string `yaml:"location"`
}

// FullTable returns project.dataset.table.
func (d DestinationConfig) FullTable() string {
	return fmt.Sprintf("%s.%s.%s", d.Project, d.Dataset, d.Table)
}

type ValidationConfig struct {
	Enabled           bool   `yaml:"enabled"`
	SchemaFile        string `yaml:"schemaFile"`
	VisualizationPath string `yaml:"visualizationPath"`
}

type BiasConfig struct {
	Enabled       bool    `yaml:"enabled"`
	GroupColumn   string  `yaml:"groupColumn"`
	OutcomeColumn string  `yaml:"outcomeColumn"`
	MaxDisparity  float64 `yaml:"maxDisparity"`
	MinShare      float64 `yaml:"minShare"`
}

type NotifyConfig struct {
	SlackToken   string `yaml:"slackToken"`
	SlackChannel string `yaml:"slackChannel"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayURL"`
	Job            string `yaml:"job"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Initial     time.Duration `yaml:"initial"`
	Max         time.Duration `yaml:"max"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a configuration with every optional field set.
func Default() *Config {
	return &Config{
		Source: SourceConfig{Format: FormatCSV},
		Query: QueryConfig{
			KeyColumn: "parent_asin",
			Columns:   append([]string{}, DefaultColumns...),
		},
		Destination: DestinationConfig{Location: "US"},
		Validation: ValidationConfig{
			Enabled:           true,
			VisualizationPath: "visualization.png",
		},
		Bias: BiasConfig{
			Enabled:       true,
			GroupColumn:   "Category",
			OutcomeColumn: "rating",
			MaxDisparity:  1.0,
			MinShare:      0.01,
		},
		Metrics:    MetricsConfig{Job: "reviewloader"},
		Retry:      RetryConfig{MaxAttempts: 3, Initial: time.Second, Max: 30 * time.Second},
		Log:        LogConfig{Level: "info"},
		Timeout:    2 * time.Minute,
		JobTimeout: 10 * time.Minute,
	}
}

// Load reads the YAML file at path, when given, over the defaults and then
// applies environment overrides. It does not validate; call Validate for
// the operation at hand.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, xerrors.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"GOOGLE_APPLICATION_CREDENTIALS": &c.CredentialsFile,
		"SOURCE_BUCKET":                  &c.Source.Bucket,
		"SOURCE_OBJECT":                  &c.Source.Object,
		"SOURCE_FORMAT":                  &c.Source.Format,
		"SOURCE_ENCODING":                &c.Source.Encoding,
		"QUERY_TABLE":                    &c.Query.Table,
		"BIGQUERY_PROJECT_ID":            &c.Destination.Project,
		"BIGQUERY_DATASET_ID":            &c.Destination.Dataset,
		"BIGQUERY_TABLE_ID":              &c.Destination.Table,
		"BIGQUERY_LOCATION":              &c.Destination.Location,
		"SLACK_TOKEN":                    &c.Notify.SlackToken,
		"SLACK_CHANNEL":                  &c.Notify.SlackChannel,
		"PUSHGATEWAY_URL":                &c.Metrics.PushgatewayURL,
		"LOG_LEVEL":                      &c.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("VALIDATION_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return xerrors.Errorf("failed to parse VALIDATION_ENABLED: %w", err)
		}
		c.Validation.Enabled = b
	}

	if v, ok := lookup("PIPELINE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return xerrors.Errorf("failed to parse PIPELINE_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}

	return nil
}

// QueryProject is the project billed for key queries.
func (c *Config) QueryProject() string {
	if c.Query.Project != "" {
		return c.Query.Project
	}
	return c.Destination.Project
}

// ValidateLoad checks the settings needed to load a blob into BigQuery.
func (c *Config) ValidateLoad() error {
	if c.Source.Bucket == "" {
		return xerrors.New("source.bucket is required")
	}
	if c.Source.Object == "" {
		return xerrors.New("source.object is required")
	}
	return c.ValidateWrite()
}

// ValidateWrite checks the settings needed to ensure the destination
// dataset and append to its table.
func (c *Config) ValidateWrite() error {
	if err := c.validateDestination(); err != nil {
		return err
	}
	return c.validateCommon()
}

// ValidateFetch checks the settings needed to read reviews by key.
func (c *Config) ValidateFetch() error {
	if !tableRE.MatchString(c.Query.Table) {
		return xerrors.Errorf("query.table must be project.dataset.table, got %q", c.Query.Table)
	}
	if c.QueryProject() == "" {
		return xerrors.New("query.project or destination.project is required")
	}
	if !columnRE.MatchString(c.Query.KeyColumn) {
		return xerrors.Errorf("query.keyColumn %q is not a column name", c.Query.KeyColumn)
	}
	if len(c.Query.Columns) == 0 {
		return xerrors.New("at least one query column is required")
	}
	for _, col := range c.Query.Columns {
		if !columnRE.MatchString(col) {
			return xerrors.Errorf("query column %q is not a column name", col)
		}
	}
	return c.validateCommon()
}

func (c *Config) validateDestination() error {
	if c.Destination.Project == "" {
		return xerrors.New("destination.project is required")
	}
	if !idRE.MatchString(c.Destination.Dataset) {
		return xerrors.Errorf("destination.dataset %q is invalid", c.Destination.Dataset)
	}
	if !idRE.MatchString(c.Destination.Table) {
		return xerrors.Errorf("destination.table %q is invalid", c.Destination.Table)
	}
	if c.Destination.Location == "" {
		return xerrors.New("destination.location is required")
	}
	return nil
}

func (c *Config) validateCommon() error {
	switch c.Source.Format {
	case FormatCSV, FormatXLS:
	default:
		return xerrors.Errorf("source.format must be %s or %s", FormatCSV, FormatXLS)
	}
	if c.Timeout <= 0 {
		return xerrors.New("timeout must be positive")
	}
	if c.JobTimeout <= 0 {
		return xerrors.New("jobTimeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return xerrors.New("retry.maxAttempts must be at least 1")
	}
	if c.Bias.MinShare < 0 || c.Bias.MinShare > 1 {
		return xerrors.New("bias.minShare must be between 0 and 1")
	}
	return nil
}
