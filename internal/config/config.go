// Package config loads pipeline settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidDateRange is returned when the date dimension ends before it starts.
var ErrInvalidDateRange = errors.New("date dimension end is before start")

const dateLayout = "2006-01-02"

// Config is the full pipeline configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Generator     GeneratorConfig     `mapstructure:"generator"`
	Rates         RatesConfig         `mapstructure:"rates"`
	DateDimension DateDimensionConfig `mapstructure:"date_dimension"`
	Source        SourceConfig        `mapstructure:"source"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	BigQuery      BigQueryConfig      `mapstructure:"bigquery"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Log           LogConfig           `mapstructure:"log"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Env     string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

type GeneratorConfig struct {
	NumCustomers    int    `mapstructure:"num_customers"`
	NumTransactions int    `mapstructure:"num_transactions"`
	NumBranches     int    `mapstructure:"num_branches"`
	Seed            uint64 `mapstructure:"seed"`
	Locale          string `mapstructure:"locale"`
}

type RatesConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DateDimensionConfig bounds dim_date. End is optional; an empty value means
// December 31 of the processing year.
type DateDimensionConfig struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// SourceConfig selects where the raw dataset comes from: "generate" or "csv".
type SourceConfig struct {
	Kind   string `mapstructure:"kind"`
	CSVURI string `mapstructure:"csv_uri"`
}

// ArchiveConfig enables CSV archiving of staged tables when Bucket is set.
type ArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

type BigQueryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Dataset   string `mapstructure:"dataset"`
}

// MetricsConfig enables a Pushgateway push at the end of a run when
// PushgatewayURL is set.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Source kinds.
const (
	SourceGenerate = "generate"
	SourceCSV      = "csv"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Banking Analytics Pipeline")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.env", "dev")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "trst_db")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)

	v.SetDefault("generator.num_customers", 1000)
	v.SetDefault("generator.num_transactions", 10000)
	v.SetDefault("generator.num_branches", 50)
	v.SetDefault("generator.seed", 42)
	v.SetDefault("generator.locale", "ru_RU")

	v.SetDefault("rates.url", "https://www.cbr-xml-daily.ru/daily_json.js")
	v.SetDefault("rates.timeout", 10*time.Second)

	v.SetDefault("date_dimension.start", "2023-01-01")
	v.SetDefault("date_dimension.end", "")

	v.SetDefault("source.kind", SourceGenerate)
	v.SetDefault("source.csv_uri", "")

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "staging")

	v.SetDefault("bigquery.enabled", false)
	v.SetDefault("bigquery.project_id", "")
	v.SetDefault("bigquery.dataset", "banking_dwh")

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "banking_etl")

	v.SetDefault("log.level", "info")
}

// Load reads configuration. When path is empty, config.yaml is looked up in
// ./config and the working directory; a missing file is not an error.
// Environment variables override both, with "." in keys replaced by "_"
// (DATABASE_HOST overrides database.host).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Load: reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("Load: decoding config: %w", err)
	}

	if isDevelopment(cfg.App.Env) {
		if !explicit(v, "generator.num_customers") {
			cfg.Generator.NumCustomers = 100
		}
		if !explicit(v, "generator.num_transactions") {
			cfg.Generator.NumTransactions = 1000
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// explicit reports whether key was set by the config file or environment
// rather than by a default.
func explicit(v *viper.Viper, key string) bool {
	if v.InConfig(key) {
		return true
	}
	_, ok := os.LookupEnv(strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	return ok
}

func isDevelopment(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development":
		return true
	}
	return false
}

// Validate checks generator volumes and the date-dimension range.
func (c *Config) Validate() error {
	if c.Generator.NumCustomers <= 0 || c.Generator.NumTransactions <= 0 || c.Generator.NumBranches < 0 {
		return fmt.Errorf("Validate: generator volumes out of range (customers=%d transactions=%d branches=%d)",
			c.Generator.NumCustomers, c.Generator.NumTransactions, c.Generator.NumBranches)
	}
	switch c.Source.Kind {
	case SourceGenerate:
	case SourceCSV:
		if c.Source.CSVURI == "" {
			return errors.New("Validate: source.csv_uri is required for csv source")
		}
	default:
		return fmt.Errorf("Validate: unknown source kind %q", c.Source.Kind)
	}
	start, err := c.DateDimension.StartDate()
	if err != nil {
		return err
	}
	if c.DateDimension.End != "" {
		end, err := c.DateDimension.EndDate(start)
		if err != nil {
			return err
		}
		if end.Before(start) {
			return fmt.Errorf("Validate: %s..%s: %w", c.DateDimension.Start, c.DateDimension.End, ErrInvalidDateRange)
		}
	}
	return nil
}

// StartDate parses the configured first day of dim_date.
func (d DateDimensionConfig) StartDate() (time.Time, error) {
	t, err := time.Parse(dateLayout, d.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("StartDate: parsing %q: %w", d.Start, err)
	}
	return t, nil
}

// EndDate parses the configured last day of dim_date, or returns December 31
// of now's year when none is configured.
func (d DateDimensionConfig) EndDate(now time.Time) (time.Time, error) {
	if d.End == "" {
		return time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(dateLayout, d.End)
	if err != nil {
		return time.Time{}, fmt.Errorf("EndDate: parsing %q: %w", d.End, err)
	}
	return t, nil
}

// DSN builds the Postgres connection URL.
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Name,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
