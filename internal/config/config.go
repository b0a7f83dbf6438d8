package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joeshaw/envdecode"
	"github.com/pkg/errors"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"

	"github.com/harperdean/rocklens/internal/collector"
	"github.com/harperdean/rocklens/internal/diag"
)

const configFileName = "config.yaml"

var configDirFunc = configDir

// ValidationError marks a configuration the pipeline must refuse before any
// analysis begins.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Collect  CollectConfig  `yaml:"collect"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Report   ReportConfig   `yaml:"report"`
	Schema   SchemaConfig   `yaml:"schema"`
}

type SourceConfig struct {
	Driver   string `yaml:"driver" env:"ROCKLENS_DRIVER"`
	Host     string `yaml:"host" env:"ROCKLENS_HOST"`
	Port     int    `yaml:"port" env:"ROCKLENS_PORT"`
	User     string `yaml:"user" env:"ROCKLENS_USER"`
	Password string `yaml:"password" env:"ROCKLENS_PASSWORD"`
	Database string `yaml:"database" env:"ROCKLENS_DATABASE"`
}

type CollectConfig struct {
	TimeRangeHours int     `yaml:"time_range_hours"`
	MinExecTime    float64 `yaml:"min_execution_time"`
	Database       string  `yaml:"database"`
	User           string  `yaml:"user"`
	Pattern        string  `yaml:"pattern"`
	Limit          int     `yaml:"limit"`
	WithPlans      bool    `yaml:"with_plans"`
}

type AnalysisConfig struct {
	SlowThreshold     float64  `yaml:"slow_query_threshold"`
	VerySlowThreshold float64  `yaml:"very_slow_query_threshold"`
	CriticalThreshold float64  `yaml:"critical_query_threshold"`
	MaxScanRows       int64    `yaml:"max_scan_rows"`
	MaxScanBytes      int64    `yaml:"max_scan_bytes"`
	MaxMemoryBytes    int64    `yaml:"max_memory_bytes"`
	SuggestIndexes    bool     `yaml:"suggest_indexes"`
	Workers           int      `yaml:"workers"`
	GroupTimeBudget   Duration `yaml:"group_time_budget"`
}

type ReportConfig struct {
	Dir    string `yaml:"report_dir"`
	Format string `yaml:"report_format"`
}

type SchemaConfig struct {
	// PartitionedTables maps table name to partition column.
	PartitionedTables map[string]string `yaml:"partitioned_tables"`
	LargeTables       []string          `yaml:"large_tables"`
}

func Default() *Config {
	t := diag.DefaultThresholds()
	return &Config{
		Source: SourceConfig{
			Driver:   "starrocks",
			Host:     "127.0.0.1",
			Port:     9030,
			User:     "root",
			Database: "information_schema",
		},
		Collect: CollectConfig{
			TimeRangeHours: 24,
			MinExecTime:    t.SlowSeconds,
			Limit:          collector.DefaultLimit,
		},
		Analysis: AnalysisConfig{
			SlowThreshold:     t.SlowSeconds,
			VerySlowThreshold: t.VerySlowSeconds,
			CriticalThreshold: t.CriticalSeconds,
			MaxScanRows:       t.MaxScanRows,
			MaxScanBytes:      t.MaxScanBytes,
			MaxMemoryBytes:    t.MaxMemoryBytes,
			SuggestIndexes:    true,
		},
		Report: ReportConfig{
			Dir:    "./reports",
			Format: "html",
		},
	}
}

// Load reads the config file at path, falling back to the default location
// and then to built-in defaults when no file exists. Environment variables
// (optionally from a .env file) override source connection settings.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		var err error
		path, err = defaultPath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config %s", path)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file is fine; defaults plus env cover it.
	default:
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	_ = gotenv.Load()
	if err := envdecode.Decode(&cfg.Source); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, errors.Wrap(err, "decoding environment overrides")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Source.Driver {
	case "starrocks", "doris", "clickhouse":
	default:
		return &ValidationError{Field: "source.driver", Reason: fmt.Sprintf("unknown driver %q", c.Source.Driver)}
	}

	a := c.Analysis
	if a.SlowThreshold <= 0 || a.VerySlowThreshold <= 0 || a.CriticalThreshold <= 0 {
		return &ValidationError{Field: "analysis", Reason: "thresholds must be positive"}
	}
	if !(a.SlowThreshold < a.VerySlowThreshold && a.VerySlowThreshold < a.CriticalThreshold) {
		return &ValidationError{Field: "analysis", Reason: "thresholds must ascend: slow < very_slow < critical"}
	}
	if a.MaxScanRows < 0 || a.MaxScanBytes < 0 || a.MaxMemoryBytes < 0 {
		return &ValidationError{Field: "analysis", Reason: "scan and memory caps cannot be negative"}
	}

	switch c.Report.Format {
	case "", "text", "json", "markdown", "html":
	default:
		return &ValidationError{Field: "report.report_format", Reason: fmt.Sprintf("unknown format %q", c.Report.Format)}
	}
	return nil
}

// Thresholds builds the bundle the diagnostic core consumes.
func (c *Config) Thresholds() diag.Thresholds {
	return diag.Thresholds{
		SlowSeconds:     c.Analysis.SlowThreshold,
		VerySlowSeconds: c.Analysis.VerySlowThreshold,
		CriticalSeconds: c.Analysis.CriticalThreshold,
		MaxScanRows:     c.Analysis.MaxScanRows,
		MaxScanBytes:    c.Analysis.MaxScanBytes,
		MaxMemoryBytes:  c.Analysis.MaxMemoryBytes,
		SuggestIndexes:  c.Analysis.SuggestIndexes,
	}
}

// SchemaMeta returns schema metadata for the rules that want it, or nil when
// the config carries none.
func (c *Config) SchemaMeta() *diag.Schema {
	if len(c.Schema.PartitionedTables) == 0 && len(c.Schema.LargeTables) == 0 {
		return nil
	}
	schema := &diag.Schema{
		PartitionedTables: c.Schema.PartitionedTables,
	}
	if len(c.Schema.LargeTables) > 0 {
		schema.LargeTables = make(map[string]bool, len(c.Schema.LargeTables))
		for _, t := range c.Schema.LargeTables {
			schema.LargeTables[t] = true
		}
	}
	return schema
}

func (c *Config) ConnConfig() collector.ConnConfig {
	return collector.ConnConfig{
		Host:     c.Source.Host,
		Port:     c.Source.Port,
		User:     c.Source.User,
		Password: c.Source.Password,
		Database: c.Source.Database,
	}
}

// WriteDefault creates the config file with defaults, refusing to clobber an
// existing file unless force is set. Returns the written path.
func WriteDefault(path string, force bool) (string, error) {
	if path == "" {
		var err error
		path, err = defaultPath()
		if err != nil {
			return "", err
		}
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", errors.Errorf("config %s already exists (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", errors.Wrap(err, "creating config directory")
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", errors.Wrap(err, "marshaling default config")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", errors.Wrapf(err, "writing config %s", path)
	}
	return path, nil
}

func defaultPath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

func configDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "finding config directory")
	}
	return filepath.Join(base, "rocklens"), nil
}
