package wikigraph

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config drives the wikimap tool.
type Config struct {
	Language  string `yaml:"language"`
	Date      string `yaml:"date"`
	Directory string `yaml:"directory"`

	Download struct {
		Concurrency int           `yaml:"concurrency"`
		Attempts    int           `yaml:"attempts"`
		RetryDelay  time.Duration `yaml:"retry_delay"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"download"`

	Parse struct {
		CountLines  bool  `yaml:"count_lines"`
		ReportEvery int64 `yaml:"report_every"`
	} `yaml:"parse"`

	Sanity struct {
		Endpoint          string  `yaml:"endpoint"`
		Mode              string  `yaml:"mode"`
		Fraction          float64 `yaml:"fraction"`
		Seed              int64   `yaml:"seed"`
		PageSize          int     `yaml:"page_size"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		UserAgent         string  `yaml:"user_agent"`
	} `yaml:"sanity"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() *Config {
	c := &Config{Language: "en", Date: "latest"}
	c.Download.Concurrency = DefaultConcurrency
	c.Download.Attempts = DefaultAttempts
	c.Download.RetryDelay = DefaultRetryDelay
	c.Download.Timeout = DefaultRequestTimeout
	c.Parse.ReportEvery = 1000
	c.Sanity.Mode = string(SampleNodes)
	c.Sanity.Fraction = 0.001
	c.Sanity.Seed = 1
	c.Sanity.PageSize = DefaultPageSize
	c.Sanity.UserAgent = DefaultUserAgent
	return c
}

// LoadConfig loads .env if there is one, then the YAML file at path
// over the defaults (an empty path skips the file), then WIKIGRAPH_*
// environment variables.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config %s", path)
		}
	}

	if v := os.Getenv("WIKIGRAPH_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv("WIKIGRAPH_DATE"); v != "" {
		cfg.Date = v
	}
	if v := os.Getenv("WIKIGRAPH_DIRECTORY"); v != "" {
		cfg.Directory = v
	}
	if v := os.Getenv("WIKIGRAPH_API_ENDPOINT"); v != "" {
		cfg.Sanity.Endpoint = v
	}
	if v := os.Getenv("WIKIGRAPH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidArgument, "WIKIGRAPH_CONCURRENCY")
		}
		cfg.Download.Concurrency = n
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Language == "" {
		return errors.Wrap(ErrInvalidArgument, "language is required")
	}
	if c.Sanity.Fraction <= 0 || c.Sanity.Fraction > 1 {
		return errors.Wrapf(ErrInvalidArgument, "sanity fraction %v not in (0, 1]", c.Sanity.Fraction)
	}
	if _, err := ParseSampleMode(c.Sanity.Mode); err != nil {
		return err
	}
	return nil
}

// DataDirectory is where dumps for this config are kept.
func (c *Config) DataDirectory() string {
	if c.Directory != "" {
		return c.Directory
	}
	return "data/" + c.Language + "/" + c.Date
}

// APIEndpoint is the MediaWiki API the sanity check talks to.
func (c *Config) APIEndpoint() string {
	if c.Sanity.Endpoint != "" {
		return c.Sanity.Endpoint
	}
	return APIEndpoint(c.Language)
}
