package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hayashi/prowl/internal/model"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".prowl"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .prowl configuration file.
type File struct {
	// Queries are crawled when no queries are given on the command line.
	Queries []string `yaml:"queries,omitempty"`

	// Proxies seeds the pool. Bare host:port entries get an http:// scheme.
	Proxies []string `yaml:"proxies,omitempty"`

	// Source configures the candidate provider for refills.
	Source SourceFile `yaml:"source,omitempty"`

	// Crawl overrides the crawl tuning defaults.
	Crawl CrawlFile `yaml:"crawl,omitempty"`
}

// SourceFile holds the candidate provider settings from the config file.
type SourceFile struct {
	// URL is the provider endpoint, one candidate address per line.
	URL string `yaml:"url,omitempty"`

	// RefreshTarget is how many verified proxies a refresh aims for.
	RefreshTarget int `yaml:"refreshTarget,omitempty"`

	// FetchCount is how many candidates a refresh downloads.
	FetchCount int `yaml:"fetchCount,omitempty"`
}

// CrawlFile holds crawl tuning overrides from the config file. Durations
// use Go syntax ("500ms", "16s").
type CrawlFile struct {
	Limit       int    `yaml:"limit,omitempty"`
	PageSize    int    `yaml:"pageSize,omitempty"`
	Timeout     string `yaml:"timeout,omitempty"`
	Delay       string `yaml:"delay,omitempty"`
	Retries     int    `yaml:"retries,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
	UserAgent   string `yaml:"userAgent,omitempty"`
}

// LoadConfigFile loads a .prowl YAML file. If the file does not exist, it
// returns ErrConfigNotFound; callers decide whether that matters based on
// whether the path was explicitly requested.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in order:
// 1. The explicit path, if given
// 2. .prowl in the current directory
// 3. .prowl in the XDG config directory
// 4. .prowl in the user's home directory
//
// Returns the path if found, or empty string if not.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	p := filepath.Join(XDGConfigDir(), DefaultConfigFile)
	if _, err := os.Stat(p); err == nil {
		return p
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Merge applies file values into the config. Values already set on the
// config (from flags) win; file values only fill gaps left at defaults,
// except lists, where the file contributes when the flag gave nothing.
func (c *Config) Merge(cf *File) error {
	if cf == nil {
		return nil
	}

	if len(c.Queries) == 0 {
		c.Queries = append(c.Queries, cf.Queries...)
	}
	if len(c.Proxies) == 0 {
		for _, p := range cf.Proxies {
			c.Proxies = append(c.Proxies, model.NormalizeProxyAddress(p))
		}
		c.Proxies = model.DedupeAddresses(c.Proxies)
	}
	if c.SourceURL == "" {
		c.SourceURL = cf.Source.URL
	}
	if cf.Source.RefreshTarget > 0 {
		c.RefreshTarget = cf.Source.RefreshTarget
	}
	if cf.Source.FetchCount > 0 {
		c.FetchCount = cf.Source.FetchCount
	}

	if cf.Crawl.Limit > 0 && c.Limit == DefaultLimit {
		c.Limit = cf.Crawl.Limit
	}
	if cf.Crawl.PageSize > 0 && c.PageSize == DefaultPageSize {
		c.PageSize = cf.Crawl.PageSize
	}
	if cf.Crawl.Retries > 0 && c.Retries == DefaultRetries {
		c.Retries = cf.Crawl.Retries
	}
	if cf.Crawl.Concurrency > 0 && c.Concurrency == DefaultConcurrency {
		c.Concurrency = cf.Crawl.Concurrency
	}
	if cf.Crawl.UserAgent != "" && c.UserAgent == "" {
		c.UserAgent = cf.Crawl.UserAgent
	}

	if cf.Crawl.Timeout != "" && c.Timeout == DefaultTimeout {
		d, err := time.ParseDuration(cf.Crawl.Timeout)
		if err != nil {
			return fmt.Errorf("parse crawl.timeout: %w", err)
		}
		c.Timeout = d
	}
	if cf.Crawl.Delay != "" && c.Delay == DefaultDelay {
		d, err := time.ParseDuration(cf.Crawl.Delay)
		if err != nil {
			return fmt.Errorf("parse crawl.delay: %w", err)
		}
		c.Delay = d
	}
	return nil
}
