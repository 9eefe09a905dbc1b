package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values. Where the underlying packages carry their
// own defaults these mirror them; the config layer is where CLI flags and
// the .prowl file land, so the full set lives here too.
const (
	// DefaultTimeout is the per-request timeout through a proxy. Free and
	// rotating proxies add substantial latency over direct connections, so
	// this is looser than a typical HTTP client default.
	DefaultTimeout = 16 * time.Second

	// DefaultLimit is the number of items to collect per query.
	DefaultLimit = 100

	// DefaultPageSize is the requested page size. The search endpoint
	// serves at most 100 entries per page.
	DefaultPageSize = 100

	// DefaultDelay is the pause between page fetches. This is politeness
	// toward the target service, kept short because every request already
	// pays proxy latency.
	DefaultDelay = 500 * time.Millisecond

	// DefaultConcurrency is the number of queries crawled simultaneously.
	// Higher values multiply pressure on the shared proxy pool.
	DefaultConcurrency = 4

	// DefaultRetries is the per-page retry budget before a crawl considers
	// refilling or stopping.
	DefaultRetries = 2

	// DefaultRefreshTarget is how many verified proxies a refresh aims for.
	DefaultRefreshTarget = 5

	// DefaultFetchCount is how many candidates a refresh downloads.
	DefaultFetchCount = 10

	// DefaultVerifyTimeout bounds a single candidate probe. Tighter than
	// the crawl timeout: a proxy that cannot answer a trivial request in
	// five seconds is not worth keeping.
	DefaultVerifyTimeout = 5 * time.Second

	// DefaultEnrichDelay is the pause between detail fetches when
	// enrichment is enabled. Detail pages are heavier than listing pages,
	// so this is longer than DefaultDelay.
	DefaultEnrichDelay = 1500 * time.Millisecond

	// DefaultMaxBodySize limits the response body size to read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// AppName is the application name used for XDG directory paths.
	AppName = "prowl"
)

// Config holds all configuration options for a crawl run.
//
// Design decision: We use a single flat struct instead of nested structs
// for simplicity. The number of options is manageable, and nesting would
// add complexity without significant benefit.
type Config struct {
	// Queries is the list of search queries to crawl. At least one is
	// required.
	Queries []string

	// Proxies is the initial proxy list, in scheme://host:port form.
	// Bare host:port entries are normalized to http://.
	Proxies []string

	// SourceURL is an optional provider endpoint serving candidate proxy
	// addresses, one per line. Enables mid-crawl pool refills and the
	// refresh command.
	SourceURL string

	// BaseURL overrides the search API base URL. Mostly useful for tests
	// and mirrors; empty means the built-in default.
	BaseURL string

	// Limit is the target number of items per query.
	Limit int

	// PageSize is the requested page size, capped by the API at 100.
	PageSize int

	// Timeout is the per-request timeout through a proxy.
	Timeout time.Duration

	// Delay is the pause between page fetches within one query.
	Delay time.Duration

	// Retries is the per-page retry budget.
	Retries int

	// Concurrency is the number of queries crawled simultaneously.
	Concurrency int

	// Enrich enables detail fetches for each collected item, including
	// nested reply trees.
	Enrich bool

	// EnrichDelay is the pause between detail fetches.
	EnrichDelay time.Duration

	// RefreshTarget is how many verified proxies a refresh aims for.
	RefreshTarget int

	// FetchCount is how many candidates a refresh downloads.
	FetchCount int

	// VerifyTimeout bounds a single candidate probe.
	VerifyTimeout time.Duration

	// Verbose enables slog.LevelDebug output.
	Verbose bool

	// JSONReport selects JSON output. Mutually exclusive with
	// MarkdownReport; with neither set, compact JSON is the default.
	JSONReport bool

	// MarkdownReport selects Markdown output.
	MarkdownReport bool

	// OutputFile writes the report to this path instead of stdout.
	OutputFile string

	// DBDir is the directory for the proxy health database. Empty
	// disables persistence.
	DBDir string

	// UserAgent overrides the User-Agent header on search requests.
	UserAgent string

	// MaxBodySize is the response body read cap in bytes. Zero means the
	// default.
	MaxBodySize int64

	// ConfigFilePath is an explicit .prowl file path. Empty triggers the
	// standard search order.
	ConfigFilePath string
}

// NewConfig creates a Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because most defaults are non-zero. This also serves as
// documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Limit:         DefaultLimit,
		PageSize:      DefaultPageSize,
		Timeout:       DefaultTimeout,
		Delay:         DefaultDelay,
		Retries:       DefaultRetries,
		Concurrency:   DefaultConcurrency,
		EnrichDelay:   DefaultEnrichDelay,
		RefreshTarget: DefaultRefreshTarget,
		FetchCount:    DefaultFetchCount,
		VerifyTimeout: DefaultVerifyTimeout,
		MaxBodySize:   DefaultMaxBodySize,
	}
}

// XDGDataDir returns the XDG data directory for prowl, used as the
// default database location.
// On Linux: ~/.local/share/prowl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for prowl.
// On Linux: ~/.config/prowl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid. It returns the first
// problem found as a sentinel error.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after flag and file merging, before any crawling.
func (c *Config) Validate() error {
	if len(c.Queries) == 0 {
		return ErrNoQuery
	}
	if len(c.Proxies) == 0 && c.SourceURL == "" {
		return ErrNoProxy
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Limit <= 0 {
		return ErrInvalidLimit
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Delay < 0 || c.EnrichDelay < 0 {
		return ErrInvalidDelay
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}
