package crawler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hayashi/prowl/internal/fetch"
	"github.com/hayashi/prowl/internal/model"
)

// Default crawl tuning values.
const (
	// MaxPageSize is the largest page the target API serves.
	MaxPageSize = 100

	// DefaultLimit is the default number of items to collect per query.
	DefaultLimit = 100

	// DefaultDelay is the pause between successful page fetches. This is
	// pacing toward the target service, not retry backoff.
	DefaultDelay = 500 * time.Millisecond

	// DefaultMaxRetries is how many times a failed page fetch is retried
	// before the crawl considers refilling or stopping.
	DefaultMaxRetries = 2

	// DefaultRetryBackoff is the fixed pause before each retry.
	DefaultRetryBackoff = time.Second

	// DefaultMaxRefills caps how many times one crawl may trigger the
	// refill collaborator after pool exhaustion.
	DefaultMaxRefills = 3

	// maxEmptyPages is the consecutive-empty-page count treated as
	// result-set exhaustion.
	maxEmptyPages = 2

	// maxStalePages is the defensive stop: this many consecutive pages
	// contributing zero new items means the source is recycling
	// duplicates.
	maxStalePages = 10
)

// PageFetcher fetches one page of results for a query. Implementations
// own proxy rotation and retry-on-proxy semantics; the crawler only sees
// one logical fetch per page.
type PageFetcher interface {
	FetchPage(ctx context.Context, query, cursor string, pageSize int) ([]model.Item, string, error)
}

// Refiller replenishes proxy capacity after pool exhaustion, typically by
// fetching and verifying fresh candidates. It returns the number of
// proxies added.
type Refiller interface {
	Refill(ctx context.Context) (int, error)
}

// crawlState names the single-query state machine states.
type crawlState int

const (
	stateRunning crawlState = iota
	stateRetrying
	stateRefilling
	stateStopped
)

// String returns the state name for logging.
func (s crawlState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateRetrying:
		return "retrying"
	case stateRefilling:
		return "refilling"
	default:
		return "stopped"
	}
}

// Crawler drives one query's pagination loop. A Crawler is single-use:
// create one per Crawl call.
type Crawler struct {
	fetcher      PageFetcher
	limit        int
	pageSize     int
	delay        time.Duration
	maxRetries   int
	retryBackoff time.Duration
	maxRefills   int
	refiller     Refiller
	seen         map[string]bool
	logger       *slog.Logger
}

// CrawlerOption configures a Crawler.
type CrawlerOption func(*Crawler)

// WithLimit sets the target number of items to collect.
func WithLimit(n int) CrawlerOption {
	return func(c *Crawler) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithPageSize sets the requested page size, clamped to MaxPageSize.
func WithPageSize(n int) CrawlerOption {
	return func(c *Crawler) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithDelay sets the inter-page delay.
func WithDelay(d time.Duration) CrawlerOption {
	return func(c *Crawler) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithRetries sets the per-page retry budget and the fixed backoff
// between retries.
func WithRetries(n int, backoff time.Duration) CrawlerOption {
	return func(c *Crawler) {
		if n >= 0 {
			c.maxRetries = n
		}
		if backoff >= 0 {
			c.retryBackoff = backoff
		}
	}
}

// WithRefiller configures the refill collaborator and its budget.
func WithRefiller(r Refiller, maxRefills int) CrawlerOption {
	return func(c *Crawler) {
		c.refiller = r
		if maxRefills >= 0 {
			c.maxRefills = maxRefills
		}
	}
}

// WithSeen injects an externally owned seen-set, letting sequential
// callers share deduplication across queries. The crawler mutates the map;
// it must not be shared across concurrently running crawls.
func WithSeen(seen map[string]bool) CrawlerOption {
	return func(c *Crawler) {
		if seen != nil {
			c.seen = seen
		}
	}
}

// WithCrawlLogger sets the crawler's logger. Defaults to slog.Default().
func WithCrawlLogger(logger *slog.Logger) CrawlerOption {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Crawler on top of the given fetcher.
func New(fetcher PageFetcher, opts ...CrawlerOption) *Crawler {
	c := &Crawler{
		fetcher:      fetcher,
		limit:        DefaultLimit,
		pageSize:     MaxPageSize,
		delay:        DefaultDelay,
		maxRetries:   DefaultMaxRetries,
		retryBackoff: DefaultRetryBackoff,
		maxRefills:   DefaultMaxRefills,
		seen:         make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pageSize > MaxPageSize {
		c.pageSize = MaxPageSize
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Crawl runs the query to a terminal state and returns the accumulated
// items. It never returns an error: every failure path ends the crawl with
// whatever was collected, which may be empty.
func (c *Crawler) Crawl(ctx context.Context, query string) []model.Item {
	var (
		results     []model.Item
		cursor      string
		page        []model.Item
		next        string
		lastErr     error
		remaining   = c.limit
		retriesLeft = c.maxRetries
		refillsLeft = c.maxRefills
		emptyStreak = 0
		staleStreak = 0
	)

	st := stateRunning
	for st != stateStopped {
		if ctx.Err() != nil {
			c.logger.Debug("crawl cancelled", "query", query, "collected", len(results))
			return results
		}

		switch st {
		case stateRunning:
			pageSize := remaining
			if pageSize > c.pageSize {
				pageSize = c.pageSize
			}

			var err error
			page, next, err = c.fetcher.FetchPage(ctx, query, cursor, pageSize)
			if err != nil {
				lastErr = err
				retriesLeft = c.maxRetries
				st = stateRetrying
				continue
			}

		case stateRetrying:
			if retriesLeft <= 0 {
				if errors.Is(lastErr, fetch.ErrPoolExhausted) && c.refiller != nil && refillsLeft > 0 {
					st = stateRefilling
					continue
				}
				c.logger.Warn("crawl giving up on page",
					"query", query,
					"collected", len(results),
					"error", lastErr,
				)
				st = stateStopped
				continue
			}
			retriesLeft--
			if !c.sleep(ctx, c.retryBackoff) {
				return results
			}

			pageSize := remaining
			if pageSize > c.pageSize {
				pageSize = c.pageSize
			}
			var err error
			page, next, err = c.fetcher.FetchPage(ctx, query, cursor, pageSize)
			if err != nil {
				lastErr = err
				continue
			}

		case stateRefilling:
			refillsLeft--
			added, err := c.refiller.Refill(ctx)
			if err != nil || added == 0 {
				c.logger.Warn("proxy refill failed",
					"query", query,
					"refills_left", refillsLeft,
					"added", added,
					"error", err,
				)
				st = stateStopped
				continue
			}
			c.logger.Info("proxy pool refilled", "query", query, "added", added)

			pageSize := remaining
			if pageSize > c.pageSize {
				pageSize = c.pageSize
			}
			var ferr error
			page, next, ferr = c.fetcher.FetchPage(ctx, query, cursor, pageSize)
			if ferr != nil {
				lastErr = ferr
				// One more pass through retrying; it may refill again
				// while budget remains.
				retriesLeft = 0
				st = stateRetrying
				continue
			}
		}

		// A page was fetched. Deduplicate, advance, evaluate stop
		// conditions in priority order.
		cursor = next

		newItems := 0
		for _, item := range page {
			if item.Key == "" || c.seen[item.Key] {
				continue
			}
			c.seen[item.Key] = true
			results = append(results, item)
			newItems++
		}
		remaining -= newItems

		if len(page) == 0 {
			emptyStreak++
		} else {
			emptyStreak = 0
		}
		if newItems == 0 {
			staleStreak++
		} else {
			staleStreak = 0
		}

		switch {
		case next == "":
			c.logger.Debug("crawl reached end of result set", "query", query, "collected", len(results))
			st = stateStopped
		case emptyStreak >= maxEmptyPages:
			c.logger.Debug("crawl stopping after consecutive empty pages", "query", query, "collected", len(results))
			st = stateStopped
		case remaining <= 0:
			c.logger.Debug("crawl reached target", "query", query, "collected", len(results))
			st = stateStopped
		case staleStreak >= maxStalePages:
			c.logger.Debug("crawl stopping on duplicate-heavy source", "query", query, "collected", len(results))
			st = stateStopped
		default:
			st = stateRunning
			if !c.sleep(ctx, c.delay) {
				return results
			}
		}
	}

	return results
}

// sleep pauses for d unless the context ends first. It reports whether the
// caller should keep going.
func (c *Crawler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
