package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hayashi/prowl/internal/config"
	"github.com/hayashi/prowl/internal/crawler"
	"github.com/hayashi/prowl/internal/database"
	"github.com/hayashi/prowl/internal/fetch"
	"github.com/hayashi/prowl/internal/log"
	"github.com/hayashi/prowl/internal/model"
	"github.com/hayashi/prowl/internal/proxypool"
	"github.com/hayashi/prowl/internal/report"
	"github.com/hayashi/prowl/internal/searchapi"
	"github.com/hayashi/prowl/internal/source"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [query...]",
		Short: "Crawl search results for one or more queries",
		Long: `Crawl fetches search results for each query through a rotating proxy
pool, deduplicates them across queries, and writes the merged result.

Proxies that fail cool down with exponential backoff; proxies that are
structurally rejected (authentication required, banned, gone) are retired
for good. When a candidate source URL is configured, an exhausted pool is
refilled mid-crawl with freshly verified proxies.

Examples:
  # Crawl one query through two proxies
  prowl crawl --proxy http://10.0.0.1:8080 --proxy socks5://10.0.0.2:1080 golang

  # Crawl several queries concurrently, 200 items each
  prowl crawl --limit 200 golang rustlang ziglang

  # Pull queries and proxies from a .prowl config file
  prowl crawl

  # Markdown report with item details and reply trees
  prowl crawl --markdown --enrich --output report.md golang

Configuration file (.prowl) example:
  queries:
    - golang
  proxies:
    - 10.0.0.1:8080
  source:
    url: https://provider.example.com/proxies.txt`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Proxy pool flags
	cmd.Flags().StringSliceP("proxy", "p", nil,
		"Proxy address (repeatable; scheme://host:port, bare host:port implies http)")
	cmd.Flags().StringP("source", "s", "",
		"Candidate source URL for proxy refills (one address per line)")

	// Crawl behavior flags
	cmd.Flags().IntP("limit", "l", config.DefaultLimit,
		"Number of items to collect per query")
	cmd.Flags().Int("page-size", config.DefaultPageSize,
		"Requested page size (capped at 100 by the API)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Per-request timeout through a proxy")
	cmd.Flags().Duration("delay", config.DefaultDelay,
		"Pause between page fetches within one query")
	cmd.Flags().Int("retries", config.DefaultRetries,
		"Per-page retry budget before refilling or stopping")
	cmd.Flags().IntP("concurrency", "C", config.DefaultConcurrency,
		"Number of queries crawled simultaneously")
	cmd.Flags().String("user-agent", "",
		"Override the User-Agent header")
	cmd.Flags().String("base-url", "",
		"Override the search API base URL")

	// Enrichment flags
	cmd.Flags().BoolP("enrich", "e", false,
		"Fetch each item's detail view including nested reply trees")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .prowl in current, XDG config, or home directory)")

	// Persistence flags
	cmd.Flags().Bool("no-db", false,
		"Disable the proxy health database")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Graceful shutdown on interrupt: partial results are still written.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runCrawl(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the optional
// .prowl file. Flags win over file values.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Queries = args
	cfg.Verbose = getVerboseFlag(cmd)

	var err error

	proxies, err := cmd.Flags().GetStringSlice("proxy")
	if err != nil {
		return nil, err
	}
	for _, p := range proxies {
		cfg.Proxies = append(cfg.Proxies, model.NormalizeProxyAddress(p))
	}
	cfg.Proxies = model.DedupeAddresses(cfg.Proxies)

	if cfg.SourceURL, err = cmd.Flags().GetString("source"); err != nil {
		return nil, err
	}
	if cfg.Limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return nil, err
	}
	if cfg.PageSize, err = cmd.Flags().GetInt("page-size"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = cmd.Flags().GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.Retries, err = cmd.Flags().GetInt("retries"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = cmd.Flags().GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = cmd.Flags().GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.BaseURL, err = cmd.Flags().GetString("base-url"); err != nil {
		return nil, err
	}
	if cfg.Enrich, err = cmd.Flags().GetBool("enrich"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.OutputFile, err = cmd.Flags().GetString("output"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = cmd.Flags().GetString("config"); err != nil {
		return nil, err
	}

	noDB, err := cmd.Flags().GetBool("no-db")
	if err != nil {
		return nil, err
	}
	if !noDB {
		cfg.DBDir = config.XDGDataDir()
	}

	// Load the .prowl file. An explicitly requested file must exist; the
	// implicit search is allowed to come up empty.
	explicit := cfg.ConfigFilePath != ""
	if path := config.FindConfigFile(cfg.ConfigFilePath); path != "" {
		cf, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		if err := cfg.Merge(cf); err != nil {
			return nil, err
		}
	} else if explicit {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	return cfg, nil
}

// runCrawl wires the pool, executor, crawler and report layers together
// and executes the crawl.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Proxy health database. Prior metadata seeds the pool; the pool's
	// observation hooks stream state changes back.
	var db *database.ProxyDB
	if cfg.DBDir != "" {
		var err error
		db, err = database.Open(cfg.DBDir, databaseOptions(logger))
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Debug("database opened", "dir", cfg.DBDir)
	}

	addrs := cfg.Proxies
	poolOpts := []proxypool.Option{proxypool.WithLogger(logger)}
	if db != nil {
		known, err := db.LoadAddresses(ctx)
		if err != nil {
			return fmt.Errorf("failed to load stored proxies: %w", err)
		}
		addrs = model.DedupeAddresses(append(addrs, known...))

		meta, err := db.LoadMeta(ctx)
		if err != nil {
			return fmt.Errorf("failed to load proxy metadata: %w", err)
		}
		poolOpts = append(poolOpts,
			proxypool.WithMeta(meta),
			proxypool.WithObserver(db),
		)
	}
	pool := proxypool.New(addrs, poolOpts...)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = searchapi.DefaultBaseURL
	}
	client := searchapi.NewClient(baseURL,
		searchapi.WithUserAgent(cfg.UserAgent),
		searchapi.WithTimeout(cfg.Timeout),
		searchapi.WithMaxBodySize(cfg.MaxBodySize),
	)
	exec := fetch.NewExecutor(pool,
		fetch.WithAttemptTimeout(cfg.Timeout),
		fetch.WithLogger(logger),
	)
	fetcher := searchapi.NewFetcher(client, exec)

	var refresher *source.Refresher
	if cfg.SourceURL != "" {
		refreshOpts := []source.RefresherOption{
			source.WithRefreshTarget(cfg.RefreshTarget),
			source.WithFetchCount(cfg.FetchCount),
			source.WithRefreshLogger(logger),
		}
		if db != nil {
			refreshOpts = append(refreshOpts, source.WithStore(db))
		}
		refresher = source.NewRefresher(
			source.NewHTTPSource(cfg.SourceURL),
			source.NewVerifier(
				source.WithTestURL(baseURL+"/robots.txt"),
				source.WithVerifyTimeout(cfg.VerifyTimeout),
				source.WithVerifyLogger(logger),
			),
			pool,
			refreshOpts...,
		)
	}

	// With no seed proxies the pool must be filled before crawling.
	if pool.GoodCount() == 0 {
		if refresher == nil {
			return errors.New("no usable proxies and no source URL to fetch them from")
		}
		added, err := refresher.Refill(ctx)
		if err != nil {
			return fmt.Errorf("initial proxy refresh failed: %w", err)
		}
		if added == 0 {
			return errors.New("initial proxy refresh found no working proxies")
		}
	}

	newCrawler := func() *crawler.Crawler {
		opts := []crawler.CrawlerOption{
			crawler.WithLimit(cfg.Limit),
			crawler.WithPageSize(cfg.PageSize),
			crawler.WithDelay(cfg.Delay),
			crawler.WithRetries(cfg.Retries, crawler.DefaultRetryBackoff),
			crawler.WithCrawlLogger(logger),
		}
		if refresher != nil {
			opts = append(opts, crawler.WithRefiller(refresher, crawler.DefaultMaxRefills))
		}
		return crawler.New(fetcher, opts...)
	}

	orch := crawler.NewOrchestrator(newCrawler,
		crawler.WithConcurrency(cfg.Concurrency),
		crawler.WithLogger(logger),
	)

	result, runErr := orch.Run(ctx, cfg.Queries)
	result.Pool = pool.Stats()

	if cfg.Enrich && len(result.Items) > 0 {
		result.Items = enrichItems(ctx, fetcher, result.Items, cfg.EnrichDelay, logger)
	}

	if err := writeReport(cfg, result); err != nil {
		return err
	}
	// The report is written even for a cancelled run; partial results are
	// part of the contract.
	return runErr
}

// databaseOptions builds ProxyDB options with the shared logger.
func databaseOptions(logger *slog.Logger) database.Options {
	opts := database.DefaultOptions()
	opts.Logger = logger
	return opts
}

// enrichedItem is an item payload with its fetched detail attached.
type enrichedItem struct {
	Post   json.RawMessage   `json:"post"`
	Detail *searchapi.Detail `json:"detail,omitempty"`
}

// itemPermalink is the slice of the payload needed to locate its detail view.
type itemPermalink struct {
	Permalink string `json:"permalink"`
}

// enrichItems fetches each item's detail view and wraps the payload with
// it. Items whose detail cannot be fetched keep their original payload;
// enrichment failures never discard collected results.
func enrichItems(ctx context.Context, fetcher *searchapi.Fetcher, items []model.Item, delay time.Duration, logger *slog.Logger) []model.Item {
	logger.Info("enriching items with details", "items", len(items))

	out := make([]model.Item, 0, len(items))
	for i, item := range items {
		if ctx.Err() != nil {
			out = append(out, items[i:]...)
			break
		}

		var link itemPermalink
		if err := json.Unmarshal(item.Payload, &link); err != nil || link.Permalink == "" {
			out = append(out, item)
			continue
		}

		detail, err := fetcher.FetchDetail(ctx, link.Permalink)
		if err != nil {
			logger.Warn("detail fetch failed", "key", item.Key, "error", err)
			out = append(out, item)
			if errors.Is(err, fetch.ErrPoolExhausted) {
				out = append(out, items[i+1:]...)
				break
			}
			continue
		}

		wrapped, err := json.Marshal(enrichedItem{Post: item.Payload, Detail: detail})
		if err != nil {
			out = append(out, item)
			continue
		}
		out = append(out, model.Item{Key: item.Key, Payload: wrapped})

		if i < len(items)-1 && delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}
	return out
}

// writeReport writes the result to the configured destination and format.
func writeReport(cfg *config.Config, result *model.CrawlResult) error {
	out := io.Writer(os.Stdout)
	if cfg.OutputFile != "" {
		if dir := filepath.Dir(cfg.OutputFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		f, err := os.Create(cfg.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var w report.Writer
	if cfg.MarkdownReport {
		w = report.NewMarkdownWriter(out)
	} else {
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	}
	if _, err := w.Write(result); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
