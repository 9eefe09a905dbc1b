package crawler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hayashi/prowl/internal/model"
)

// DefaultConcurrency is the default number of simultaneously running
// query crawls.
const DefaultConcurrency = 4

// Orchestrator runs many queries as concurrent crawl tasks over one shared
// proxy pool, then merges results and computes uniqueness statistics.
//
// Design decision: We take a crawler factory rather than a prebuilt
// crawler because each task needs a fresh Crawler with its own local
// seen-set — crawls must not share dedup state while running concurrently,
// to avoid contention. Cross-query deduplication happens once, at merge
// time.
type Orchestrator struct {
	newCrawler  func() *Crawler
	concurrency int
	logger      *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithConcurrency caps the number of simultaneously running query crawls.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the orchestrator's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an Orchestrator. newCrawler is called once per
// query to build that task's crawler.
func NewOrchestrator(newCrawler func() *Crawler, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		newCrawler:  newCrawler,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// taskOutput is one finished query's result, recorded in completion order.
type taskOutput struct {
	query string
	items []model.Item
}

// Run crawls every query and returns the merged result. Individual crawls
// absorb their own failures, so the only error is context cancellation —
// and even then the merged partial results are returned alongside it.
func (o *Orchestrator) Run(ctx context.Context, queries []string) (*model.CrawlResult, error) {
	started := time.Now()
	o.logger.Info("starting crawl",
		"queries", len(queries),
		"concurrency", o.concurrency,
	)

	var (
		mu      sync.Mutex
		outputs []taskOutput
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, query := range queries {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			o.logger.Info("crawling query",
				"query", query,
				"index", i+1,
				"total", len(queries),
			)

			items := o.newCrawler().Crawl(gctx, query)

			// Completion order, not submission order: the merge is
			// defined as first-occurrence-wins across tasks as they
			// finish.
			mu.Lock()
			outputs = append(outputs, taskOutput{query: query, items: items})
			mu.Unlock()

			o.logger.Info("query finished", "query", query, "items", len(items))
			return nil
		})
	}

	err := g.Wait()

	result := o.merge(queries, outputs)
	result.StartedAt = started
	result.FinishedAt = time.Now()

	o.logger.Info("crawl finished",
		"global_unique", result.GlobalUnique(),
		"elapsed", result.FinishedAt.Sub(started).Round(time.Millisecond),
	)
	return result, err
}

// merge deduplicates across task outputs first-occurrence-wins and
// computes per-query uniqueness against raw per-query key sets.
func (o *Orchestrator) merge(queries []string, outputs []taskOutput) *model.CrawlResult {
	rawKeys := make(map[string]map[string]bool, len(outputs))

	globalSeen := make(map[string]bool)
	var merged []model.Item
	for _, out := range outputs {
		keys := make(map[string]bool, len(out.items))
		for _, item := range out.items {
			keys[item.Key] = true
			if !globalSeen[item.Key] {
				globalSeen[item.Key] = true
				merged = append(merged, item)
			}
		}
		rawKeys[out.query] = keys
	}

	// Per-query uniqueness counts keys absent from every other query's
	// raw set. Computed against raw sets, not the merged set: with
	// three-way overlaps the per-query counts need not sum to the global
	// unique total, and that asymmetry is part of the contract.
	stats := make(map[string]model.QueryStats, len(queries))
	for _, q := range queries {
		keys := rawKeys[q]
		unique := 0
		for key := range keys {
			inOther := false
			for q2, other := range rawKeys {
				if q2 != q && other[key] {
					inOther = true
					break
				}
			}
			if !inOther {
				unique++
			}
		}
		stats[q] = model.QueryStats{
			Total:         len(keys),
			UniqueToQuery: unique,
		}
	}

	return &model.CrawlResult{
		Queries: queries,
		Items:   merged,
		Stats:   stats,
	}
}
