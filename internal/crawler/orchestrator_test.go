package crawler

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/hayashi/prowl/internal/model"
)

// trackingFetcher serves fixed item sets per query and records the peak
// number of in-flight FetchPage calls.
type trackingFetcher struct {
	mu       sync.Mutex
	byQuery  map[string][]string
	inFlight int
	peak     int
	started  chan struct{}
	release  chan struct{}
}

func (f *trackingFetcher) FetchPage(ctx context.Context, query, _ string, _ int) ([]model.Item, string, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	keys := f.byQuery[query]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	items := make([]model.Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, model.Item{Key: k, Payload: []byte(`{}`)})
	}
	return items, "", nil
}

func TestOrchestratorRun(t *testing.T) {
	t.Parallel()

	t.Run("overlapping queries merge with first-occurrence-wins", func(t *testing.T) {
		t.Parallel()

		// Two queries with ten items each, three of them shared.
		queryA := []string{"s1", "s2", "s3", "a1", "a2", "a3", "a4", "a5", "a6", "a7"}
		queryB := []string{"s1", "s2", "s3", "b1", "b2", "b3", "b4", "b5", "b6", "b7"}
		f := &trackingFetcher{byQuery: map[string][]string{
			"alpha": queryA,
			"beta":  queryB,
		}}

		newCrawler := func() *Crawler { return New(f, WithDelay(0)) }
		// Sequential so completion order is deterministic.
		o := NewOrchestrator(newCrawler, WithConcurrency(1))

		result, err := o.Run(context.Background(), []string{"alpha", "beta"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := result.GlobalUnique(); got != 17 {
			t.Errorf("expected 17 globally unique items, got %d", got)
		}
		for _, q := range []string{"alpha", "beta"} {
			st := result.Stats[q]
			if st.Total != 10 {
				t.Errorf("%s: expected raw total 10, got %d", q, st.Total)
			}
			if st.UniqueToQuery != 7 {
				t.Errorf("%s: expected 7 unique-to-query items, got %d", q, st.UniqueToQuery)
			}
		}

		// alpha finished first, so the shared items carry alpha's copies.
		seen := make(map[string]bool, len(result.Items))
		for _, item := range result.Items {
			if seen[item.Key] {
				t.Fatalf("duplicate key %q in merged results", item.Key)
			}
			seen[item.Key] = true
		}
		for i, want := range queryA {
			if result.Items[i].Key != want {
				t.Fatalf("expected alpha's items first in merge order, got %v", result.Items[i].Key)
			}
		}
	})

	t.Run("concurrency cap bounds simultaneous crawls", func(t *testing.T) {
		t.Parallel()

		const queries = 6
		byQuery := make(map[string][]string, queries)
		names := make([]string, 0, queries)
		for i := 0; i < queries; i++ {
			name := fmt.Sprintf("q%d", i)
			names = append(names, name)
			byQuery[name] = []string{name + "-item"}
		}
		f := &trackingFetcher{
			byQuery: byQuery,
			started: make(chan struct{}, queries),
			release: make(chan struct{}),
		}

		newCrawler := func() *Crawler { return New(f, WithDelay(0)) }
		o := NewOrchestrator(newCrawler, WithConcurrency(2))

		done := make(chan *model.CrawlResult, 1)
		go func() {
			result, _ := o.Run(context.Background(), names)
			done <- result
		}()

		// Wait for the first wave to be in flight, then let everything go.
		<-f.started
		<-f.started
		close(f.release)
		for range names[2:] {
			<-f.started
		}
		result := <-done

		f.mu.Lock()
		peak := f.peak
		f.mu.Unlock()
		if peak > 2 {
			t.Errorf("expected at most 2 concurrent crawls, observed %d", peak)
		}
		if got := result.GlobalUnique(); got != queries {
			t.Errorf("expected %d items, got %d", queries, got)
		}
	})

	t.Run("cancellation returns partial results with the error", func(t *testing.T) {
		t.Parallel()

		f := &trackingFetcher{byQuery: map[string][]string{
			"alpha": {"a1"},
			"beta":  {"b1"},
		}}
		newCrawler := func() *Crawler { return New(f, WithDelay(0)) }
		o := NewOrchestrator(newCrawler, WithConcurrency(1))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := o.Run(ctx, []string{"alpha", "beta"})
		if err == nil {
			t.Error("expected a cancellation error")
		}
		if result == nil {
			t.Fatal("expected a result even on cancellation")
		}
	})

	t.Run("no queries yields an empty result", func(t *testing.T) {
		t.Parallel()

		f := &trackingFetcher{byQuery: map[string][]string{}}
		newCrawler := func() *Crawler { return New(f, WithDelay(0)) }
		o := NewOrchestrator(newCrawler)

		result, err := o.Run(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := result.GlobalUnique(); got != 0 {
			t.Errorf("expected no items, got %d", got)
		}
	})

	t.Run("crawls that return nothing still get stats entries", func(t *testing.T) {
		t.Parallel()

		f := &trackingFetcher{byQuery: map[string][]string{
			"alpha": {"a1"},
			"empty": nil,
		}}
		newCrawler := func() *Crawler { return New(f, WithDelay(0)) }
		o := NewOrchestrator(newCrawler, WithConcurrency(1))

		result, err := o.Run(context.Background(), []string{"alpha", "empty"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		st, ok := result.Stats["empty"]
		if !ok {
			t.Fatal("expected a stats entry for the empty query")
		}
		if st.Total != 0 || st.UniqueToQuery != 0 {
			t.Errorf("expected zero stats, got %+v", st)
		}
	})
}
