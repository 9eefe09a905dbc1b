package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hayashi/prowl/internal/proxypool"
)

// DefaultRefreshTarget is how many verified proxies one refresh aims for.
const DefaultRefreshTarget = 5

// Store persists verified addresses across runs. Implemented by the
// database package; optional.
type Store interface {
	SaveAddresses(ctx context.Context, addrs []string) error
}

// Refresher composes a Source and a Verifier into a refill collaborator:
// fetch candidates, verify them with an early stop at the target count,
// and feed the survivors to the live pool.
type Refresher struct {
	source     Source
	verifier   *Verifier
	pool       *proxypool.Pool
	store      Store
	target     int
	fetchCount int
	logger     *slog.Logger
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithRefreshTarget sets how many verified proxies one refresh aims for.
func WithRefreshTarget(n int) RefresherOption {
	return func(r *Refresher) {
		if n > 0 {
			r.target = n
		}
	}
}

// WithFetchCount sets how many candidates are requested per refresh.
func WithFetchCount(n int) RefresherOption {
	return func(r *Refresher) {
		if n > 0 {
			r.fetchCount = n
		}
	}
}

// WithStore persists verified addresses after each refresh.
func WithStore(store Store) RefresherOption {
	return func(r *Refresher) {
		r.store = store
	}
}

// WithRefreshLogger sets the refresher's logger. Defaults to slog.Default().
func WithRefreshLogger(logger *slog.Logger) RefresherOption {
	return func(r *Refresher) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRefresher creates a Refresher over the given collaborators.
func NewRefresher(src Source, verifier *Verifier, pool *proxypool.Pool, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		source:     src,
		verifier:   verifier,
		pool:       pool,
		target:     DefaultRefreshTarget,
		fetchCount: DefaultFetchCount,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Refill fetches and verifies fresh candidates and adds the survivors to
// the live pool. It returns the number of proxies actually added; zero
// with a nil error means the well is dry.
func (r *Refresher) Refill(ctx context.Context) (int, error) {
	candidates, err := r.source.FetchCandidates(ctx, r.fetchCount)
	if err != nil {
		return 0, fmt.Errorf("refresh: %w", err)
	}
	if len(candidates) == 0 {
		r.logger.Warn("refresh found no candidates")
		return 0, nil
	}

	survivors := r.verifier.VerifyAll(ctx, candidates, r.target)
	r.logger.Info("candidates verified",
		"fetched", len(candidates),
		"alive", len(survivors),
	)
	if len(survivors) == 0 {
		return 0, nil
	}

	if r.store != nil {
		if err := r.store.SaveAddresses(ctx, survivors); err != nil {
			r.logger.Warn("failed to persist verified proxies", "error", err)
		}
	}

	added := r.pool.Add(survivors)
	return added, nil
}
