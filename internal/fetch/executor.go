package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hayashi/prowl/internal/proxypool"
)

// DefaultAttemptsPerProxy is how many times a single proxy is retried
// within one logical fetch before the executor moves to the next one.
const DefaultAttemptsPerProxy = 2

// Func performs one fetch attempt through the given proxy address.
// It returns the HTTP status code when one was received (0 otherwise) so
// the executor can classify the failure, and the attempt error.
type Func func(ctx context.Context, proxyAddr string) (status int, err error)

// Executor performs one logical fetch operation using proxies obtained
// from the pool. It is stateless across calls and safe for concurrent use;
// all shared state lives in the pool.
type Executor struct {
	pool             *proxypool.Pool
	attemptsPerProxy int
	attemptTimeout   time.Duration
	logger           *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithAttemptsPerProxy sets the per-proxy attempt budget.
func WithAttemptsPerProxy(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.attemptsPerProxy = n
		}
	}
}

// WithAttemptTimeout bounds each individual fetch attempt. On expiry the
// failure is classified as temporary.
func WithAttemptTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.attemptTimeout = d
		}
	}
}

// WithLogger sets the executor's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates an Executor backed by the given pool.
func NewExecutor(pool *proxypool.Pool, opts ...ExecutorOption) *Executor {
	e := &Executor{
		pool:             pool,
		attemptsPerProxy: DefaultAttemptsPerProxy,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Do runs fn until it succeeds, the context is cancelled, or every
// currently good proxy has been tried once within this call.
//
// A failing proxy is retried up to the per-proxy budget before the
// executor marks it tried and selects the next one. Each failure is
// classified and reported to the pool; a success is reported and Do
// returns nil. A ProtocolError aborts immediately without penalizing the
// proxy.
func (e *Executor) Do(ctx context.Context, fn Func) error {
	tried := make(map[string]bool)
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		addr, ok := e.pool.Select()
		if !ok {
			return e.exhausted(lastErr)
		}
		if tried[addr] {
			// Selection wrapped around to a proxy this call already
			// spent; everything good has been tried once.
			return e.exhausted(lastErr)
		}

		for attempt := 0; attempt < e.attemptsPerProxy; attempt++ {
			status, err := e.attempt(ctx, addr, fn)
			if err == nil {
				e.pool.RecordSuccess(addr)
				return nil
			}

			var protoErr *ProtocolError
			if errors.As(err, &protoErr) {
				// Contract break on the target side; not a proxy fault.
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			class := proxypool.Classify(status, err)
			e.pool.RecordFailure(addr, class)
			lastErr = err
			e.logger.Debug("fetch attempt failed",
				"proxy", addr,
				"attempt", attempt+1,
				"status", status,
				"class", class.String(),
				"error", err,
			)

			if class == proxypool.ClassDead {
				// No point burning the remaining budget on a retired proxy.
				break
			}
		}
		tried[addr] = true
	}
}

// attempt runs a single fetch attempt, applying the per-attempt timeout.
func (e *Executor) attempt(ctx context.Context, addr string, fn Func) (int, error) {
	if e.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.attemptTimeout)
		defer cancel()
	}
	return fn(ctx, addr)
}

// exhausted wraps ErrPoolExhausted with the last underlying error when one
// exists, so callers can log the proximate cause while matching the
// sentinel with errors.Is.
func (e *Executor) exhausted(lastErr error) error {
	if lastErr != nil {
		return fmt.Errorf("%w (last error: %v)", ErrPoolExhausted, lastErr)
	}
	return ErrPoolExhausted
}
