package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/hayashi/prowl/internal/proxypool"
)

// TestExecutorDo tests the retry/rotate algorithm.
func TestExecutorDo(t *testing.T) {
	t.Parallel()

	t.Run("success on first attempt reports success", func(t *testing.T) {
		t.Parallel()

		pool := proxypool.New([]string{"a:1"})
		exec := NewExecutor(pool)

		var used []string
		err := exec.Do(context.Background(), func(_ context.Context, addr string) (int, error) {
			used = append(used, addr)
			return http.StatusOK, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(used) != 1 {
			t.Errorf("expected 1 attempt, got %d", len(used))
		}
		if stats := pool.Stats(); stats.Good != 1 {
			t.Errorf("proxy should stay good after success: %+v", stats)
		}
	})

	t.Run("retries same proxy before rotating", func(t *testing.T) {
		t.Parallel()

		pool := proxypool.New([]string{"a:1", "b:1"})
		exec := NewExecutor(pool, WithAttemptsPerProxy(2))

		var used []string
		err := exec.Do(context.Background(), func(_ context.Context, addr string) (int, error) {
			used = append(used, addr)
			if len(used) < 3 {
				return http.StatusBadGateway, errors.New("bad gateway")
			}
			return http.StatusOK, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Two attempts on the first proxy, then success on the second.
		if len(used) != 3 {
			t.Fatalf("expected 3 attempts, got %d: %v", len(used), used)
		}
		if used[0] != used[1] {
			t.Errorf("expected same proxy for first two attempts, got %v", used)
		}
		if used[2] == used[0] {
			t.Errorf("expected rotation to a different proxy, got %v", used)
		}
	})

	t.Run("dead classification skips remaining attempt budget", func(t *testing.T) {
		t.Parallel()

		pool := proxypool.New([]string{"a:1", "b:1"})
		exec := NewExecutor(pool, WithAttemptsPerProxy(3))

		var used []string
		err := exec.Do(context.Background(), func(_ context.Context, addr string) (int, error) {
			used = append(used, addr)
			if len(used) == 1 {
				return http.StatusForbidden, errors.New("forbidden")
			}
			return http.StatusOK, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(used) != 2 {
			t.Errorf("expected forbidden proxy to be abandoned after 1 attempt, got %v", used)
		}
		if stats := pool.Stats(); stats.Dead != 1 {
			t.Errorf("expected 1 dead proxy, got %+v", stats)
		}
	})

	t.Run("returns ErrPoolExhausted after trying every proxy", func(t *testing.T) {
		t.Parallel()

		pool := proxypool.New([]string{"a:1", "b:1", "c:1"})
		exec := NewExecutor(pool, WithAttemptsPerProxy(1))

		attempts := 0
		err := exec.Do(context.Background(), func(_ context.Context, _ string) (int, error) {
			attempts++
			return 0, errors.New("connection refused")
		})
		if !errors.Is(err, ErrPoolExhausted) {
			t.Fatalf("expected ErrPoolExhausted, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("expected exactly 3 attempts across the pool, got %d", attempts)
		}
	})

	t.Run("empty pool returns bare ErrPoolExhausted", func(t *testing.T) {
		t.Parallel()

		exec := NewExecutor(proxypool.New(nil))
		err := exec.Do(context.Background(), func(_ context.Context, _ string) (int, error) {
			t.Fatal("fetch func must not run with an empty pool")
			return 0, nil
		})
		if !errors.Is(err, ErrPoolExhausted) {
			t.Fatalf("expected ErrPoolExhausted, got %v", err)
		}
	})

	t.Run("protocol error surfaces unretried without penalizing proxy", func(t *testing.T) {
		t.Parallel()

		pool := proxypool.New([]string{"a:1"})
		exec := NewExecutor(pool, WithAttemptsPerProxy(3))

		attempts := 0
		err := exec.Do(context.Background(), func(_ context.Context, _ string) (int, error) {
			attempts++
			return http.StatusOK, NewProtocolError("decode search page", errors.New("unexpected EOF"))
		})

		var protoErr *ProtocolError
		if !errors.As(err, &protoErr) {
			t.Fatalf("expected ProtocolError, got %v", err)
		}
		if attempts != 1 {
			t.Errorf("protocol errors must not be retried, got %d attempts", attempts)
		}
		if stats := pool.Stats(); stats.Good != 1 {
			t.Errorf("protocol errors must not penalize the proxy: %+v", stats)
		}
	})

	t.Run("cancelled context stops the loop", func(t *testing.T) {
		t.Parallel()

		pool := proxypool.New([]string{"a:1", "b:1"})
		exec := NewExecutor(pool, WithAttemptsPerProxy(1))

		ctx, cancel := context.WithCancel(context.Background())
		err := exec.Do(ctx, func(_ context.Context, _ string) (int, error) {
			cancel()
			return 0, errors.New("interrupted")
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

// TestProtocolError tests error wrapping behavior.
func TestProtocolError(t *testing.T) {
	t.Parallel()

	cause := errors.New("unexpected envelope")
	err := NewProtocolError("decode detail", cause)

	if !errors.Is(err, cause) {
		t.Error("ProtocolError should unwrap to its cause")
	}
	if got := err.Error(); got != "protocol error: decode detail: unexpected envelope" {
		t.Errorf("unexpected message: %q", got)
	}
}
