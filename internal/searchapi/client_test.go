package searchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hayashi/prowl/internal/fetch"
	"github.com/hayashi/prowl/internal/proxypool"
)

// newProxyServer starts an httptest server that plays the role of a forward
// proxy for a plain-HTTP target: the client sends absolute-form requests to
// it, so the handler sees the full target URL and can answer in its place.
func newProxyServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

const searchPage = `{
	"data": {
		"children": [
			{"kind": "t3", "data": {"id": "abc", "permalink": "/r/go/comments/abc/one/", "title": "one"}},
			{"kind": "t3", "data": {"id": "", "permalink": "/r/go/comments/xyz/two/", "title": "two"}}
		],
		"after": "t3_abc"
	}
}`

// TestClientFetchPage tests page decoding and identity key derivation.
func TestClientFetchPage(t *testing.T) {
	t.Parallel()

	t.Run("decodes items and cursor", func(t *testing.T) {
		t.Parallel()

		srv := newProxyServer(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("q"); got != "golang" {
				t.Errorf("expected query golang, got %q", got)
			}
			if got := r.URL.Query().Get("limit"); got != "100" {
				t.Errorf("expected limit 100, got %q", got)
			}
			fmt.Fprint(w, searchPage)
		})

		c := NewClient("http://api.test")
		items, next, status, err := c.FetchPage(context.Background(), srv.URL, "golang", "", 100)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if status != http.StatusOK {
			t.Errorf("expected status 200, got %d", status)
		}
		if next != "t3_abc" {
			t.Errorf("expected cursor t3_abc, got %q", next)
		}
		if len(items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(items))
		}
		if items[0].Key != "abc" {
			t.Errorf("expected key from id, got %q", items[0].Key)
		}
		if items[1].Key != "/r/go/comments/xyz/two/" {
			t.Errorf("expected permalink fallback key, got %q", items[1].Key)
		}
	})

	t.Run("passes cursor as after parameter", func(t *testing.T) {
		t.Parallel()

		srv := newProxyServer(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("after"); got != "t3_prev" {
				t.Errorf("expected after=t3_prev, got %q", got)
			}
			fmt.Fprint(w, `{"data":{"children":[],"after":""}}`)
		})

		c := NewClient("http://api.test")
		items, next, _, err := c.FetchPage(context.Background(), srv.URL, "q", "t3_prev", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(items) != 0 || next != "" {
			t.Errorf("expected empty exhausted page, got %d items, cursor %q", len(items), next)
		}
	})

	t.Run("non-2xx returns status and error", func(t *testing.T) {
		t.Parallel()

		srv := newProxyServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		c := NewClient("http://api.test")
		_, _, status, err := c.FetchPage(context.Background(), srv.URL, "q", "", 10)
		if err == nil {
			t.Fatal("expected error for 429 response")
		}
		if status != http.StatusTooManyRequests {
			t.Errorf("expected status 429, got %d", status)
		}
	})

	t.Run("malformed body is a protocol error", func(t *testing.T) {
		t.Parallel()

		srv := newProxyServer(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `<html>rate limited</html>`)
		})

		c := NewClient("http://api.test")
		_, _, _, err := c.FetchPage(context.Background(), srv.URL, "q", "", 10)

		var protoErr *fetch.ProtocolError
		if !errors.As(err, &protoErr) {
			t.Fatalf("expected ProtocolError, got %v", err)
		}
	})

	t.Run("rejects malformed proxy address", func(t *testing.T) {
		t.Parallel()

		c := NewClient("http://api.test")
		_, _, _, err := c.FetchPage(context.Background(), "http://bad proxy", "q", "", 10)
		if err == nil {
			t.Fatal("expected error for unparseable proxy address")
		}
	})
}

const detailView = `[
	{"data": {"children": [
		{"kind": "t3", "data": {"title": "Post Title", "selftext": "post body"}}
	], "after": ""}},
	{"data": {"children": [
		{"kind": "t1", "data": {"author": "alice", "body": "top comment", "score": 5,
			"replies": {"data": {"children": [
				{"kind": "t1", "data": {"author": "bob", "body": "nested reply", "score": 2, "replies": ""}}
			], "after": ""}}}},
		{"kind": "more", "data": {"count": 12}}
	], "after": ""}}
]`

// TestClientFetchDetail tests reply-tree extraction from the detail view.
func TestClientFetchDetail(t *testing.T) {
	t.Parallel()

	t.Run("extracts nested replies", func(t *testing.T) {
		t.Parallel()

		srv := newProxyServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/r/go/comments/abc/one/.json" {
				t.Errorf("unexpected path %q", r.URL.Path)
			}
			fmt.Fprint(w, detailView)
		})

		c := NewClient("http://api.test")
		detail, _, err := c.FetchDetail(context.Background(), srv.URL, "/r/go/comments/abc/one/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if detail.Title != "Post Title" || detail.Body != "post body" {
			t.Errorf("unexpected post fields: %+v", detail)
		}
		if len(detail.Comments) != 1 {
			t.Fatalf("expected 1 top-level comment (more placeholder skipped), got %d", len(detail.Comments))
		}
		top := detail.Comments[0]
		if top.Author != "alice" || top.Score != 5 {
			t.Errorf("unexpected top comment: %+v", top)
		}
		if len(top.Replies) != 1 || top.Replies[0].Author != "bob" {
			t.Errorf("expected nested reply from bob, got %+v", top.Replies)
		}
	})

	t.Run("single listing is a protocol error", func(t *testing.T) {
		t.Parallel()

		srv := newProxyServer(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `[{"data":{"children":[],"after":""}}]`)
		})

		c := NewClient("http://api.test")
		_, _, err := c.FetchDetail(context.Background(), srv.URL, "/r/go/comments/abc/one/")

		var protoErr *fetch.ProtocolError
		if !errors.As(err, &protoErr) {
			t.Fatalf("expected ProtocolError, got %v", err)
		}
	})
}

// TestFetcher tests the executor binding: rotation on failure, success
// reporting, and pool exhaustion.
func TestFetcher(t *testing.T) {
	t.Parallel()

	t.Run("rotates to working proxy", func(t *testing.T) {
		t.Parallel()

		good := newProxyServer(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, searchPage)
		})

		// The first proxy address refuses connections (no listener).
		pool := proxypool.New([]string{"http://127.0.0.1:1", good.URL})
		exec := fetch.NewExecutor(pool, fetch.WithAttemptsPerProxy(1))
		f := NewFetcher(NewClient("http://api.test"), exec)

		items, next, err := f.FetchPage(context.Background(), "q", "", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(items) != 2 || next != "t3_abc" {
			t.Errorf("unexpected page: %d items, cursor %q", len(items), next)
		}
		if stats := pool.Stats(); stats.Cooldown != 1 {
			t.Errorf("expected refused proxy in cooldown, got %+v", stats)
		}
	})

	t.Run("all proxies failing yields ErrPoolExhausted", func(t *testing.T) {
		t.Parallel()

		pool := proxypool.New([]string{"http://127.0.0.1:1", "http://127.0.0.1:2"})
		exec := fetch.NewExecutor(pool, fetch.WithAttemptsPerProxy(1))
		f := NewFetcher(NewClient("http://api.test"), exec)

		_, _, err := f.FetchPage(context.Background(), "q", "", 10)
		if !errors.Is(err, fetch.ErrPoolExhausted) {
			t.Fatalf("expected ErrPoolExhausted, got %v", err)
		}
	})
}
