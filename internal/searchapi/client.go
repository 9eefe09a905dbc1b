package searchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/hayashi/prowl/internal/fetch"
	"github.com/hayashi/prowl/internal/model"
)

// Default client settings.
const (
	// DefaultBaseURL is the production search endpoint.
	DefaultBaseURL = "https://www.reddit.com"

	// DefaultTimeout bounds one request through a free proxy. Free proxies
	// are slow; anything shorter produces mostly false failures.
	DefaultTimeout = 16 * time.Second

	// DefaultMaxBodySize limits how much of a response body is read.
	// A search page is tens of kilobytes; 5MB leaves generous headroom
	// while preventing memory exhaustion from a misbehaving proxy.
	DefaultMaxBodySize = 5 * 1024 * 1024

	// DefaultUserAgent is sent with every request. Many targets reject
	// the Go default agent outright.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Client talks to the target search API through a caller-supplied proxy.
// It is safe for concurrent use; the transport cache is the only shared
// mutable state.
type Client struct {
	baseURL     string
	userAgent   string
	timeout     time.Duration
	maxBodySize int64

	mu         sync.Mutex
	transports map[string]*http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxBodySize sets the response body read limit.
func WithMaxBodySize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// NewClient creates a Client for the given API base URL,
// e.g. "https://www.reddit.com".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		userAgent:   DefaultUserAgent,
		timeout:     DefaultTimeout,
		maxBodySize: DefaultMaxBodySize,
		transports:  make(map[string]*http.Client),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// listing is the wire envelope shared by search pages and detail listings.
type listing struct {
	Data struct {
		Children []child `json:"children"`
		After    string  `json:"after"`
	} `json:"data"`
}

// child wraps one item; Data is kept raw so the payload passes through
// unmodified.
type child struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// itemIdentity is the minimal slice of an item's payload the client
// interprets: just enough to derive the deduplication key.
type itemIdentity struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink"`
}

// FetchPage fetches one page of search results for query through proxyAddr.
// It returns the page's items, the next-page cursor (empty when the result
// set is exhausted), the HTTP status code when a response was received, and
// an error.
//
// Malformed responses are returned as *fetch.ProtocolError so the executor
// surfaces them without penalizing the proxy.
func (c *Client) FetchPage(ctx context.Context, proxyAddr, query, cursor string, pageSize int) ([]model.Item, string, int, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("sort", "relevance")
	params.Set("type", "link")
	if cursor != "" {
		params.Set("after", cursor)
	}

	body, status, err := c.get(ctx, proxyAddr, c.baseURL+"/search.json?"+params.Encode())
	if err != nil {
		return nil, "", status, err
	}

	var page listing
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, "", status, fetch.NewProtocolError("decode search page", err)
	}

	items := make([]model.Item, 0, len(page.Data.Children))
	for _, ch := range page.Data.Children {
		var ident itemIdentity
		if err := json.Unmarshal(ch.Data, &ident); err != nil {
			return nil, "", status, fetch.NewProtocolError("decode search item", err)
		}
		key := ident.ID
		if key == "" {
			key = ident.Permalink
		}
		items = append(items, model.Item{Key: key, Payload: ch.Data})
	}

	return items, page.Data.After, status, nil
}

// get performs one GET through the proxy and returns the response body.
// Non-2xx statuses are returned as errors alongside the status code so the
// caller can classify them.
func (c *Client) get(ctx context.Context, proxyAddr, rawURL string) ([]byte, int, error) {
	httpClient, err := c.httpClient(proxyAddr)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// httpClient returns the cached HTTP client for proxyAddr, building one on
// first use. Keeping one transport per proxy lets the sticky proxy reuse
// its connections across pages.
func (c *Client) httpClient(proxyAddr string) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hc, ok := c.transports[proxyAddr]; ok {
		return hc, nil
	}

	proxyURL, err := url.Parse(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address %q: %w", proxyAddr, err)
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: c.timeout / 2,
	}

	switch proxyURL.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, socks5Auth(proxyURL), &net.Dialer{Timeout: c.timeout})
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer for %q: %w", proxyAddr, err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 dialer for %q does not support context", proxyAddr)
		}
		transport.DialContext = contextDialer.DialContext
	default:
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	hc := &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}
	c.transports[proxyAddr] = hc
	return hc, nil
}

// socks5Auth extracts optional credentials from a socks5:// URL.
func socks5Auth(u *url.URL) *proxy.Auth {
	if u.User == nil {
		return nil
	}
	pass, _ := u.User.Password()
	return &proxy.Auth{
		User:     u.User.Username(),
		Password: pass,
	}
}
