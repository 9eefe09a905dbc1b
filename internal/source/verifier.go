package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"
)

// Default verification tuning values.
const (
	// DefaultTestURL is probed through each candidate.
	DefaultTestURL = "https://www.reddit.com/robots.txt"

	// DefaultVerifyTimeout bounds one candidate probe.
	DefaultVerifyTimeout = 5 * time.Second

	// DefaultVerifyConcurrency is the number of candidates probed at once.
	DefaultVerifyConcurrency = 10
)

// Verifier probes candidate addresses by issuing a real request through
// each one and keeping those that answer with a success status.
type Verifier struct {
	testURL     string
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTestURL sets the URL probed through each candidate.
func WithTestURL(u string) VerifierOption {
	return func(v *Verifier) {
		if u != "" {
			v.testURL = u
		}
	}
}

// WithVerifyTimeout bounds one candidate probe.
func WithVerifyTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithVerifyConcurrency sets how many candidates are probed at once.
func WithVerifyConcurrency(n int) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// WithVerifyLogger sets the verifier's logger. Defaults to slog.Default().
func WithVerifyLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewVerifier creates a Verifier.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		testURL:     DefaultTestURL,
		timeout:     DefaultVerifyTimeout,
		concurrency: DefaultVerifyConcurrency,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v
}

// Verify probes a single candidate. It reports whether the candidate
// relayed a success response within the verify timeout.
func (v *Verifier) Verify(ctx context.Context, addr string) bool {
	client, err := v.probeClient(addr)
	if err != nil {
		v.logger.Debug("candidate rejected", "proxy", addr, "error", err)
		return false
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.testURL, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		v.logger.Debug("candidate probe failed", "proxy", addr, "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// VerifyAll probes candidates concurrently and returns the survivors in
// completion order. Once target survivors are found the remaining probes
// are cancelled; target <= 0 means verify everything.
func (v *Verifier) VerifyAll(ctx context.Context, addrs []string, target int) []string {
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		survivors []string
	)

	g, gctx := errgroup.WithContext(probeCtx)
	g.SetLimit(v.concurrency)

	for _, addr := range addrs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if !v.Verify(gctx, addr) {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if target > 0 && len(survivors) >= target {
				return nil
			}
			survivors = append(survivors, addr)
			if target > 0 && len(survivors) >= target {
				cancel()
			}
			return nil
		})
	}
	g.Wait()

	return survivors
}

// probeClient builds a one-shot client routed through the candidate.
func (v *Verifier) probeClient(addr string) (*http.Client, error) {
	proxyURL, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address %q: %w", addr, err)
	}

	transport := &http.Transport{
		DisableKeepAlives:   true,
		TLSHandshakeTimeout: v.timeout,
	}

	switch proxyURL.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if proxyURL.User != nil {
			pass, _ := proxyURL.User.Password()
			auth = &proxy.Auth{User: proxyURL.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, &net.Dialer{Timeout: v.timeout})
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer for %q: %w", addr, err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 dialer for %q does not support context", addr)
		}
		transport.DialContext = contextDialer.DialContext
	default:
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{Transport: transport, Timeout: v.timeout}, nil
}
