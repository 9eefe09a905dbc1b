package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hayashi/prowl/internal/model"
)

// Default candidate fetch tuning values.
const (
	// DefaultFetchCount is how many candidates one fetch asks for.
	DefaultFetchCount = 10

	// DefaultFetchTimeout bounds the candidate list download.
	DefaultFetchTimeout = 10 * time.Second

	// maxCandidateBody caps the candidate list response size.
	maxCandidateBody = 1 << 20
)

// Source produces raw proxy candidate addresses. Addresses are returned
// normalized and deduplicated, at most count of them.
type Source interface {
	FetchCandidates(ctx context.Context, count int) ([]string, error)
}

// HTTPSource fetches a plain-text candidate list, one address per line,
// from a provider URL. Lines starting with '#' are comments.
type HTTPSource struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// HTTPSourceOption configures an HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// WithFetchTimeout sets the list download timeout.
func WithFetchTimeout(d time.Duration) HTTPSourceOption {
	return func(s *HTTPSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHTTPClient sets the client used for the list download.
func WithHTTPClient(client *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		if client != nil {
			s.client = client
		}
	}
}

// NewHTTPSource creates an HTTPSource for the given provider URL.
func NewHTTPSource(url string, opts ...HTTPSourceOption) *HTTPSource {
	s := &HTTPSource{
		url:     url,
		timeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
	}
	return s
}

// FetchCandidates downloads the candidate list and returns up to count
// normalized, deduplicated addresses in provider order.
func (s *HTTPSource) FetchCandidates(ctx context.Context, count int) ([]string, error) {
	if count <= 0 {
		count = DefaultFetchCount
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build candidate request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxCandidateBody))
		return nil, fmt.Errorf("fetch candidates: provider returned status %d", resp.StatusCode)
	}

	var raw []string
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxCandidateBody))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, model.NormalizeProxyAddress(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read candidate list: %w", err)
	}

	addrs := model.DedupeAddresses(raw)
	if len(addrs) > count {
		addrs = addrs[:count]
	}
	return addrs, nil
}

// StaticSource serves a fixed address list. Used when the operator
// supplies a reserve list instead of a provider URL.
type StaticSource struct {
	addrs []string
}

// NewStaticSource creates a StaticSource over the given addresses.
func NewStaticSource(addrs []string) *StaticSource {
	normalized := make([]string, 0, len(addrs))
	for _, a := range addrs {
		normalized = append(normalized, model.NormalizeProxyAddress(a))
	}
	return &StaticSource{addrs: model.DedupeAddresses(normalized)}
}

// FetchCandidates returns up to count of the configured addresses.
func (s *StaticSource) FetchCandidates(_ context.Context, count int) ([]string, error) {
	if count <= 0 || count > len(s.addrs) {
		count = len(s.addrs)
	}
	out := make([]string, count)
	copy(out, s.addrs[:count])
	return out, nil
}
