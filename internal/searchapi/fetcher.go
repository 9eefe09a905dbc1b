package searchapi

import (
	"context"
	"errors"

	"github.com/hayashi/prowl/internal/fetch"
	"github.com/hayashi/prowl/internal/model"
)

// errEmptyDetail is returned when a detail view lacks the two-listing
// envelope the API contract promises.
var errEmptyDetail = errors.New("detail view missing item or comment listing")

// Fetcher binds the Client to a fetch.Executor: one call performs one
// logical fetch with proxy rotation, retries, and health reporting.
// It satisfies the crawler's PageFetcher contract.
type Fetcher struct {
	client *Client
	exec   *fetch.Executor
}

// NewFetcher creates a Fetcher.
func NewFetcher(client *Client, exec *fetch.Executor) *Fetcher {
	return &Fetcher{client: client, exec: exec}
}

// FetchPage fetches one page of search results, rotating proxies as needed.
func (f *Fetcher) FetchPage(ctx context.Context, query, cursor string, pageSize int) ([]model.Item, string, error) {
	var (
		items []model.Item
		next  string
	)
	err := f.exec.Do(ctx, func(ctx context.Context, proxyAddr string) (int, error) {
		its, after, status, err := f.client.FetchPage(ctx, proxyAddr, query, cursor, pageSize)
		if err != nil {
			return status, err
		}
		items, next = its, after
		return status, nil
	})
	if err != nil {
		return nil, "", err
	}
	return items, next, nil
}

// FetchDetail fetches an item's detail view, rotating proxies as needed.
func (f *Fetcher) FetchDetail(ctx context.Context, permalink string) (*Detail, error) {
	var detail *Detail
	err := f.exec.Do(ctx, func(ctx context.Context, proxyAddr string) (int, error) {
		d, status, err := f.client.FetchDetail(ctx, proxyAddr, permalink)
		if err != nil {
			return status, err
		}
		detail = d
		return status, nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}
