package model

import "time"

// QueryStats holds per-query crawl statistics.
type QueryStats struct {
	// Total is the number of items the query's crawl fetched after its
	// own local deduplication.
	Total int `json:"total"`

	// UniqueToQuery is the count of identity keys present in this query's
	// raw result set but absent from the union of all other queries' raw
	// result sets. It is computed against raw per-query sets, not the
	// globally deduplicated set, so per-query counts need not sum to the
	// global unique total when three or more queries overlap.
	UniqueToQuery int `json:"unique_to_query"`
}

// PoolStats is a point-in-time census of the proxy pool partitions.
type PoolStats struct {
	Good     int `json:"good"`
	Cooldown int `json:"cooldown"`
	Dead     int `json:"dead"`
}

// CrawlResult is the merged output of a multi-query crawl.
type CrawlResult struct {
	// Queries lists the queries that were run, in submission order.
	Queries []string `json:"queries"`

	// Items is the globally deduplicated result sequence, merged
	// first-occurrence-wins in task-completion order.
	Items []Item `json:"items"`

	// Stats maps each query to its fetch totals and uniqueness counts.
	Stats map[string]QueryStats `json:"stats"`

	// Pool is the state of the proxy pool when the crawl finished.
	Pool PoolStats `json:"pool"`

	// StartedAt and FinishedAt bound the crawl wall-clock time.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// GlobalUnique returns the number of globally unique items collected.
func (r *CrawlResult) GlobalUnique() int {
	return len(r.Items)
}
