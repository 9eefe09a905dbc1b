// Package model defines the core data structures used throughout prowl.
//
// This package contains the following main types:
//   - Proxy: A forward proxy with its health state and failure history
//   - Item: A single fetched result with its deduplication identity key
//   - QueryStats: Per-query fetch totals and cross-query uniqueness
//   - CrawlResult: The merged output of a multi-query crawl
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (proxypool, crawler, database, report) need
// to use these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for result output and
// database storage.
package model
