// Package database provides SQLite-based persistence for proxy health
// metadata. Prior run data seeds the pool's counters at construction, and
// the live pool's observation hooks stream state changes back in, so proxy
// reputation survives across runs.
package database
