// Package crawler drives pagination over the target search API and
// orchestrates multiple queries under bounded concurrency.
//
// # Single-query state machine
//
// A Crawler runs one query as an explicit state machine:
//
//	running → (retrying | refilling) → running → stopped
//
//   - running: fetch the next page, deduplicate, advance the cursor,
//     evaluate stop conditions.
//   - retrying: the fetch failed; retry with a fixed backoff up to the
//     retry budget.
//   - refilling: retries ended in pool exhaustion and a refill
//     collaborator is configured; rebuild proxy capacity and try once more.
//   - stopped: terminal. Every path into stopped returns the items
//     accumulated so far — a crawl short of its limit is a normal outcome,
//     not a failure, and nothing escapes this boundary.
//
// Stop conditions after a successful page, in priority order: end cursor,
// two consecutive empty pages, target reached, ten consecutive pages
// contributing nothing new.
//
// # Orchestration
//
// The Orchestrator runs N queries as N tasks capped at a concurrency
// limit, each with its own local seen-set, all sharing one proxy pool.
// Results are merged first-occurrence-wins in task-completion order, and
// per-query uniqueness is computed against raw per-query key sets (see
// model.QueryStats).
package crawler
