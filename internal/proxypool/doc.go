// Package proxypool implements the proxy health and rotation state machine.
//
// # Architecture
//
// The Pool owns every proxy's lifecycle state. A proxy is always in exactly
// one of three partitions:
//
//   - good: the ordered rotation sequence Select draws from
//   - cooldown: temporarily suspended, with a computed expiry
//   - dead: permanently retired; dead is absorbing
//
// Design decision: We implement our own rotation state machine rather than
// using a third-party retry/backoff library because:
//  1. Free/rotating proxy pools need per-address health history, not
//     per-call backoff
//  2. Sticky assignment (keep the last working proxy until it fails) is a
//     policy no generic library models
//  3. The cooldown/dead split is specific to how free proxies fail
//
// # Concurrency
//
// All mutating operations are serialized under a single mutex. The pool is
// shared by every concurrent crawl; only its bookkeeping is locked — the
// fetch itself happens outside the lock, so two crawls may legitimately use
// the same proxy at once. Stickiness is affinity, not mutual exclusion.
//
// # Failure policy
//
// Failures are classified as Temporary or Dead (see Classify). Temporary
// failures move the proxy to cooldown with capped exponential backoff;
// Dead classification, or crossing the consecutive-failure ceiling, retires
// the address permanently.
package proxypool
