// Package fetch provides the retry-integrated request executor that sits
// between the crawl loop and the proxy pool.
//
// The Executor performs one logical fetch: it obtains a proxy from the
// pool, runs the caller-supplied fetch function through it, and reports
// the outcome back to the pool. Failures are retried first on the same
// proxy (up to the per-proxy attempt budget) and then on freshly selected
// proxies, until every currently good proxy has been tried once within the
// call. This bound guarantees termination regardless of pool size.
//
// Error taxonomy:
//   - ErrPoolExhausted: no usable proxy remains for this call. Recoverable
//     by refilling the pool; otherwise crawl-terminal.
//   - ProtocolError: the target returned an unexpected response shape.
//     Surfaced to the caller unretried — it signals a contract break, not
//     a proxy fault.
//   - Everything else is absorbed into pool health state and only surfaced
//     once no proxy is left to try.
package fetch
