// Package searchapi implements the client for the target search-style JSON
// API, reached through an explicitly supplied forward proxy.
//
// The wire format is a listing envelope: each page carries a sequence of
// children with an opaque per-item payload, and an "after" token naming the
// next page (empty when the result set is exhausted). Items expose an ID
// (falling back to a permalink) which becomes the deduplication identity
// key; the payload itself is passed through unmodified.
//
// The Client performs exactly one fetch per call and takes the proxy
// address as a parameter — proxy selection, retry, and health reporting
// belong to the fetch.Executor. The Fetcher type binds the two together
// and is what the crawl loop consumes.
//
// Transports are cached per proxy address so a sticky proxy reuses its
// connections across pages. Both HTTP(S) and SOCKS5 proxies are supported.
package searchapi
