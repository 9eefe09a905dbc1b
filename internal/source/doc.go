// Package source discovers and verifies proxy candidates.
//
// A Source produces raw candidate addresses, the Verifier probes them
// through a real proxied request, and the Refresher composes the two into
// the crawl engine's refill collaborator: fetch candidates, keep the ones
// that answer, feed them to the live pool.
package source
