package model

import (
	"strings"
	"time"
)

// ProxyState represents the lifecycle state of a proxy in the health pool.
//
// Design decision: We use iota-based constants rather than string constants
// for efficiency in comparisons. The String() method provides human-readable
// output when needed.
type ProxyState int

const (
	// StateGood indicates the proxy is in the active rotation order and
	// may be handed out by the pool.
	StateGood ProxyState = iota

	// StateCooldown indicates the proxy failed recently and is suspended
	// until its computed expiry passes. Cooldown proxies return to the
	// rotation automatically.
	StateCooldown

	// StateDead indicates the proxy was structurally rejected or crossed
	// the failure ceiling. Dead is absorbing: there are no outgoing
	// transitions, and the address is never selected again.
	StateDead
)

// String returns a human-readable representation of the proxy state.
func (s ProxyState) String() string {
	switch s {
	case StateGood:
		return "good"
	case StateCooldown:
		return "cooldown"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Proxy represents a forward proxy and its health bookkeeping.
// The Address is the full URL form (scheme://host:port); the scheme may be
// http, https, or socks5.
type Proxy struct {
	// Address is the normalized proxy URL, e.g. "http://203.0.113.7:8080".
	// It is the unique identity of the proxy across all pool partitions.
	Address string `json:"address"`

	// State is the current lifecycle state.
	State ProxyState `json:"state"`

	// FailureCount is the number of consecutive failures since the last
	// success. Reset to zero on success.
	FailureCount int `json:"failure_count"`

	// CooldownUntil is the time at which a cooling-down proxy becomes
	// selectable again. Zero unless State is StateCooldown.
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`

	// LastSuccess is the time of the most recent successful use.
	LastSuccess time.Time `json:"last_success,omitempty"`
}

// ProxyMeta carries prior per-address health metadata, as loaded from a
// persistence layer. It is consumed at pool construction to seed counters.
type ProxyMeta struct {
	// LastSuccess is the recorded time of the last successful use.
	LastSuccess time.Time

	// OKStreak is the recorded count of consecutive successes.
	OKStreak int

	// FailStreak is the recorded count of consecutive failures.
	FailStreak int
}

// NormalizeProxyAddress normalizes a raw proxy address to URL form.
// Bare "host:port" entries get an http:// scheme; entries that already
// carry a scheme are only trimmed. Empty input stays empty.
func NormalizeProxyAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		return raw
	}
	return "http://" + raw
}

// DedupeAddresses removes duplicate and empty addresses while preserving
// first-seen order.
func DedupeAddresses(addrs []string) []string {
	seen := make(map[string]bool, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
