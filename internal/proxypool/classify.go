package proxypool

// Classification is the pool's verdict on a single proxy failure.
type Classification int

const (
	// ClassTemporary indicates an overload or transient fault; the proxy
	// goes to cooldown and returns to rotation after its expiry.
	ClassTemporary Classification = iota

	// ClassDead indicates a structural rejection; retrying the same proxy
	// cannot help, so it is retired permanently.
	ClassDead
)

// String returns a human-readable representation of the classification.
func (c Classification) String() string {
	if c == ClassDead {
		return "dead"
	}
	return "temporary"
}

// deadStatuses are responses where the proxy (or the target through it) is
// structurally rejected. Retrying cannot help: the proxy is blocked,
// requires auth we do not have, or the route is gone.
var deadStatuses = map[int]bool{
	400: true,
	401: true,
	403: true,
	404: true,
	407: true,
	410: true,
}

// temporaryStatuses are overload and rate-limit responses that are likely
// to recover. 520/522/524 are Cloudflare origin errors common on free
// proxy exits.
var temporaryStatuses = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
	520: true,
	522: true,
	524: true,
}

// Classify maps a failure to ClassTemporary or ClassDead. A status code,
// when available (status > 0), takes precedence over the error kind.
//
// Errors without a status — connection resets, timeouts, TLS failures —
// default to ClassTemporary. Free proxy pools are dominated by transient
// faults, and a conservative default avoids discarding usable capacity.
// Some of these may in fact be permanent protocol mismatches; the policy
// lives in this one function so it is a single edit to tighten.
func Classify(status int, err error) Classification {
	if status > 0 {
		switch {
		case deadStatuses[status]:
			return ClassDead
		case temporaryStatuses[status]:
			return ClassTemporary
		case status >= 500:
			return ClassTemporary
		default:
			return ClassTemporary
		}
	}
	_ = err // every status-less error is treated as transient
	return ClassTemporary
}
