package proxypool

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hayashi/prowl/internal/model"
)

// Default pool tuning values. These come from observed behavior of free
// proxy lists: most failures are transient, and a proxy that fails seven
// times in a row is effectively gone.
const (
	// DefaultFailureCeiling is the consecutive-failure count at which a
	// proxy is retired permanently even if every failure was temporary.
	DefaultFailureCeiling = 7

	// DefaultBaseCooldown is the base suspension after a temporary
	// failure. The actual cooldown is this value multiplied by the
	// consecutive-failure count, capped at MaxBackoffFactor.
	DefaultBaseCooldown = 300 * time.Second

	// MaxBackoffFactor caps the cooldown multiplier. Without the cap a
	// flaky proxy would back off past the point of ever being retried.
	MaxBackoffFactor = 6

	// DefaultSweepEvery is how many selections pass between opportunistic
	// sweeps of the cooldown set. Sweeping on every selection would make
	// the hot path scan the whole map; every Kth call bounds the overhead.
	DefaultSweepEvery = 30
)

// Observer receives proxy health transitions. A persistence layer can
// subscribe to mirror pool state to durable storage. Callbacks run inside
// the pool's critical section and must not call back into the pool.
type Observer interface {
	// OnSuccess is invoked after a success is recorded for addr.
	OnSuccess(addr string)

	// OnFailure is invoked after a failure is recorded for addr with its
	// classification.
	OnFailure(addr string, class Classification)
}

// Pool is the proxy health pool. It owns rotation order, cooldown expiries,
// the dead set, and the sticky assignment. All exported methods are safe
// for concurrent use.
type Pool struct {
	mu sync.Mutex

	// good is the rotation order. Invariant: an address appears in at
	// most one of good, cooldown, dead.
	good     []string
	cooldown map[string]time.Time
	dead     map[string]struct{}

	// failures counts consecutive failures per address. Cleared on
	// success, kept across cooldown so backoff grows.
	failures    map[string]int
	lastSuccess map[string]time.Time

	// sticky is the currently assigned proxy. Selection returns it until
	// a failure clears it; affinity amortizes connection reuse.
	sticky string
	index  int

	// selections counts Select calls to schedule cooldown sweeps.
	selections int

	failureCeiling int
	baseCooldown   time.Duration
	sweepEvery     int

	now       func() time.Time
	observers []Observer
	logger    *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithFailureCeiling sets the consecutive-failure count that retires a
// proxy permanently.
func WithFailureCeiling(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.failureCeiling = n
		}
	}
}

// WithBaseCooldown sets the base cooldown duration for temporary failures.
func WithBaseCooldown(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.baseCooldown = d
		}
	}
}

// WithSweepEvery sets how many selections pass between cooldown sweeps.
func WithSweepEvery(k int) Option {
	return func(p *Pool) {
		if k > 0 {
			p.sweepEvery = k
		}
	}
}

// WithClock sets the time source. Tests use this to drive cooldown expiry
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// WithObserver subscribes an observer to health transitions.
func WithObserver(o Observer) Option {
	return func(p *Pool) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// WithMeta seeds per-address counters from prior metadata, typically loaded
// from the persistence layer at startup.
func WithMeta(meta map[string]model.ProxyMeta) Option {
	return func(p *Pool) {
		for addr, m := range meta {
			if m.FailStreak > 0 {
				p.failures[addr] = m.FailStreak
			}
			if !m.LastSuccess.IsZero() {
				p.lastSuccess[addr] = m.LastSuccess
			}
		}
	}
}

// WithLogger sets the pool's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Pool from an initial address list. Addresses are normalized
// to URL form and deduplicated preserving order; all start in the good
// rotation.
func New(addrs []string, opts ...Option) *Pool {
	p := &Pool{
		cooldown:       make(map[string]time.Time),
		dead:           make(map[string]struct{}),
		failures:       make(map[string]int),
		lastSuccess:    make(map[string]time.Time),
		failureCeiling: DefaultFailureCeiling,
		baseCooldown:   DefaultBaseCooldown,
		sweepEvery:     DefaultSweepEvery,
		now:            time.Now,
	}

	normalized := make([]string, 0, len(addrs))
	for _, a := range addrs {
		normalized = append(normalized, model.NormalizeProxyAddress(a))
	}
	p.good = model.DedupeAddresses(normalized)

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// Select returns a proxy address to use for the next fetch. It returns the
// sticky proxy if one is assigned; otherwise it advances the round-robin
// index over the good rotation and assigns a new sticky proxy.
//
// The second return is false when the good rotation is empty. Exhaustion is
// a signal, not an error: callers decide whether to refill or give up.
func (p *Pool) Select() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.selections++
	if p.selections%p.sweepEvery == 0 {
		p.promoteExpired()
	}

	if p.sticky != "" {
		return p.sticky, true
	}

	if len(p.good) == 0 {
		return "", false
	}

	if p.index >= len(p.good) {
		p.index = 0
	}
	p.sticky = p.good[p.index]
	p.index++
	return p.sticky, true
}

// RecordSuccess clears the failure counter and any cooldown entry for addr
// and stamps its last-success time. The proxy stays (or becomes) good.
func (p *Pool) RecordSuccess(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, gone := p.dead[addr]; gone {
		return
	}

	p.failures[addr] = 0
	p.lastSuccess[addr] = p.now()
	if _, cooling := p.cooldown[addr]; cooling {
		delete(p.cooldown, addr)
		if !p.inGood(addr) {
			p.good = append(p.good, addr)
		}
	}

	for _, o := range p.observers {
		o.OnSuccess(addr)
	}
}

// RecordFailure increments the failure counter for addr and clears the
// sticky assignment so the next selection re-picks. ClassDead, or reaching
// the failure ceiling, retires the address permanently; otherwise it moves
// to cooldown with expiry now + baseCooldown × min(failures, MaxBackoffFactor).
func (p *Pool) RecordFailure(addr string, class Classification) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, gone := p.dead[addr]; gone {
		return
	}

	p.failures[addr]++
	if p.sticky == addr {
		p.sticky = ""
	}

	if class == ClassDead || p.failures[addr] >= p.failureCeiling {
		p.dead[addr] = struct{}{}
		p.removeFromGood(addr)
		delete(p.cooldown, addr)
		p.logger.Debug("proxy retired", "proxy", addr, "failures", p.failures[addr])
	} else {
		factor := p.failures[addr]
		if factor > MaxBackoffFactor {
			factor = MaxBackoffFactor
		}
		p.cooldown[addr] = p.now().Add(p.baseCooldown * time.Duration(factor))
		p.removeFromGood(addr)
		p.logger.Debug("proxy cooling down",
			"proxy", addr,
			"failures", p.failures[addr],
			"backoff_factor", factor,
		)
	}

	for _, o := range p.observers {
		o.OnFailure(addr, class)
	}
}

// Add introduces new addresses into the good rotation, typically after a
// refill. Addresses already tracked in any partition are skipped. It
// returns the number of addresses actually added.
func (p *Pool) Add(addrs []string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	for _, a := range addrs {
		a = model.NormalizeProxyAddress(a)
		if a == "" {
			continue
		}
		if _, gone := p.dead[a]; gone {
			continue
		}
		if _, cooling := p.cooldown[a]; cooling {
			continue
		}
		if p.inGood(a) {
			continue
		}
		p.good = append(p.good, a)
		added++
	}
	return added
}

// PromoteExpired immediately sweeps the cooldown set, returning every entry
// whose expiry has passed to the tail of the good rotation. Select runs
// this opportunistically; callers only need it to force a sweep.
func (p *Pool) PromoteExpired() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.promoteExpired()
}

// promoteExpired is the unlocked sweep. Callers must hold p.mu.
func (p *Pool) promoteExpired() {
	now := p.now()
	for addr, until := range p.cooldown {
		if until.After(now) {
			continue
		}
		delete(p.cooldown, addr)
		if _, gone := p.dead[addr]; gone {
			continue
		}
		if !p.inGood(addr) {
			p.good = append(p.good, addr)
			p.logger.Debug("proxy promoted from cooldown", "proxy", addr)
		}
	}
}

// GoodCount returns the current size of the good rotation.
func (p *Pool) GoodCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.good)
}

// Stats returns a census of the three partitions.
func (p *Pool) Stats() model.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.PoolStats{
		Good:     len(p.good),
		Cooldown: len(p.cooldown),
		Dead:     len(p.dead),
	}
}

// Snapshot returns the full state of every tracked proxy, for persistence
// and reporting. The result is sorted good first, then cooldown, then dead.
func (p *Pool) Snapshot() []model.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.Proxy, 0, len(p.good)+len(p.cooldown)+len(p.dead))
	for _, addr := range p.good {
		out = append(out, model.Proxy{
			Address:      addr,
			State:        model.StateGood,
			FailureCount: p.failures[addr],
			LastSuccess:  p.lastSuccess[addr],
		})
	}
	for addr, until := range p.cooldown {
		out = append(out, model.Proxy{
			Address:       addr,
			State:         model.StateCooldown,
			FailureCount:  p.failures[addr],
			CooldownUntil: until,
			LastSuccess:   p.lastSuccess[addr],
		})
	}
	for addr := range p.dead {
		out = append(out, model.Proxy{
			Address:      addr,
			State:        model.StateDead,
			FailureCount: p.failures[addr],
			LastSuccess:  p.lastSuccess[addr],
		})
	}
	return out
}

// inGood reports whether addr is in the good rotation. Callers must hold p.mu.
func (p *Pool) inGood(addr string) bool {
	for _, a := range p.good {
		if a == addr {
			return true
		}
	}
	return false
}

// removeFromGood drops addr from the rotation, keeping the round-robin
// index within bounds. Callers must hold p.mu.
func (p *Pool) removeFromGood(addr string) {
	for i, a := range p.good {
		if a == addr {
			p.good = append(p.good[:i], p.good[i+1:]...)
			break
		}
	}
	if p.index >= len(p.good) {
		p.index = 0
	}
}
