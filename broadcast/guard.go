package broadcast

import (
	"sync"
	"time"
)

// breakerState is the state of a guard's circuit.
type breakerState int

const (
	// circuitClosed passes every call to the backing store.
	circuitClosed breakerState = iota
	// circuitOpen skips the backing store until retryAfter has passed.
	circuitOpen
	// circuitHalfOpen lets one probe through after retryAfter.
	circuitHalfOpen
)

// breaker trips after threshold consecutive failures.
type breaker struct {
	mu          sync.Mutex
	state       breakerState
	failures    int
	threshold   int
	retryAfter  time.Duration
	lastFailure time.Time
	now         func() time.Time
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitOpen:
		if b.now().Sub(b.lastFailure) < b.retryAfter {
			return false
		}
		b.state = circuitHalfOpen
		return true
	default:
		return true
	}
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = circuitClosed
}

// failure records a failed call and reports whether it tripped the circuit.
func (b *breaker) failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	if b.state == circuitHalfOpen || b.failures >= b.threshold {
		tripped := b.state != circuitOpen
		b.state = circuitOpen
		return tripped
	}
	return false
}

// GuardedStore keeps an in-memory copy of every announcement in front of a
// persistent store. After threshold consecutive failures of the backing
// store it is skipped for retryAfter, and reads are served from memory.
type GuardedStore struct {
	backing Store
	cache   *MemoryStore
	br      *breaker
}

// Guard wraps backing. A threshold below one is treated as one.
func Guard(backing Store, threshold int, retryAfter time.Duration) *GuardedStore {
	if threshold < 1 {
		threshold = 1
	}
	return &GuardedStore{
		backing: backing,
		cache:   NewMemoryStore(),
		br: &breaker{
			threshold:  threshold,
			retryAfter: retryAfter,
			now:        time.Now,
		},
	}
}

// Save records a in memory and, unless the circuit is open, in the backing
// store.
func (g *GuardedStore) Save(a Announcement) error {
	_ = g.cache.Save(a)
	if !g.br.allow() {
		return nil
	}
	if err := g.backing.Save(a); err != nil {
		if g.br.failure() {
			log.Warnf("sticky store failing, using memory for %s: %v", g.br.retryAfter, err)
		}
		return err
	}
	g.br.success()
	return nil
}

// Load prefers the in-memory copy and falls back to the backing store for
// topics retained before this process started.
func (g *GuardedStore) Load(topic string) (Announcement, bool, error) {
	if a, ok, _ := g.cache.Load(topic); ok {
		return a, true, nil
	}
	if !g.br.allow() {
		return Announcement{}, false, nil
	}
	a, ok, err := g.backing.Load(topic)
	if err != nil {
		g.br.failure()
		return Announcement{}, false, err
	}
	g.br.success()
	if ok {
		_ = g.cache.Save(a)
	}
	return a, ok, nil
}

// Degraded reports whether the backing store is currently skipped.
func (g *GuardedStore) Degraded() bool {
	g.br.mu.Lock()
	defer g.br.mu.Unlock()
	return g.br.state == circuitOpen
}
