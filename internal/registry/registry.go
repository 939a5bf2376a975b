// Package registry implements the shared in-memory market-state store. It is
// the only mutable state between the ingestion side (source adapters) and
// the detection side (detector, API layer). Entries are never deleted:
// a source outage freezes its pools' last-known state, and staleness marking
// excludes them from detection without losing observability.
package registry

import (
	"sort"
	"sync"
	"time"

	"dexradar/internal/domain"
	"dexradar/internal/filter"
)

// View selects which pools a snapshot returns.
type View int

const (
	// All returns every known pool, including excluded and stale ones.
	All View = iota
	// AdmittedOnly returns pools that passed the filter and are not stale.
	AdmittedOnly
)

// Registry is the concurrent pool store keyed by (venue, pool address).
// Writers replace whole records under the write lock, so a reader never
// observes a pool with price from one refresh and liquidity from another.
type Registry struct {
	mu    sync.RWMutex
	pools map[domain.PoolKey]*domain.Pool

	clock func() time.Time
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		pools: make(map[domain.PoolKey]*domain.Pool),
		clock: time.Now,
	}
}

// SetClock overrides the registry's time source. Intended for tests.
func (r *Registry) SetClock(clock func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

// Upsert merges a batch of freshly fetched pool records into the store,
// applying the filter verdict to each. Last write wins per key; upserting
// the same record twice is idempotent. Records with an empty address or
// symbol are dropped.
func (r *Registry) Upsert(records []domain.Pool, f *filter.Filter) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	merged := 0
	for i := range records {
		rec := records[i]
		if rec.Address == "" || rec.Symbol == "" {
			continue
		}
		rec.Address = domain.CanonicalAddress(rec.Address)
		key := rec.Key()

		prev := r.pools[key]
		rec.Verdict = f.Evaluate(&rec, prev)
		rec.UpdatedAt = now
		rec.Stale = false
		if prev != nil {
			// Identity fields are immutable after creation.
			rec.Symbol = prev.Symbol
			rec.Venue = prev.Venue
			rec.Address = prev.Address
		}

		stored := rec
		r.pools[key] = &stored
		merged++
	}
	return merged
}

// Snapshot returns a consistent point-in-time copy of the store. The result
// is sorted by key for deterministic iteration. symbol filters to one token
// when non-empty.
func (r *Registry) Snapshot(view View, symbol string) []domain.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		if view == AdmittedOnly && !p.Usable() {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i].Key(), out[j].Key()
		if ki.Venue != kj.Venue {
			if ki.Venue.DEX != kj.Venue.DEX {
				return ki.Venue.DEX < kj.Venue.DEX
			}
			return ki.Venue.Chain < kj.Venue.Chain
		}
		return ki.Address < kj.Address
	})
	return out
}

// MarkStale recomputes every entry's staleness flag against maxAge without
// requiring a fresh fetch. Stale entries stay visible via Snapshot(All) but
// are excluded from detection.
func (r *Registry) MarkStale(now time.Time, maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	stale := 0
	cutoff := now.Add(-maxAge)
	for key, p := range r.pools {
		isStale := p.UpdatedAt.Before(cutoff)
		if p.Stale != isStale {
			// Replace the record rather than mutating in place so
			// concurrent snapshot copies stay consistent.
			updated := *p
			updated.Stale = isStale
			r.pools[key] = &updated
		}
		if isStale {
			stale++
		}
	}
	return stale
}

// Get returns a copy of the pool stored under key.
func (r *Registry) Get(key domain.PoolKey) (domain.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[key]
	if !ok {
		return domain.Pool{}, false
	}
	return *p, true
}

// Len returns the number of known pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}
