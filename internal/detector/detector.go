// Package detector computes cross-venue price divergence over registry
// snapshots and the CEX reference price stream, and emits arbitrage
// opportunities above a configured threshold.
package detector

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dexradar/internal/domain"
)

// Config configures the detector.
type Config struct {
	// Threshold is the minimum spread fraction, compared inclusively.
	Threshold float64
	// SameChainOnly restricts DEX-DEX pairings to pools on the same chain.
	SameChainOnly bool
	// HistorySize bounds the recent-opportunity buffer.
	HistorySize int
}

// Detector scans admitted, non-stale pools grouped by token and emits one
// Opportunity per qualifying pairing per scan. There is no cross-cycle
// deduplication: a persisting divergence re-fires every cycle and any
// debouncing is the consumer's concern.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	recent  []domain.Opportunity
	nextIdx int
}

// New creates a Detector.
func New(cfg Config, logger *slog.Logger) *Detector {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 256
	}
	return &Detector{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "detector")),
		recent: make([]domain.Opportunity, 0, cfg.HistorySize),
	}
}

// Scan runs one detection pass over a single consistent snapshot and
// records the results in the recent-history buffer. This is the
// orchestrator's per-cycle entry point.
func (d *Detector) Scan(pools []domain.Pool, refPrices []domain.ReferencePrice, now time.Time) []domain.Opportunity {
	opps := d.Detect(pools, refPrices, now)
	if len(opps) > 0 {
		d.remember(opps)
	}
	return opps
}

// Detect computes opportunities without touching history, so the API layer
// can answer on-demand queries from the same code path. pools is expected to
// be the registry's admitted view; records that are excluded, stale, or
// carry an invalid price are skipped defensively anyway.
func (d *Detector) Detect(pools []domain.Pool, refPrices []domain.ReferencePrice, now time.Time) []domain.Opportunity {
	usable := make([]domain.Pool, 0, len(pools))
	for _, p := range pools {
		if !p.Usable() || !validPrice(p.PriceUSD) {
			continue
		}
		usable = append(usable, p)
	}

	var opps []domain.Opportunity
	opps = append(opps, d.scanDexDex(usable, now)...)
	opps = append(opps, d.scanDexCex(usable, refPrices, now)...)

	if len(opps) > 0 {
		d.logger.Debug("detection pass complete",
			slog.Int("pools", len(usable)),
			slog.Int("opportunities", len(opps)),
		)
	}
	return opps
}

// scanDexDex computes pairwise spreads between venue-representative pools
// sharing a token (and chain, when configured).
func (d *Detector) scanDexDex(pools []domain.Pool, now time.Time) []domain.Opportunity {
	groups := make(map[string][]domain.Pool)
	for _, p := range pools {
		key := p.Symbol
		if d.cfg.SameChainOnly {
			key = p.Symbol + "\x00" + p.Venue.Chain
		}
		groups[key] = append(groups[key], p)
	}

	var opps []domain.Opportunity
	for _, group := range groups {
		reps := representatives(group)
		if len(reps) < 2 {
			continue
		}
		for i := 0; i < len(reps); i++ {
			for j := i + 1; j < len(reps); j++ {
				a, b := reps[i], reps[j]
				spread, ok := spreadPct(a.PriceUSD, b.PriceUSD)
				if !ok || spread < d.cfg.Threshold {
					continue
				}
				low, high := a, b
				if b.PriceUSD < a.PriceUSD {
					low, high = b, a
				}
				chain := ""
				if d.cfg.SameChainOnly {
					chain = low.Venue.Chain
				}
				opps = append(opps, domain.Opportunity{
					ID:     uuid.NewString(),
					Symbol: low.Symbol,
					Kind:   domain.DexToDex,
					Chain:  chain,
					Low: domain.Leg{
						Venue:    low.Venue,
						Pool:     low.Address,
						PriceUSD: low.PriceUSD,
					},
					High: domain.Leg{
						Venue:    high.Venue,
						Pool:     high.Address,
						PriceUSD: high.PriceUSD,
					},
					Spread:     spread,
					DetectedAt: now,
				})
			}
		}
	}
	return opps
}

// scanDexCex compares each venue-representative pool against the non-stale
// CEX reference price for its token.
func (d *Detector) scanDexCex(pools []domain.Pool, refPrices []domain.ReferencePrice, now time.Time) []domain.Opportunity {
	refs := make(map[string]domain.ReferencePrice, len(refPrices))
	for _, r := range refPrices {
		if validPrice(r.PriceUSD) {
			refs[r.Symbol] = r
		}
	}

	byVenue := make(map[string][]domain.Pool)
	for _, p := range pools {
		key := p.Symbol + "\x00" + p.Venue.String()
		byVenue[key] = append(byVenue[key], p)
	}

	var opps []domain.Opportunity
	for _, group := range byVenue {
		rep := representative(group)
		ref, ok := refs[rep.Symbol]
		if !ok {
			continue
		}
		spread, ok := spreadPct(rep.PriceUSD, ref.PriceUSD)
		if !ok || spread < d.cfg.Threshold {
			continue
		}
		dexLeg := domain.Leg{
			Venue:    rep.Venue,
			Pool:     rep.Address,
			PriceUSD: rep.PriceUSD,
		}
		cexLeg := domain.Leg{
			Venue:    domain.Venue{DEX: "upbit", Chain: "cex"},
			PriceUSD: ref.PriceUSD,
		}
		low, high := dexLeg, cexLeg
		if cexLeg.PriceUSD < dexLeg.PriceUSD {
			low, high = cexLeg, dexLeg
		}
		opps = append(opps, domain.Opportunity{
			ID:         uuid.NewString(),
			Symbol:     rep.Symbol,
			Kind:       domain.DexToCex,
			Chain:      rep.Venue.Chain,
			Low:        low,
			High:       high,
			Spread:     spread,
			DetectedAt: now,
		})
	}
	return opps
}

// representatives reduces a token group to one pool per venue: the deepest
// pool wins, so spreads are never driven by illiquid duplicate pools.
// Quote-priced records only represent a venue when no depth-backed pool
// exists there.
func representatives(group []domain.Pool) []domain.Pool {
	perVenue := make(map[domain.Venue][]domain.Pool)
	for _, p := range group {
		perVenue[p.Venue] = append(perVenue[p.Venue], p)
	}
	reps := make([]domain.Pool, 0, len(perVenue))
	for _, pools := range perVenue {
		reps = append(reps, representative(pools))
	}
	sort.Slice(reps, func(i, j int) bool {
		return reps[i].Venue.String() < reps[j].Venue.String()
	})
	return reps
}

func representative(pools []domain.Pool) domain.Pool {
	best := pools[0]
	for _, p := range pools[1:] {
		if betterRepresentative(p, best) {
			best = p
		}
	}
	return best
}

func betterRepresentative(candidate, current domain.Pool) bool {
	if candidate.QuotePriced != current.QuotePriced {
		return current.QuotePriced
	}
	return candidate.LiquidityUSD > current.LiquidityUSD
}

// spreadPct returns |a-b| / min(a,b). It reports false when either price is
// non-positive or non-finite, so callers never divide by a near-zero or
// garbage price.
func spreadPct(a, b float64) (float64, bool) {
	if !validPrice(a) || !validPrice(b) {
		return 0, false
	}
	low := math.Min(a, b)
	return math.Abs(a-b) / low, true
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// remember appends opportunities to the bounded recent-history ring.
func (d *Detector) remember(opps []domain.Opportunity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, opp := range opps {
		if len(d.recent) < d.cfg.HistorySize {
			d.recent = append(d.recent, opp)
			continue
		}
		d.recent[d.nextIdx] = opp
		d.nextIdx = (d.nextIdx + 1) % d.cfg.HistorySize
	}
}

// Recent returns the bounded recent-opportunity history, newest last.
func (d *Detector) Recent() []domain.Opportunity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Opportunity, 0, len(d.recent))
	if len(d.recent) < d.cfg.HistorySize {
		return append(out, d.recent...)
	}
	out = append(out, d.recent[d.nextIdx:]...)
	out = append(out, d.recent[:d.nextIdx]...)
	return out
}
