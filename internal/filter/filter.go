// Package filter classifies normalized pools as admissible or excluded.
// Verdicts are derived state: the filter runs on every refresh, so a pool
// admitted last cycle is re-judged against its current liquidity and volume
// this cycle.
package filter

import (
	"math"

	"dexradar/internal/config"
	"dexradar/internal/domain"
)

// minTradeableUSD is the floor for the dynamic-depth rule: a pool whose 2%
// slippage-adjusted depth cannot absorb this much is not worth flagging.
const minTradeableUSD = 100.0

// tradeableFraction is the share of LP depth assumed tradable without
// excessive slippage.
const tradeableFraction = 0.02

// Filter holds the admission thresholds. It is a pure classifier with no
// mutable state of its own.
type Filter struct {
	minLP             float64
	minVolume         float64
	minTxCount        int
	allowQuotePriced  bool
	maxPriceDeviation float64
}

// New builds a Filter from configuration.
func New(cfg config.FilterConfig) *Filter {
	return &Filter{
		minLP:             cfg.MinLP,
		minVolume:         cfg.MinVolume,
		minTxCount:        cfg.MinTxCount,
		allowQuotePriced:  cfg.AllowQuotePriced,
		maxPriceDeviation: cfg.MaxPriceDeviation,
	}
}

// Evaluate returns the admission verdict for a freshly fetched pool record.
// prev is the previous registry record for the same key, or nil on first
// sighting; it backs the price-deviation heuristic.
func (f *Filter) Evaluate(pool *domain.Pool, prev *domain.Pool) domain.FilterVerdict {
	price := pool.PriceUSD
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return domain.Exclude(domain.ReasonInvalidPrice)
	}

	// A price that jumps implausibly between consecutive refreshes is a
	// manipulation signal; sit the pool out for this cycle.
	if f.maxPriceDeviation > 0 && prev != nil && prev.PriceUSD > 0 {
		dev := math.Abs(price-prev.PriceUSD) / prev.PriceUSD
		if dev > f.maxPriceDeviation {
			return domain.Exclude(domain.ReasonPriceDeviation)
		}
	}

	// Aggregator quote records carry a route price but no observed depth.
	if pool.QuotePriced {
		if f.allowQuotePriced {
			return domain.Admit()
		}
		return domain.Exclude(domain.ReasonQuoteOnly)
	}

	if f.minTxCount > 0 && pool.TxCount24h > 0 && pool.TxCount24h < f.minTxCount {
		return domain.Exclude(domain.ReasonLowActivity)
	}

	if pool.LiquidityUSD >= f.minLP {
		if pool.Volume24hUSD >= f.minVolume {
			return domain.Admit()
		}
		return domain.Exclude(domain.ReasonLowVolume)
	}

	// Dynamic depth rule: a thin pool still counts if its tradable slice
	// clears the floor and it shows real volume.
	if pool.LiquidityUSD*tradeableFraction >= minTradeableUSD && pool.Volume24hUSD >= f.minVolume {
		return domain.Admit()
	}

	return domain.Exclude(domain.ReasonLowLiquidity)
}

// MaxTradeUSD estimates the amount tradable against a pool without excessive
// slippage.
func (f *Filter) MaxTradeUSD(pool *domain.Pool) float64 {
	return pool.LiquidityUSD * tradeableFraction
}
