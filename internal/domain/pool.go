// Package domain defines the core types shared across the dexradar
// aggregation pipeline: tokens, liquidity pools, reference prices,
// arbitrage opportunities, and the error taxonomy.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token is one entry of the configured token universe. A token is identified
// by its display symbol on the CEX side and by per-chain contract addresses
// on the DEX side. Tokens are immutable once loaded.
type Token struct {
	Symbol   string            `json:"symbol"`
	Decimals int               `json:"decimals"`
	// Addresses maps a chain name (e.g. "ethereum", "polygon") to the
	// token's canonical contract address on that chain.
	Addresses map[string]string `json:"addresses,omitempty"`
}

// Venue identifies where a pool trades: a DEX name plus the chain it lives
// on. Two pools on the same DEX but different chains are different venues.
type Venue struct {
	DEX   string `json:"dex"`
	Chain string `json:"chain"`
}

func (v Venue) String() string {
	return v.DEX + "@" + v.Chain
}

// PoolKey is the registry identity of a pool: venue plus canonical pool
// address. Addresses are canonicalized before key construction, so lookups
// are case-insensitive.
type PoolKey struct {
	Venue   Venue  `json:"venue"`
	Address string `json:"address"`
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s:%s", k.Venue, k.Address)
}

// CanonicalAddress normalizes an on-chain address for identity comparison.
// EVM hex addresses go through go-ethereum's checksum parsing and are
// lowercased; anything else (non-EVM pool identifiers, synthetic aggregator
// keys) is lowercased as-is.
func CanonicalAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if common.IsHexAddress(addr) {
		return strings.ToLower(common.HexToAddress(addr).Hex())
	}
	return strings.ToLower(addr)
}

// VerdictReason explains why a pool was excluded by the LP filter.
type VerdictReason string

const (
	ReasonInvalidPrice   VerdictReason = "invalid_price"
	ReasonLowLiquidity   VerdictReason = "low_liquidity"
	ReasonLowVolume      VerdictReason = "low_volume"
	ReasonLowActivity    VerdictReason = "low_activity"
	ReasonQuoteOnly      VerdictReason = "quote_only"
	ReasonPriceDeviation VerdictReason = "price_deviation"
)

// FilterVerdict is the admission decision attached to a pool. It is derived
// state: recomputed on every refresh, never cached across cycles.
type FilterVerdict struct {
	Admitted bool          `json:"admitted"`
	Reason   VerdictReason `json:"reason,omitempty"`
}

// Admit returns an admitting verdict.
func Admit() FilterVerdict { return FilterVerdict{Admitted: true} }

// Exclude returns an excluding verdict with the given reason.
func Exclude(reason VerdictReason) FilterVerdict {
	return FilterVerdict{Admitted: false, Reason: reason}
}

// Pool is a tradable pair on one venue. Identity fields (Symbol, Venue,
// Address) are immutable after creation; price, liquidity, volume, verdict,
// and timestamps refresh on every successful adapter cycle.
type Pool struct {
	Symbol  string `json:"symbol"`
	Venue   Venue  `json:"venue"`
	Address string `json:"pool_address"`
	Pair    string `json:"pair"`

	PriceUSD     float64  `json:"price_usd"`
	LiquidityUSD float64  `json:"lp_reserve_usd"`
	Volume24hUSD float64  `json:"volume_24h"`
	TxCount24h   int      `json:"tx_count_24h,omitempty"`
	FeeTier      *float64 `json:"fee_tier,omitempty"`

	// QuotePriced marks records whose price came from an aggregator quote
	// route rather than observed pool reserves. They carry no depth.
	QuotePriced bool `json:"quote_priced,omitempty"`

	Source    string        `json:"source"`
	UpdatedAt time.Time     `json:"updated_at"`
	Stale     bool          `json:"stale"`
	Verdict   FilterVerdict `json:"verdict"`
}

// Key builds the registry key for this pool.
func (p *Pool) Key() PoolKey {
	return PoolKey{Venue: p.Venue, Address: CanonicalAddress(p.Address)}
}

// Usable reports whether the pool may participate in a detection pass:
// admitted by the filter and not stale.
func (p *Pool) Usable() bool {
	return p.Verdict.Admitted && !p.Stale
}
