package domain

import "time"

// OpportunityKind distinguishes the two venue pairings the detector emits.
type OpportunityKind string

const (
	DexToDex OpportunityKind = "dex_dex"
	DexToCex OpportunityKind = "dex_cex"
)

// Leg is one side of a detected divergence: the venue and the price observed
// there. For CEX legs Venue.DEX is the exchange name and Pool is empty.
type Leg struct {
	Venue    Venue   `json:"venue"`
	Pool     string  `json:"pool,omitempty"`
	PriceUSD float64 `json:"price_usd"`
}

// Opportunity is one detected cross-venue price divergence. Opportunities
// are ephemeral: broadcast immediately and kept only in a bounded recent
// history, never persisted. A divergence that persists re-fires every cycle.
type Opportunity struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Kind       OpportunityKind `json:"kind"`
	Chain      string          `json:"chain,omitempty"`
	Low        Leg             `json:"low"`
	High       Leg             `json:"high"`
	// Spread is |high-low| / min(high, low), a non-negative fraction.
	Spread     float64         `json:"spread"`
	DetectedAt time.Time       `json:"detected_at"`
}
