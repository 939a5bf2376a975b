package domain

import "time"

// ReferencePrice is the latest CEX price for a token symbol. The feed keeps
// the last-known value through disconnects; consumers decide usability from
// its age, never from connection state.
type ReferencePrice struct {
	Symbol   string    `json:"symbol"`
	PriceUSD float64   `json:"price_usd"`
	PriceKRW float64   `json:"price_krw"`
	At       time.Time `json:"at"`
}

// Age returns how old the reference price is relative to now.
func (r ReferencePrice) Age(now time.Time) time.Duration {
	return now.Sub(r.At)
}

// Fresh reports whether the price is young enough to be used in detection.
func (r ReferencePrice) Fresh(now time.Time, maxAge time.Duration) bool {
	return r.At.After(now.Add(-maxAge))
}
