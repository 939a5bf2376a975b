// Package source implements the upstream pool-data adapters. Each adapter
// normalizes one provider's response shape into domain.Pool records for the
// registry merge step; failures are per-call and recovered by the
// orchestrator's backoff, never fatal.
package source

import (
	"math/big"
	"strconv"
)

// chain describes one EVM network the quote-based adapters price against.
type chain struct {
	Name string
	ID   int
	// USDC is the canonical USDC contract on this chain; quote adapters
	// price one token unit against it.
	USDC string
}

// quoteChains is the closed set of networks the aggregator adapters query.
var quoteChains = []chain{
	{Name: "ethereum", ID: 1, USDC: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
	{Name: "bsc", ID: 56, USDC: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"},
	{Name: "polygon", ID: 137, USDC: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"},
	{Name: "arbitrum", ID: 42161, USDC: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"},
	{Name: "optimism", ID: 10, USDC: "0x7F5c764cBc14f9669B88837ca1490cCa17c31607"},
	{Name: "base", ID: 8453, USDC: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"},
	{Name: "avalanche", ID: 43114, USDC: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"},
}

// usdcDecimals is shared by every chain's canonical USDC deployment above.
const usdcDecimals = 6

// oneTokenUnit returns 10^decimals as a decimal string, the sell amount for
// quote requests.
func oneTokenUnit(decimals int) string {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil).String()
}

// usdFromUSDC converts a raw USDC output amount string to USD.
func usdFromUSDC(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v / 1e6, true
}

func parseF64(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
