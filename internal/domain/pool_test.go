package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "evm checksum casing",
			in:   "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			want: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		},
		{
			name: "evm upper",
			in:   "0XC02AAA39B223FE8D0A0E5C4F27EAD9083C756CC2",
			want: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		},
		{
			name: "surrounding whitespace",
			in:   "  0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2 ",
			want: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		},
		{
			name: "synthetic aggregator key",
			in:   "1inch:1:WETH",
			want: "1inch:1:weth",
		},
		{
			name: "non-evm identifier",
			in:   "So11111111111111111111111111111111111111112",
			want: "so11111111111111111111111111111111111111112",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalAddress(tt.in))
		})
	}
}

func TestPoolKeyCaseInsensitive(t *testing.T) {
	a := Pool{Venue: Venue{DEX: "uniswap_v3", Chain: "ethereum"}, Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"}
	b := Pool{Venue: Venue{DEX: "uniswap_v3", Chain: "ethereum"}, Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"}
	assert.Equal(t, a.Key(), b.Key())
}

func TestUsable(t *testing.T) {
	p := Pool{Verdict: Admit()}
	assert.True(t, p.Usable())

	p.Stale = true
	assert.False(t, p.Usable())

	p.Stale = false
	p.Verdict = Exclude(ReasonLowLiquidity)
	assert.False(t, p.Usable())
}

func TestFetchErrorTaxonomy(t *testing.T) {
	err := NewFetchError("geckoterminal", ErrRateLimited, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrUnreachable)
	assert.Contains(t, err.Error(), "geckoterminal")

	wrapped := NewFetchError("1inch", ErrInvalidResponse, errors.New("unexpected EOF"))
	assert.ErrorIs(t, wrapped, ErrInvalidResponse)
	assert.Contains(t, wrapped.Error(), "unexpected EOF")
}
