package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexradar/internal/domain"
)

func TestOneInchQuoteToPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1/quote", r.URL.Path)
		assert.Equal(t, "1000000000000000000", r.URL.Query().Get("amount"))
		// 3050.5 USDC for one WETH.
		w.Write([]byte(`{"dstAmount":"3050500000"}`))
	}))
	defer srv.Close()

	o := NewOneInch(srv.URL, time.Second)
	pools, err := o.Fetch(context.Background(), testUniverse)
	require.NoError(t, err)

	require.Len(t, pools, 1)
	p := pools[0]
	assert.Equal(t, domain.Venue{DEX: "1inch", Chain: "ethereum"}, p.Venue)
	assert.Equal(t, "1inch:1:WETH", p.Address)
	assert.InDelta(t, 3050.5, p.PriceUSD, 1e-9)
	assert.True(t, p.QuotePriced)
	assert.Zero(t, p.LiquidityUSD)
}

func TestOneInchSkipsUnroutableChains(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOneInch(srv.URL, time.Second)
	pools, err := o.Fetch(context.Background(), testUniverse)
	require.NoError(t, err)
	assert.Empty(t, pools)
}

func TestOneInchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o := NewOneInch(srv.URL, time.Second)
	_, err := o.Fetch(context.Background(), testUniverse)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestOneTokenUnit(t *testing.T) {
	assert.Equal(t, "1", oneTokenUnit(0))
	assert.Equal(t, "1000000", oneTokenUnit(6))
	assert.Equal(t, "1000000000000000000", oneTokenUnit(18))
}

func TestUSDFromUSDC(t *testing.T) {
	v, ok := usdFromUSDC("3050500000")
	require.True(t, ok)
	assert.InDelta(t, 3050.5, v, 1e-9)

	_, ok = usdFromUSDC("0")
	assert.False(t, ok)
	_, ok = usdFromUSDC("garbage")
	assert.False(t, ok)
}
