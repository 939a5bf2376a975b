package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexradar/internal/broadcast"
	"dexradar/internal/config"
	"dexradar/internal/detector"
	"dexradar/internal/domain"
	"dexradar/internal/feed"
	"dexradar/internal/filter"
	"dexradar/internal/orchestrator"
	"dexradar/internal/registry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticSource struct {
	pools []domain.Pool
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) Fetch(ctx context.Context, universe []domain.Token) ([]domain.Pool, error) {
	return s.pools, nil
}

type env struct {
	reg  *registry.Registry
	filt *filter.Filter
	det  *detector.Detector
	orch *orchestrator.Orchestrator
	feed *feed.UpbitFeed
	bc   *broadcast.Broadcaster
}

func newEnv(t *testing.T, pools ...domain.Pool) *env {
	t.Helper()

	reg := registry.New()
	filt := filter.New(config.FilterConfig{MinLP: 1000, MinVolume: 500, AllowQuotePriced: true})
	det := detector.New(detector.Config{Threshold: 0.01, SameChainOnly: true, HistorySize: 16}, discardLogger())
	bc := broadcast.New(16, nil, discardLogger())
	fd := feed.NewUpbitFeed(feed.Config{KRWUSDRate: 1400}, nil, nil, discardLogger())

	orch := orchestrator.New(
		orchestrator.Config{
			CycleInterval:  time.Minute,
			RegistryMaxAge: 2 * time.Minute,
			FeedMaxAge:     30 * time.Second,
		},
		[]orchestrator.SourceSpec{{
			Source:     &staticSource{pools: pools},
			Interval:   time.Minute,
			BackoffMax: time.Minute,
		}},
		nil, reg, filt, det, fd, bc, nil, nil, discardLogger(),
	)

	reg.Upsert(pools, filt)
	return &env{reg: reg, filt: filt, det: det, orch: orch, feed: fd, bc: bc}
}

const testRegMaxAge = 2 * time.Minute

func adm(dex, addr string, price float64) domain.Pool {
	return domain.Pool{
		Symbol:       "WETH",
		Venue:        domain.Venue{DEX: dex, Chain: "ethereum"},
		Address:      addr,
		PriceUSD:     price,
		LiquidityUSD: 50000,
		Volume24hUSD: 10000,
		Source:       "static",
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestListCachedViews(t *testing.T) {
	thin := adm("uniswap_v3", "0x02", 100)
	thin.LiquidityUSD = 100
	thin.Volume24hUSD = 0
	e := newEnv(t, adm("uniswap_v3", "0x01", 100), thin)

	h := NewPoolsHandler(e.orch, e.reg, testRegMaxAge)

	rec := httptest.NewRecorder()
	h.ListCached(rec, httptest.NewRequest(http.MethodGet, "/pools/cached", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["count"])

	rec = httptest.NewRecorder()
	h.ListCached(rec, httptest.NewRequest(http.MethodGet, "/pools/cached?view=admitted", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	rec = httptest.NewRecorder()
	h.ListCached(rec, httptest.NewRequest(http.MethodGet, "/pools/cached?view=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCachedSymbolFilter(t *testing.T) {
	link := adm("uniswap_v3", "0x02", 15)
	link.Symbol = "LINK"
	e := newEnv(t, adm("uniswap_v3", "0x01", 100), link)

	h := NewPoolsHandler(e.orch, e.reg, testRegMaxAge)
	rec := httptest.NewRecorder()
	h.ListCached(rec, httptest.NewRequest(http.MethodGet, "/pools/cached?symbol=link", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

func TestRefreshPullsSources(t *testing.T) {
	e := newEnv(t)
	// The registry starts empty; the refresh round has nothing to pull from
	// the static source either, but the endpoint must still answer.
	h := NewPoolsHandler(e.orch, e.reg, testRegMaxAge)
	rec := httptest.NewRecorder()
	h.Refresh(rec, httptest.NewRequest(http.MethodGet, "/pools", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestArbitrageList(t *testing.T) {
	e := newEnv(t,
		adm("uniswap_v3", "0x01", 100),
		adm("sushiswap", "0x02", 102),
	)

	h := NewArbHandler(e.det, e.reg, e.feed, 30*time.Second, testRegMaxAge)
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/arbitrage", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])

	// On-demand queries never pollute the cycle history.
	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/arbitrage?recent=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestArbitrageExcludesAgedPools(t *testing.T) {
	e := newEnv(t)
	past := time.Now().Add(-10 * time.Minute)
	e.reg.SetClock(func() time.Time { return past })
	e.reg.Upsert([]domain.Pool{
		adm("uniswap_v3", "0x01", 100),
		adm("sushiswap", "0x02", 102),
	}, e.filt)
	e.reg.SetClock(time.Now)

	// The divergence is above threshold, but both pools aged past max_age
	// since the last cycle tick; the on-demand scan must not use them.
	h := NewArbHandler(e.det, e.reg, e.feed, 30*time.Second, testRegMaxAge)
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/arbitrage", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestListCachedAdmittedExcludesAgedPools(t *testing.T) {
	e := newEnv(t)
	past := time.Now().Add(-10 * time.Minute)
	e.reg.SetClock(func() time.Time { return past })
	e.reg.Upsert([]domain.Pool{adm("uniswap_v3", "0x01", 100)}, e.filt)
	e.reg.SetClock(time.Now)

	h := NewPoolsHandler(e.orch, e.reg, testRegMaxAge)

	rec := httptest.NewRecorder()
	h.ListCached(rec, httptest.NewRequest(http.MethodGet, "/pools/cached?view=admitted", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])

	// The aged pool is still visible, flagged stale, in the full view.
	rec = httptest.NewRecorder()
	h.ListCached(rec, httptest.NewRequest(http.MethodGet, "/pools/cached", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

func TestHealthDegradedBeforeFirstSuccess(t *testing.T) {
	e := newEnv(t)
	h := NewHealthHandler(e.orch, e.feed, e.reg, time.Now())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.NotNil(t, body["sources"])
}

func TestStats(t *testing.T) {
	e := newEnv(t, adm("uniswap_v3", "0x01", 100))
	h := NewStatsHandler(e.orch, e.reg, e.det, e.feed, e.bc, 30*time.Second, time.Now())

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	pools, ok := body["pools"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), pools["total"])
	assert.Equal(t, float64(1), pools["admitted"])
	assert.Equal(t, float64(0), body["ws_subscribers"])
}

func TestWriteJSONMarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, math.NaN())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.NotContains(t, rec.Body.String(), "{")
}
