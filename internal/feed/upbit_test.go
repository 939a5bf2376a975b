package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFeed(symbols ...string) *UpbitFeed {
	return NewUpbitFeed(Config{
		URL:           "wss://example.invalid/ws",
		KRWUSDRate:    1400,
		ReconnectBase: time.Millisecond,
		ReconnectMax:  4 * time.Millisecond,
	}, symbols, nil, discardLogger())
}

// fakeConn scripts a sequence of inbound frames, then fails the read so the
// session ends.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	idx    int
	writes [][]byte
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.frames) {
		return 0, nil, errors.New("connection reset")
	}
	frame := c.frames[c.idx]
	c.idx++
	return 1, frame, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error   { return nil }
func (c *fakeConn) SetPongHandler(h func(string) error) {}
func (c *fakeConn) Close() error                        { return nil }

// blockingConn parks ReadMessage until the conn is closed.
type blockingConn struct {
	fakeConn
	closed chan struct{}
	once   sync.Once
}

func (c *blockingConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("use of closed network connection")
}

func (c *blockingConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func tickerFrame(t *testing.T, code string, price float64) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"code":        code,
		"trade_price": price,
		"timestamp":   time.Now().UnixMilli(),
	})
	require.NoError(t, err)
	return data
}

func TestHandleFrameConvertsKRW(t *testing.T) {
	f := newTestFeed("BTC")

	f.handleFrame(tickerFrame(t, "KRW-BTC", 140_000_000))

	p, ok := f.Latest("btc")
	require.True(t, ok)
	assert.Equal(t, "BTC", p.Symbol)
	assert.Equal(t, 140_000_000.0, p.PriceKRW)
	assert.InDelta(t, 100_000.0, p.PriceUSD, 1e-9)
	assert.Len(t, f.FreshPrices(time.Minute), 1)
}

func TestHandleFrameIgnoresGarbage(t *testing.T) {
	f := newTestFeed("BTC")

	f.handleFrame([]byte("not json"))
	f.handleFrame(tickerFrame(t, "USDT-BTC", 100000)) // wrong quote market
	f.handleFrame(tickerFrame(t, "KRW-BTC", 0))       // non-positive price

	_, ok := f.Latest("BTC")
	assert.False(t, ok)
}

func TestStaleness(t *testing.T) {
	f := newTestFeed("BTC")

	assert.Greater(t, f.Staleness("BTC"), time.Hour)

	now := time.Now()
	f.clock = func() time.Time { return now }
	f.handleFrame(tickerFrame(t, "KRW-BTC", 140_000_000))

	f.clock = func() time.Time { return now.Add(45 * time.Second) }
	assert.Equal(t, 45*time.Second, f.Staleness("BTC"))
	assert.Empty(t, f.FreshPrices(30*time.Second))
	assert.Len(t, f.FreshPrices(time.Minute), 1)
}

func TestSessionSubscribesAndReads(t *testing.T) {
	f := newTestFeed("BTC", "ETH")
	conn := &fakeConn{frames: [][]byte{
		tickerFrame(t, "KRW-BTC", 140_000_000),
		tickerFrame(t, "KRW-ETH", 4_200_000),
	}}
	f.dial = func(ctx context.Context, url string) (wsConn, error) {
		return conn, nil
	}

	err := f.session(context.Background())
	require.Error(t, err) // the scripted read failure ends the session

	conn.mu.Lock()
	require.NotEmpty(t, conn.writes)
	sub := string(conn.writes[0])
	conn.mu.Unlock()
	assert.Contains(t, sub, "KRW-BTC")
	assert.Contains(t, sub, "KRW-ETH")
	assert.Contains(t, sub, `"type":"ticker"`)

	_, ok := f.Latest("BTC")
	assert.True(t, ok)
	_, ok = f.Latest("ETH")
	assert.True(t, ok)

	// Prices received moments ago keep the feed healthy through the drop.
	assert.True(t, f.Healthy(30*time.Second))
}

func TestSessionUnblocksOnCancel(t *testing.T) {
	f := newTestFeed("BTC")
	conn := &blockingConn{closed: make(chan struct{})}
	f.dial = func(ctx context.Context, url string) (wsConn, error) {
		return conn, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.session(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	// Cancellation must close the conn and free the blocked read instead of
	// waiting out the 60s read deadline.
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not return after cancellation")
	}
}

func TestRunReconnectsOnDialFailure(t *testing.T) {
	f := newTestFeed("BTC")

	dials := make(chan struct{}, 16)
	f.dial = func(ctx context.Context, url string) (wsConn, error) {
		select {
		case dials <- struct{}{}:
		default:
		}
		return nil, errors.New("refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-dials:
		case <-time.After(time.Second):
			t.Fatal("expected dial attempt")
		}
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	state, attempts := f.State()
	assert.Equal(t, StateReconnecting, state)
	assert.GreaterOrEqual(t, attempts, 2)
	assert.False(t, f.Healthy(30*time.Second))
}

func TestListedSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"market":"KRW-BTC"},
			{"market":"KRW-ETH"},
			{"market":"BTC-ETH"},
			{"market":"USDT-XRP"}
		]`))
	}))
	defer srv.Close()

	listed, err := ListedSymbols(context.Background(), srv.URL, []string{"btc", "ETH", "XRP"})
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH"}, listed)
}

func TestListedSymbolsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := ListedSymbols(context.Background(), srv.URL, []string{"BTC"})
	assert.Error(t, err)
}
