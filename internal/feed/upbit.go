// Package feed maintains the live CEX reference-price stream. The feed is a
// reconnecting state machine over one long-lived Upbit WebSocket
// subscription: connection loss is recovered with jittered exponential
// backoff and is never surfaced to price readers, who always get the
// last-known value plus its age.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dexradar/internal/domain"
	"dexradar/internal/observability"
)

const (
	handshakeTimeout = 15 * time.Second
	readWait         = 60 * time.Second
	pingPeriod       = 30 * time.Second
	writeWait        = 10 * time.Second
)

// State is the feed connection state, exported for health reporting only.
// Price readers must not branch on it; staleness is the usability signal.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Config holds the feed's connection and conversion parameters.
type Config struct {
	URL           string
	KRWUSDRate    float64
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// UpbitFeed subscribes to Upbit's KRW ticker stream for the configured token
// universe and converts prices to USD at a fixed configured rate.
type UpbitFeed struct {
	cfg     Config
	symbols []string
	metrics *observability.Metrics
	logger  *slog.Logger

	mu        sync.RWMutex
	prices    map[string]domain.ReferencePrice
	state     State
	attempt   int
	lastMsgAt time.Time

	clock func() time.Time

	// dial is swapped in tests to avoid real network connections.
	dial func(ctx context.Context, url string) (wsConn, error)
}

// wsConn is the subset of *websocket.Conn the feed loop uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// upbitTicker is the wire shape of one ticker frame.
type upbitTicker struct {
	Code       string  `json:"code"`
	TradePrice float64 `json:"trade_price"`
	Timestamp  int64   `json:"timestamp"`
}

// NewUpbitFeed creates a feed for the given universe symbols.
func NewUpbitFeed(cfg Config, symbols []string, metrics *observability.Metrics, logger *slog.Logger) *UpbitFeed {
	f := &UpbitFeed{
		cfg:     cfg,
		symbols: symbols,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "upbit_feed")),
		prices:  make(map[string]domain.ReferencePrice),
		clock:   time.Now,
	}
	f.dial = func(ctx context.Context, url string) (wsConn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, url, nil)
		return conn, err
	}
	return f
}

// Latest returns the last-known reference price for a symbol. It never
// errors: during reconnects callers simply observe increasing staleness.
func (f *UpbitFeed) Latest(symbol string) (domain.ReferencePrice, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[strings.ToUpper(symbol)]
	return p, ok
}

// Staleness returns the age of a symbol's reference price, or a very large
// duration when the symbol has never been seen.
func (f *UpbitFeed) Staleness(symbol string) time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[strings.ToUpper(symbol)]
	if !ok {
		return time.Duration(1<<62 - 1)
	}
	return f.clock().Sub(p.At)
}

// FreshPrices returns every reference price younger than maxAge.
func (f *UpbitFeed) FreshPrices(maxAge time.Duration) []domain.ReferencePrice {
	f.mu.RLock()
	defer f.mu.RUnlock()
	now := f.clock()
	out := make([]domain.ReferencePrice, 0, len(f.prices))
	for _, p := range f.prices {
		if p.Fresh(now, maxAge) {
			out = append(out, p)
		}
	}
	return out
}

// Healthy reports whether the feed has an active or recently-active
// connection: connected, or disconnected for less than maxAge.
func (f *UpbitFeed) Healthy(maxAge time.Duration) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.state == StateConnected {
		return true
	}
	return !f.lastMsgAt.IsZero() && f.clock().Sub(f.lastMsgAt) <= maxAge
}

// State returns the current connection state and reconnect attempt count.
func (f *UpbitFeed) State() (State, int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state, f.attempt
}

// Run drives the subscription until ctx is cancelled. Each connection
// failure increments the backoff delay (doubling from reconnect_base up to
// reconnect_max, with ±20% jitter); a successful session resets it.
func (f *UpbitFeed) Run(ctx context.Context) error {
	delay := f.cfg.ReconnectBase
	for {
		err := f.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.mu.Lock()
		if f.attempt == 0 {
			// The previous session connected successfully, so start the
			// backoff ladder over.
			delay = f.cfg.ReconnectBase
		}
		f.state = StateReconnecting
		f.attempt++
		attempt := f.attempt
		f.mu.Unlock()
		if f.metrics != nil {
			f.metrics.FeedReconnects.Inc()
		}

		f.logger.Warn("feed session ended, reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", errString(err)),
		)

		timer := time.NewTimer(jitter(delay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if max := f.cfg.ReconnectMax; delay > max {
			delay = max
		}
	}
}

// session runs one connect-subscribe-read cycle. It returns when the
// connection drops or ctx is cancelled.
func (f *UpbitFeed) session(ctx context.Context) error {
	conn, err := f.dial(ctx, f.cfg.URL)
	if err != nil {
		return fmt.Errorf("feed: dial: %w", err)
	}
	defer conn.Close()

	if err := f.subscribe(conn); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}

	f.mu.Lock()
	f.state = StateConnected
	f.attempt = 0
	f.mu.Unlock()
	f.logger.Info("feed connected", slog.Int("symbols", len(f.symbols)))

	conn.SetReadDeadline(f.clock().Add(readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(f.clock().Add(readWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go f.pingLoop(ctx, conn, done)
	// Closing the conn is the only way to interrupt a pending ReadMessage,
	// so cancellation must reach it directly.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if ctx.Err() != nil {
			f.setDisconnected()
			return ctx.Err()
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			f.setDisconnected()
			return fmt.Errorf("feed: read: %w: %v", domain.ErrFeedDisconnect, err)
		}
		conn.SetReadDeadline(f.clock().Add(readWait))
		f.handleFrame(data)
	}
}

func (f *UpbitFeed) subscribe(conn wsConn) error {
	codes := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		codes = append(codes, "KRW-"+strings.ToUpper(s))
	}
	payload, err := json.Marshal([]any{
		map[string]string{"ticket": "dexradar"},
		map[string]any{"type": "ticker", "codes": codes},
	})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (f *UpbitFeed) handleFrame(data []byte) {
	var ticker upbitTicker
	if err := json.Unmarshal(data, &ticker); err != nil {
		return
	}
	symbol, ok := strings.CutPrefix(ticker.Code, "KRW-")
	if !ok || ticker.TradePrice <= 0 {
		return
	}

	now := f.clock()
	price := domain.ReferencePrice{
		Symbol:   symbol,
		PriceKRW: ticker.TradePrice,
		PriceUSD: ticker.TradePrice / f.cfg.KRWUSDRate,
		At:       now,
	}

	f.mu.Lock()
	f.prices[symbol] = price
	f.lastMsgAt = now
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.FeedMessages.Inc()
	}
}

func (f *UpbitFeed) pingLoop(ctx context.Context, conn wsConn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			deadline := f.clock().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (f *UpbitFeed) setDisconnected() {
	f.mu.Lock()
	f.state = StateDisconnected
	f.mu.Unlock()
}

// jitter spreads a delay by ±20% so reconnecting clients do not stampede.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := float64(d) * 0.2
	return d + time.Duration((rand.Float64()*2-1)*spread)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ListedSymbols fetches Upbit's KRW market list and returns the subset of
// universe symbols that are actually listed there. Symbols without a KRW
// market simply never get a reference price.
func ListedSymbols(ctx context.Context, marketsURL string, universe []string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, marketsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: markets request: %w", err)
	}
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: fetch markets: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed: fetch markets: status %d", resp.StatusCode)
	}

	var markets []struct {
		Market string `json:"market"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return nil, fmt.Errorf("feed: decode markets: %w", err)
	}

	listed := make(map[string]bool, len(markets))
	for _, m := range markets {
		if sym, ok := strings.CutPrefix(m.Market, "KRW-"); ok {
			listed[sym] = true
		}
	}

	out := make([]string, 0, len(universe))
	for _, s := range universe {
		if listed[strings.ToUpper(s)] {
			out = append(out, strings.ToUpper(s))
		}
	}
	return out, nil
}
