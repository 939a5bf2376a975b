package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dexradar/internal/domain"
)

// OneInch prices each universe token through the 1inch aggregation router by
// quoting one token unit against the chain's canonical USDC. The resulting
// records are quote-priced: a route price with no observed reserve depth.
type OneInch struct {
	baseURL    string
	httpClient *http.Client
}

// NewOneInch creates a 1inch adapter.
func NewOneInch(baseURL string, timeout time.Duration) *OneInch {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OneInch{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the source identifier.
func (o *OneInch) Name() string { return "1inch" }

type oneInchQuote struct {
	DstAmount string `json:"dstAmount"`
}

// Fetch quotes every (token, chain) pair the universe has an address for.
func (o *OneInch) Fetch(ctx context.Context, universe []domain.Token) ([]domain.Pool, error) {
	var (
		pools   []domain.Pool
		lastErr error
	)
	for _, token := range universe {
		for _, ch := range quoteChains {
			addr, ok := token.Addresses[ch.Name]
			if !ok {
				continue
			}
			pool, err := o.quote(ctx, token, ch, addr)
			if err != nil {
				if ctx.Err() != nil {
					return pools, domain.NewFetchError(o.Name(), domain.ErrUnreachable, ctx.Err())
				}
				lastErr = err
				continue
			}
			if pool != nil {
				pools = append(pools, *pool)
			}
		}
	}
	if len(pools) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return pools, nil
}

func (o *OneInch) quote(ctx context.Context, token domain.Token, ch chain, addr string) (*domain.Pool, error) {
	endpoint := fmt.Sprintf("%s/%d/quote?src=%s&dst=%s&amount=%s",
		o.baseURL, ch.ID, addr, ch.USDC, oneTokenUnit(token.Decimals))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewFetchError(o.Name(), domain.ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewFetchError(o.Name(), domain.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewFetchError(o.Name(), domain.ErrRateLimited, nil)
	case resp.StatusCode == http.StatusNotFound:
		// Token not routable on this chain; not an adapter failure.
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewFetchError(o.Name(), domain.ErrUnreachable,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var quote oneInchQuote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, domain.NewFetchError(o.Name(), domain.ErrInvalidResponse, err)
	}

	price, ok := usdFromUSDC(quote.DstAmount)
	if !ok {
		return nil, nil
	}

	return &domain.Pool{
		Symbol: token.Symbol,
		Venue:  domain.Venue{DEX: "1inch", Chain: ch.Name},
		// The router aggregates many pools; identity is the synthetic
		// per-chain route key.
		Address:     fmt.Sprintf("1inch:%d:%s", ch.ID, token.Symbol),
		Pair:        token.Symbol + "/USDC",
		PriceUSD:    price,
		QuotePriced: true,
		Source:      o.Name(),
	}, nil
}
