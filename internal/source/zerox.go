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

// ZeroX prices universe tokens through the 0x (Matcha) swap price endpoint,
// quoting one token unit against the chain's canonical USDC. Like the other
// aggregator adapters it produces quote-priced records without depth.
type ZeroX struct {
	baseURL    string
	httpClient *http.Client
}

// NewZeroX creates a 0x adapter.
func NewZeroX(baseURL string, timeout time.Duration) *ZeroX {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ZeroX{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the source identifier.
func (z *ZeroX) Name() string { return "0x" }

type zeroXPrice struct {
	BuyAmount string `json:"buyAmount"`
	// LiquidityAvailable is false when no route exists for the pair.
	LiquidityAvailable *bool `json:"liquidityAvailable"`
}

// Fetch quotes every (token, chain) pair the universe has an address for.
func (z *ZeroX) Fetch(ctx context.Context, universe []domain.Token) ([]domain.Pool, error) {
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
			pool, err := z.quote(ctx, token, ch, addr)
			if err != nil {
				if ctx.Err() != nil {
					return pools, domain.NewFetchError(z.Name(), domain.ErrUnreachable, ctx.Err())
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

func (z *ZeroX) quote(ctx context.Context, token domain.Token, ch chain, addr string) (*domain.Pool, error) {
	endpoint := fmt.Sprintf("%s/swap/price?chainId=%d&sellToken=%s&buyToken=%s&sellAmount=%s",
		z.baseURL, ch.ID, addr, ch.USDC, oneTokenUnit(token.Decimals))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewFetchError(z.Name(), domain.ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewFetchError(z.Name(), domain.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewFetchError(z.Name(), domain.ErrRateLimited, nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewFetchError(z.Name(), domain.ErrUnreachable,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var price zeroXPrice
	if err := json.NewDecoder(resp.Body).Decode(&price); err != nil {
		return nil, domain.NewFetchError(z.Name(), domain.ErrInvalidResponse, err)
	}
	if price.LiquidityAvailable != nil && !*price.LiquidityAvailable {
		return nil, nil
	}

	usd, ok := usdFromUSDC(price.BuyAmount)
	if !ok {
		return nil, nil
	}

	return &domain.Pool{
		Symbol:      token.Symbol,
		Venue:       domain.Venue{DEX: "0x", Chain: ch.Name},
		Address:     fmt.Sprintf("0x:%d:%s", ch.ID, token.Symbol),
		Pair:        token.Symbol + "/USDC",
		PriceUSD:    usd,
		QuotePriced: true,
		Source:      z.Name(),
	}, nil
}
