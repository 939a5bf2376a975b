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

// ParaSwap prices universe tokens through the ParaSwap prices endpoint. The
// priceRoute it returns names the underlying pools each hop crosses, so
// unlike the other aggregators this adapter can attach real pool addresses
// to its quote-priced records.
type ParaSwap struct {
	baseURL    string
	httpClient *http.Client
}

// NewParaSwap creates a ParaSwap adapter.
func NewParaSwap(baseURL string, timeout time.Duration) *ParaSwap {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ParaSwap{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the source identifier.
func (p *ParaSwap) Name() string { return "paraswap" }

type paraSwapResponse struct {
	PriceRoute struct {
		DestAmount string `json:"destAmount"`
		BestRoute  []struct {
			Swaps []struct {
				SwapExchanges []struct {
					Exchange      string   `json:"exchange"`
					PoolAddresses []string `json:"poolAddresses"`
				} `json:"swapExchanges"`
			} `json:"swaps"`
		} `json:"bestRoute"`
	} `json:"priceRoute"`
}

// Fetch quotes every (token, chain) pair the universe has an address for.
func (p *ParaSwap) Fetch(ctx context.Context, universe []domain.Token) ([]domain.Pool, error) {
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
			batch, err := p.quote(ctx, token, ch, addr)
			if err != nil {
				if ctx.Err() != nil {
					return pools, domain.NewFetchError(p.Name(), domain.ErrUnreachable, ctx.Err())
				}
				lastErr = err
				continue
			}
			pools = append(pools, batch...)
		}
	}
	if len(pools) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return pools, nil
}

func (p *ParaSwap) quote(ctx context.Context, token domain.Token, ch chain, addr string) ([]domain.Pool, error) {
	endpoint := fmt.Sprintf(
		"%s/prices?srcToken=%s&destToken=%s&amount=%s&srcDecimals=%d&destDecimals=%d&network=%d",
		p.baseURL, addr, ch.USDC, oneTokenUnit(token.Decimals), token.Decimals, usdcDecimals, ch.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewFetchError(p.Name(), domain.ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewFetchError(p.Name(), domain.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewFetchError(p.Name(), domain.ErrRateLimited, nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewFetchError(p.Name(), domain.ErrUnreachable,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var payload paraSwapResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domain.NewFetchError(p.Name(), domain.ErrInvalidResponse, err)
	}

	price, ok := usdFromUSDC(payload.PriceRoute.DestAmount)
	if !ok {
		return nil, nil
	}

	var pools []domain.Pool
	for _, route := range payload.PriceRoute.BestRoute {
		for _, swap := range route.Swaps {
			for _, ex := range swap.SwapExchanges {
				dex := ex.Exchange
				if dex == "" {
					dex = "paraswap"
				}
				for _, poolAddr := range ex.PoolAddresses {
					if poolAddr == "" {
						continue
					}
					pools = append(pools, domain.Pool{
						Symbol:      token.Symbol,
						Venue:       domain.Venue{DEX: strings.ToLower(dex), Chain: ch.Name},
						Address:     poolAddr,
						Pair:        token.Symbol + "/USDC",
						PriceUSD:    price,
						QuotePriced: true,
						Source:      p.Name(),
					})
				}
			}
		}
	}

	// Routes without pool addresses still yield a venue-level record.
	if len(pools) == 0 {
		pools = append(pools, domain.Pool{
			Symbol:      token.Symbol,
			Venue:       domain.Venue{DEX: "paraswap", Chain: ch.Name},
			Address:     fmt.Sprintf("paraswap:%d:%s", ch.ID, token.Symbol),
			Pair:        token.Symbol + "/USDC",
			PriceUSD:    price,
			QuotePriced: true,
			Source:      p.Name(),
		})
	}
	return pools, nil
}
