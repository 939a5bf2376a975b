package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dexradar/internal/domain"
)

// GeckoTerminal fetches pools from the GeckoTerminal public search API. It
// is the only source that reports observed reserve depth and volume, so its
// records anchor the venue-representative selection downstream.
type GeckoTerminal struct {
	baseURL    string
	httpClient *http.Client
}

// NewGeckoTerminal creates a GeckoTerminal adapter.
func NewGeckoTerminal(baseURL string, timeout time.Duration) *GeckoTerminal {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GeckoTerminal{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the source identifier.
func (g *GeckoTerminal) Name() string { return "geckoterminal" }

// geckoResponse mirrors the GeckoTerminal pool search payload.
type geckoResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name              string `json:"name"`
			Address           string `json:"address"`
			BaseTokenPriceUSD string `json:"base_token_price_usd"`
			ReserveInUSD      string `json:"reserve_in_usd"`
			VolumeUSD         struct {
				H24 string `json:"h24"`
			} `json:"volume_usd"`
			Transactions struct {
				H24 struct {
					Buys  int `json:"buys"`
					Sells int `json:"sells"`
				} `json:"h24"`
			} `json:"transactions"`
		} `json:"attributes"`
		Relationships struct {
			Dex struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"dex"`
		} `json:"relationships"`
	} `json:"data"`
}

// Fetch queries the search endpoint once per universe token and normalizes
// the results. Per-token failures reduce the batch, they do not fail it;
// only a fully failed call returns a FetchError.
func (g *GeckoTerminal) Fetch(ctx context.Context, universe []domain.Token) ([]domain.Pool, error) {
	var (
		pools   []domain.Pool
		lastErr error
	)
	for _, token := range universe {
		batch, err := g.fetchSymbol(ctx, token.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return pools, domain.NewFetchError(g.Name(), domain.ErrUnreachable, ctx.Err())
			}
			lastErr = err
			continue
		}
		pools = append(pools, batch...)
	}
	if len(pools) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return pools, nil
}

func (g *GeckoTerminal) fetchSymbol(ctx context.Context, symbol string) ([]domain.Pool, error) {
	endpoint := fmt.Sprintf("%s/search/pools?query=%s", g.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewFetchError(g.Name(), domain.ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewFetchError(g.Name(), domain.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.NewFetchError(g.Name(), domain.ErrRateLimited, nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewFetchError(g.Name(), domain.ErrUnreachable,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var payload geckoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domain.NewFetchError(g.Name(), domain.ErrInvalidResponse, err)
	}

	pools := make([]domain.Pool, 0, len(payload.Data))
	for _, entry := range payload.Data {
		price := parseF64(entry.Attributes.BaseTokenPriceUSD)
		if price <= 0 || entry.Attributes.Address == "" {
			continue
		}
		tx := entry.Attributes.Transactions.H24.Buys + entry.Attributes.Transactions.H24.Sells
		pools = append(pools, domain.Pool{
			Symbol: strings.ToUpper(symbol),
			Venue: domain.Venue{
				DEX:   dexID(entry.Relationships.Dex.Data.ID),
				Chain: geckoChain(entry.ID),
			},
			Address:      entry.Attributes.Address,
			Pair:         entry.Attributes.Name,
			PriceUSD:     price,
			LiquidityUSD: parseF64(entry.Attributes.ReserveInUSD),
			Volume24hUSD: parseF64(entry.Attributes.VolumeUSD.H24),
			TxCount24h:   tx,
			Source:       g.Name(),
		})
	}
	return pools, nil
}

func dexID(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}

// geckoChain extracts the network from a GeckoTerminal pool id, which is
// formatted as "<network>_<address>".
func geckoChain(id string) string {
	if idx := strings.IndexByte(id, '_'); idx > 0 {
		return id[:idx]
	}
	return "multi"
}
