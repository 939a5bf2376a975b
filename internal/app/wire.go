package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dexradar/internal/broadcast"
	"dexradar/internal/config"
	"dexradar/internal/detector"
	"dexradar/internal/domain"
	"dexradar/internal/feed"
	"dexradar/internal/filter"
	"dexradar/internal/observability"
	"dexradar/internal/orchestrator"
	"dexradar/internal/registry"
	"dexradar/internal/source"
	"dexradar/internal/storage"
)

// Dependencies bundles every pipeline component the application runs. It is
// constructed by Wire.
type Dependencies struct {
	Metrics     *observability.Metrics
	Registry    *registry.Registry
	Filter      *filter.Filter
	Detector    *detector.Detector
	Broadcaster *broadcast.Broadcaster
	Feed        *feed.UpbitFeed
	Orch        *orchestrator.Orchestrator
	Store       *storage.SnapshotWriter
}

// universe converts the configured token list into domain tokens with
// canonicalized per-chain addresses.
func universe(tokens []config.TokenConfig) []domain.Token {
	out := make([]domain.Token, 0, len(tokens))
	for _, t := range tokens {
		addrs := make(map[string]string, len(t.Addresses))
		for chain, addr := range t.Addresses {
			addrs[strings.ToLower(chain)] = domain.CanonicalAddress(addr)
		}
		out = append(out, domain.Token{
			Symbol:    strings.ToUpper(t.Symbol),
			Decimals:  t.Decimals,
			Addresses: addrs,
		})
	}
	return out
}

// buildSource constructs one pool source adapter by name.
func buildSource(name string, sc config.SourceConfig) (domain.PoolSource, error) {
	timeout := sc.Timeout.Duration
	switch name {
	case "gecko":
		return source.NewGeckoTerminal(sc.BaseURL, timeout), nil
	case "oneinch":
		return source.NewOneInch(sc.BaseURL, timeout), nil
	case "zerox":
		return source.NewZeroX(sc.BaseURL, timeout), nil
	case "paraswap":
		return source.NewParaSwap(sc.BaseURL, timeout), nil
	default:
		return nil, fmt.Errorf("wire: unknown source %q", name)
	}
}

// Wire constructs the full pipeline from configuration. The feed symbol list
// is resolved against the exchange's live market listing when possible;
// otherwise every universe symbol is subscribed and unlisted ones simply
// never tick.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	metrics := observability.New()
	tokens := universe(cfg.Tokens)

	reg := registry.New()
	filt := filter.New(cfg.Filter)
	det := detector.New(detector.Config{
		Threshold:     cfg.Arbitrage.Threshold,
		SameChainOnly: cfg.Arbitrage.SameChainOnly,
		HistorySize:   cfg.Arbitrage.HistorySize,
	}, logger)
	bc := broadcast.New(0, metrics, logger)

	symbols := make([]string, 0, len(tokens))
	for _, t := range tokens {
		symbols = append(symbols, t.Symbol)
	}
	if listed, err := feed.ListedSymbols(ctx, cfg.Feed.MarketsURL, symbols); err != nil {
		logger.Warn("market listing lookup failed, subscribing full universe",
			slog.String("error", err.Error()),
		)
	} else if len(listed) > 0 {
		symbols = listed
	}
	upbit := feed.NewUpbitFeed(feed.Config{
		URL:           cfg.Feed.URL,
		KRWUSDRate:    cfg.Feed.KRWUSDRate,
		ReconnectBase: cfg.Feed.ReconnectBase.Duration,
		ReconnectMax:  cfg.Feed.ReconnectMax.Duration,
	}, symbols, metrics, logger)

	var store *storage.SnapshotWriter
	if cfg.Storage.Enabled {
		store = storage.NewSnapshotWriter(cfg.Storage.DataDir)
	}

	specs := make([]orchestrator.SourceSpec, 0, len(config.SourceNames))
	for _, name := range config.SourceNames {
		sc, ok := cfg.Sources[name]
		if !ok || !sc.Enabled {
			continue
		}
		src, err := buildSource(name, sc)
		if err != nil {
			return nil, err
		}
		specs = append(specs, orchestrator.SourceSpec{
			Source:     src,
			Interval:   sc.Interval.Duration,
			BackoffMax: sc.BackoffMax.Duration,
		})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("wire: no pool sources enabled")
	}

	orch := orchestrator.New(
		orchestrator.Config{
			CycleInterval:  cfg.Arbitrage.CycleInterval.Duration,
			RegistryMaxAge: cfg.Registry.MaxAge.Duration,
			FeedMaxAge:     cfg.Feed.MaxAge.Duration,
		},
		specs, tokens, reg, filt, det, upbit, bc, store, metrics, logger,
	)

	return &Dependencies{
		Metrics:     metrics,
		Registry:    reg,
		Filter:      filt,
		Detector:    det,
		Broadcaster: bc,
		Feed:        upbit,
		Orch:        orch,
		Store:       store,
	}, nil
}

// shutdownTimeout bounds how long graceful HTTP shutdown may take.
const shutdownTimeout = 10 * time.Second
