// Package config defines the top-level configuration for dexradar and
// provides validation helpers.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DEXRADAR_* environment
// variables.
type Config struct {
	Server    ServerConfig            `toml:"server"`
	Arbitrage ArbitrageConfig         `toml:"arbitrage"`
	Filter    FilterConfig            `toml:"filter"`
	Registry  RegistryConfig          `toml:"registry"`
	Feed      FeedConfig              `toml:"feed"`
	Sources   map[string]SourceConfig `toml:"sources"`
	Storage   StorageConfig           `toml:"storage"`
	Tokens    []TokenConfig           `toml:"tokens"`
	LogLevel  string                  `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// ArbitrageConfig holds detection parameters.
type ArbitrageConfig struct {
	// Threshold is the minimum spread fraction that fires an opportunity,
	// compared inclusively (spread >= threshold).
	Threshold     float64  `toml:"threshold"`
	CycleInterval duration `toml:"cycle_interval"`
	HistorySize   int      `toml:"history_size"`
	// SameChainOnly restricts DEX-DEX comparisons to pools on the same
	// chain, avoiding bridging-risk false positives.
	SameChainOnly bool `toml:"same_chain_only"`
}

// FilterConfig holds LP admission thresholds.
type FilterConfig struct {
	MinLP      float64 `toml:"min_lp"`
	MinVolume  float64 `toml:"min_volume"`
	MinTxCount int     `toml:"min_tx_count"`
	// AllowQuotePriced admits aggregator quote records that carry a price
	// but no liquidity depth.
	AllowQuotePriced bool `toml:"allow_quote_priced"`
	// MaxPriceDeviation excludes a refreshed pool whose price moved more
	// than this fraction from its previous value in one cycle. Zero
	// disables the check.
	MaxPriceDeviation float64 `toml:"max_price_deviation"`
}

// RegistryConfig holds the staleness window for cached pool state.
type RegistryConfig struct {
	MaxAge duration `toml:"max_age"`
}

// FeedConfig holds the CEX reference price feed parameters.
type FeedConfig struct {
	URL           string   `toml:"url"`
	MarketsURL    string   `toml:"markets_url"`
	KRWUSDRate    float64  `toml:"krw_usd_rate"`
	MaxAge        duration `toml:"max_age"`
	ReconnectBase duration `toml:"reconnect_base"`
	ReconnectMax  duration `toml:"reconnect_max"`
}

// SourceConfig holds one pool source's polling parameters. Sources are keyed
// by name in the TOML table: [sources.gecko], [sources.oneinch], ...
type SourceConfig struct {
	Enabled    bool     `toml:"enabled"`
	BaseURL    string   `toml:"base_url"`
	Interval   duration `toml:"interval"`
	BackoffMax duration `toml:"backoff_max"`
	Timeout    duration `toml:"timeout"`
}

// StorageConfig holds the optional local JSONL snapshot writer parameters.
type StorageConfig struct {
	Enabled bool   `toml:"enabled"`
	DataDir string `toml:"data_dir"`
}

// TokenConfig is one entry of the token universe.
type TokenConfig struct {
	Symbol    string            `toml:"symbol"`
	Decimals  int               `toml:"decimals"`
	Addresses map[string]string `toml:"addresses"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// SourceNames is the closed set of supported pool sources.
var SourceNames = []string{"gecko", "oneinch", "zerox", "paraswap"}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	sources := map[string]SourceConfig{
		"gecko": {
			Enabled:    true,
			BaseURL:    "https://api.geckoterminal.com/api/v2",
			Interval:   duration{60 * time.Second},
			BackoffMax: duration{10 * time.Minute},
			Timeout:    duration{10 * time.Second},
		},
		"oneinch": {
			Enabled:    true,
			BaseURL:    "https://api.1inch.dev/swap/v6.0",
			Interval:   duration{90 * time.Second},
			BackoffMax: duration{10 * time.Minute},
			Timeout:    duration{10 * time.Second},
		},
		"zerox": {
			Enabled:    true,
			BaseURL:    "https://matcha.xyz/api",
			Interval:   duration{90 * time.Second},
			BackoffMax: duration{10 * time.Minute},
			Timeout:    duration{10 * time.Second},
		},
		"paraswap": {
			Enabled:    true,
			BaseURL:    "https://apiv5.paraswap.io",
			Interval:   duration{90 * time.Second},
			BackoffMax: duration{10 * time.Minute},
			Timeout:    duration{10 * time.Second},
		},
	}

	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Arbitrage: ArbitrageConfig{
			Threshold:     0.01,
			CycleInterval: duration{30 * time.Second},
			HistorySize:   256,
			SameChainOnly: true,
		},
		Filter: FilterConfig{
			MinLP:            1000,
			MinVolume:        500,
			MinTxCount:       0,
			AllowQuotePriced: true,
		},
		Registry: RegistryConfig{
			MaxAge: duration{2 * time.Minute},
		},
		Feed: FeedConfig{
			URL:           "wss://api.upbit.com/websocket/v1",
			MarketsURL:    "https://api.upbit.com/v1/market/all",
			KRWUSDRate:    1400,
			MaxAge:        duration{30 * time.Second},
			ReconnectBase: duration{2 * time.Second},
			ReconnectMax:  duration{60 * time.Second},
		},
		Sources: sources,
		Storage: StorageConfig{
			Enabled: false,
			DataDir: "./data",
		},
		LogLevel: "info",
	}
}

// Validate checks that the configuration is usable. Misconfiguration that
// would make detection meaningless is rejected here, at startup, rather than
// surfacing at runtime.
func (c *Config) Validate() error {
	if c.Arbitrage.Threshold <= 0 {
		return fmt.Errorf("config: arbitrage.threshold must be positive, got %v", c.Arbitrage.Threshold)
	}
	if c.Arbitrage.CycleInterval.Duration <= 0 {
		return fmt.Errorf("config: arbitrage.cycle_interval must be positive")
	}
	if c.Arbitrage.HistorySize <= 0 {
		return fmt.Errorf("config: arbitrage.history_size must be positive")
	}
	if c.Filter.MinLP < 0 || c.Filter.MinVolume < 0 {
		return fmt.Errorf("config: filter thresholds must not be negative")
	}
	if c.Registry.MaxAge.Duration <= 0 {
		return fmt.Errorf("config: registry.max_age must be positive")
	}
	if c.Feed.MaxAge.Duration <= 0 {
		return fmt.Errorf("config: feed.max_age must be positive")
	}
	if c.Feed.KRWUSDRate <= 0 {
		return fmt.Errorf("config: feed.krw_usd_rate must be positive")
	}
	if len(c.Tokens) == 0 {
		return fmt.Errorf("config: token universe is empty")
	}
	for _, t := range c.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("config: token with empty symbol")
		}
	}
	enabled := 0
	for name, src := range c.Sources {
		if !src.Enabled {
			continue
		}
		enabled++
		if src.Interval.Duration <= 0 {
			return fmt.Errorf("config: sources.%s.interval must be positive", name)
		}
		if src.BackoffMax.Duration < src.Interval.Duration {
			return fmt.Errorf("config: sources.%s.backoff_max must be >= interval", name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("config: no pool sources enabled")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	return nil
}
