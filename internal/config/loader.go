package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEXRADAR_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEXRADAR_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators tune thresholds at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setStr(&cfg.Server.Host, "DEXRADAR_SERVER_HOST")
	setInt(&cfg.Server.Port, "DEXRADAR_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DEXRADAR_SERVER_CORS_ORIGINS")

	// ── Arbitrage ──
	setFloat64(&cfg.Arbitrage.Threshold, "DEXRADAR_ARBITRAGE_THRESHOLD")
	setDuration(&cfg.Arbitrage.CycleInterval, "DEXRADAR_ARBITRAGE_CYCLE_INTERVAL")
	setInt(&cfg.Arbitrage.HistorySize, "DEXRADAR_ARBITRAGE_HISTORY_SIZE")
	setBool(&cfg.Arbitrage.SameChainOnly, "DEXRADAR_ARBITRAGE_SAME_CHAIN_ONLY")

	// ── Filter ──
	setFloat64(&cfg.Filter.MinLP, "DEXRADAR_FILTER_MIN_LP")
	setFloat64(&cfg.Filter.MinVolume, "DEXRADAR_FILTER_MIN_VOLUME")
	setInt(&cfg.Filter.MinTxCount, "DEXRADAR_FILTER_MIN_TX_COUNT")
	setBool(&cfg.Filter.AllowQuotePriced, "DEXRADAR_FILTER_ALLOW_QUOTE_PRICED")
	setFloat64(&cfg.Filter.MaxPriceDeviation, "DEXRADAR_FILTER_MAX_PRICE_DEVIATION")

	// ── Registry ──
	setDuration(&cfg.Registry.MaxAge, "DEXRADAR_REGISTRY_MAX_AGE")

	// ── Feed ──
	setStr(&cfg.Feed.URL, "DEXRADAR_FEED_URL")
	setStr(&cfg.Feed.MarketsURL, "DEXRADAR_FEED_MARKETS_URL")
	setFloat64(&cfg.Feed.KRWUSDRate, "DEXRADAR_FEED_KRW_USD_RATE")
	setDuration(&cfg.Feed.MaxAge, "DEXRADAR_FEED_MAX_AGE")
	setDuration(&cfg.Feed.ReconnectBase, "DEXRADAR_FEED_RECONNECT_BASE")
	setDuration(&cfg.Feed.ReconnectMax, "DEXRADAR_FEED_RECONNECT_MAX")

	// ── Storage ──
	setBool(&cfg.Storage.Enabled, "DEXRADAR_STORAGE_ENABLED")
	setStr(&cfg.Storage.DataDir, "DEXRADAR_STORAGE_DATA_DIR")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "DEXRADAR_LOG_LEVEL")

	// ── Per-source enable switches ──
	for _, name := range SourceNames {
		src, ok := cfg.Sources[name]
		if !ok {
			continue
		}
		setBool(&src.Enabled, "DEXRADAR_SOURCE_"+strings.ToUpper(name)+"_ENABLED")
		setStr(&src.BaseURL, "DEXRADAR_SOURCE_"+strings.ToUpper(name)+"_BASE_URL")
		setDuration(&src.Interval, "DEXRADAR_SOURCE_"+strings.ToUpper(name)+"_INTERVAL")
		cfg.Sources[name] = src
	}
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
