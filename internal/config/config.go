// Package config defines the top-level configuration for the cross-venue
// arbitrage bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CROSSBOT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Matching   MatchingConfig   `toml:"matching"`
	Trading    TradingConfig    `toml:"trading"`
	Scan       ScanConfig       `toml:"scan"`
	Reconcile  ReconcileConfig  `toml:"reconcile"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the Polygon wallet credentials backing Polymarket order
// signatures.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	FunderAddress    string `toml:"funder_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// KalshiConfig holds Kalshi exchange API parameters.
type KalshiConfig struct {
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	BaseURL           string `toml:"base_url"`
	WsURL             string `toml:"ws_url"`
}

// PolymarketConfig holds Polymarket API endpoints, chain parameters and
// optional pre-derived CLOB API credentials. When the credential trio is
// empty the client derives a key via the L1 flow instead.
type PolymarketConfig struct {
	GammaHost     string `toml:"gamma_host"`
	ClobHost      string `toml:"clob_host"`
	WsHost        string `toml:"ws_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the history
// archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// MatchingConfig holds cross-venue event correlation parameters.
type MatchingConfig struct {
	// Threshold is the minimum overall confidence for a pair to count as the
	// same real-world event.
	Threshold float64 `toml:"threshold"`
}

// TradingConfig holds hedge economics and execution parameters.
type TradingConfig struct {
	FeeRateKalshi     float64  `toml:"fee_rate_kalshi"`
	FeeRatePolymarket float64  `toml:"fee_rate_polymarket"`
	MinProfit         float64  `toml:"min_profit"`
	NotionalUSD       float64  `toml:"notional_usd"`
	CooldownTTL       duration `toml:"cooldown_ttl"`
}

// ScanConfig holds detection sweep parameters.
type ScanConfig struct {
	Interval           duration `toml:"interval"`
	Categories         []string `toml:"categories"`
	MaxUntilResolution duration `toml:"max_until_resolution"`
	MinLiquidity       float64  `toml:"min_liquidity"`
	QuoteTTL           duration `toml:"quote_ttl"`
}

// ReconcileConfig holds settlement sweep parameters.
type ReconcileConfig struct {
	Interval duration `toml:"interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
			WsURL:   "wss://api.elections.kalshi.com/trade-api/ws2",
		},
		Polymarket: PolymarketConfig{
			GammaHost:     "https://gamma-api.polymarket.com",
			ClobHost:      "https://clob.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:       137,
			SignatureType: 2,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossbot-data",
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Matching: MatchingConfig{
			Threshold: 0.80,
		},
		Trading: TradingConfig{
			FeeRateKalshi:     0.01,
			FeeRatePolymarket: 0.01,
			MinProfit:         0.02,
			NotionalUSD:       100,
			CooldownTTL:       duration{time.Hour},
		},
		Scan: ScanConfig{
			Interval:           duration{60 * time.Second},
			Categories:         []string{"crypto", "sports"},
			MaxUntilResolution: duration{24 * time.Hour},
			MinLiquidity:       100,
			QuoteTTL:           duration{30 * time.Second},
		},
		Reconcile: ReconcileConfig{
			Interval: duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"arbitrage_executed", "position_settled", "error"},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":  true,
	"trade": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, trade)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Trading credentials are only required when orders will be placed.
	if strings.ToLower(c.Mode) == "trade" {
		if c.Kalshi.ApiKey == "" {
			errs = append(errs, "kalshi: api_key is required for trade mode")
		}
		if c.Kalshi.RsaPrivateKeyPath == "" {
			errs = append(errs, "kalshi: rsa_private_key_path is required for trade mode")
		}
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for trade mode")
		}
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Kalshi endpoints
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}

	// Polymarket endpoints
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 1 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 1 (proxy) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}

	// Polymarket CLOB credentials: all three fields set together, or all empty.
	pk := c.Polymarket.ApiKey != ""
	ps := c.Polymarket.ApiSecret != ""
	pp := c.Polymarket.ApiPassphrase != ""
	if pk || ps || pp {
		if !(pk && ps && pp) {
			errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set together")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1 when enabled")
		}
	}

	// Matching
	if c.Matching.Threshold <= 0 || c.Matching.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("matching: threshold must be in (0, 1], got %v", c.Matching.Threshold))
	}

	// Trading
	if c.Trading.FeeRateKalshi < 0 || c.Trading.FeeRateKalshi >= 1 {
		errs = append(errs, "trading: fee_rate_kalshi must be in [0, 1)")
	}
	if c.Trading.FeeRatePolymarket < 0 || c.Trading.FeeRatePolymarket >= 1 {
		errs = append(errs, "trading: fee_rate_polymarket must be in [0, 1)")
	}
	if c.Trading.MinProfit < 0 {
		errs = append(errs, "trading: min_profit must be >= 0")
	}
	if c.Trading.NotionalUSD <= 0 {
		errs = append(errs, "trading: notional_usd must be > 0")
	}
	if c.Trading.CooldownTTL.Duration < 0 {
		errs = append(errs, "trading: cooldown_ttl must be >= 0")
	}

	// Scan
	if c.Scan.Interval.Duration <= 0 {
		errs = append(errs, "scan: interval must be > 0")
	}
	if c.Scan.MaxUntilResolution.Duration <= 0 {
		errs = append(errs, "scan: max_until_resolution must be > 0")
	}
	if c.Scan.MinLiquidity < 0 {
		errs = append(errs, "scan: min_liquidity must be >= 0")
	}
	if c.Scan.QuoteTTL.Duration <= 0 {
		errs = append(errs, "scan: quote_ttl must be > 0")
	}

	// Reconcile
	if c.Reconcile.Interval.Duration <= 0 {
		errs = append(errs, "reconcile: interval must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
