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
// built-in defaults, applies CROSSBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known CROSSBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "CROSSBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.FunderAddress, "CROSSBOT_WALLET_FUNDER_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "CROSSBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "CROSSBOT_WALLET_KEY_PASSWORD")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "CROSSBOT_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "CROSSBOT_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "CROSSBOT_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WsURL, "CROSSBOT_KALSHI_WS_URL")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "CROSSBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "CROSSBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsHost, "CROSSBOT_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "CROSSBOT_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "CROSSBOT_POLYMARKET_SIGNATURE_TYPE")
	setStr(&cfg.Polymarket.ApiKey, "CROSSBOT_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "CROSSBOT_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "CROSSBOT_POLYMARKET_API_PASSPHRASE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CROSSBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CROSSBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CROSSBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CROSSBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CROSSBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CROSSBOT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "CROSSBOT_S3_RETENTION_DAYS")

	// ── Matching ──
	setFloat64(&cfg.Matching.Threshold, "CROSSBOT_MATCHING_THRESHOLD")

	// ── Trading ──
	setFloat64(&cfg.Trading.FeeRateKalshi, "CROSSBOT_TRADING_FEE_RATE_KALSHI")
	setFloat64(&cfg.Trading.FeeRatePolymarket, "CROSSBOT_TRADING_FEE_RATE_POLYMARKET")
	setFloat64(&cfg.Trading.MinProfit, "CROSSBOT_TRADING_MIN_PROFIT")
	setFloat64(&cfg.Trading.NotionalUSD, "CROSSBOT_TRADING_NOTIONAL_USD")
	setDuration(&cfg.Trading.CooldownTTL, "CROSSBOT_TRADING_COOLDOWN_TTL")

	// ── Scan ──
	setDuration(&cfg.Scan.Interval, "CROSSBOT_SCAN_INTERVAL")
	setStringSlice(&cfg.Scan.Categories, "CROSSBOT_SCAN_CATEGORIES")
	setDuration(&cfg.Scan.MaxUntilResolution, "CROSSBOT_SCAN_MAX_UNTIL_RESOLUTION")
	setFloat64(&cfg.Scan.MinLiquidity, "CROSSBOT_SCAN_MIN_LIQUIDITY")
	setDuration(&cfg.Scan.QuoteTTL, "CROSSBOT_SCAN_QUOTE_TTL")

	// ── Reconcile ──
	setDuration(&cfg.Reconcile.Interval, "CROSSBOT_RECONCILE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CROSSBOT_MODE")
	setStr(&cfg.LogLevel, "CROSSBOT_LOG_LEVEL")
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
