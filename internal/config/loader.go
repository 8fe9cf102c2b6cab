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
// built-in defaults, applies SWINGBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known SWINGBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.ApiKey, "SWINGBOT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.ApiSecret, "SWINGBOT_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.EncryptedSecretPath, "SWINGBOT_EXCHANGE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Exchange.SecretPassword, "SWINGBOT_EXCHANGE_SECRET_PASSWORD")
	setBool(&cfg.Exchange.Testnet, "SWINGBOT_EXCHANGE_TESTNET")
	setStr(&cfg.Exchange.WsHost, "SWINGBOT_EXCHANGE_WS_HOST")
	setInt(&cfg.Exchange.RecvWindowMs, "SWINGBOT_EXCHANGE_RECV_WINDOW_MS")

	// ── Trading ──
	setStringSlice(&cfg.Trading.Symbols, "SWINGBOT_TRADING_SYMBOLS")
	setStr(&cfg.Trading.Timeframe, "SWINGBOT_TRADING_TIMEFRAME")
	setDuration(&cfg.Trading.TickInterval, "SWINGBOT_TRADING_TICK_INTERVAL")
	setInt(&cfg.Trading.Leverage, "SWINGBOT_TRADING_LEVERAGE")
	setStr(&cfg.Trading.MarginType, "SWINGBOT_TRADING_MARGIN_TYPE")
	setBool(&cfg.Trading.PaperTrading, "SWINGBOT_TRADING_PAPER_TRADING")
	setFloat64(&cfg.Trading.PaperBalance, "SWINGBOT_TRADING_PAPER_BALANCE")
	setFloat64(&cfg.Trading.RiskFraction, "SWINGBOT_TRADING_RISK_FRACTION")
	setFloat64(&cfg.Trading.MinRewardRisk, "SWINGBOT_TRADING_MIN_REWARD_RISK")
	setFloat64(&cfg.Trading.MinQuoteVolume, "SWINGBOT_TRADING_MIN_QUOTE_VOLUME")
	setFloat64(&cfg.Trading.MaxSpreadFraction, "SWINGBOT_TRADING_MAX_SPREAD_FRACTION")
	setInt(&cfg.Trading.MaxCorrelated, "SWINGBOT_TRADING_MAX_CORRELATED")
	setBool(&cfg.Trading.CountManual, "SWINGBOT_TRADING_COUNT_MANUAL")
	setStringSlice(&cfg.Trading.Sessions, "SWINGBOT_TRADING_SESSIONS")
	setStringSlice(&cfg.Trading.Blackouts, "SWINGBOT_TRADING_BLACKOUTS")
	setBool(&cfg.Trading.AllowCounterTrendInTrend, "SWINGBOT_TRADING_ALLOW_COUNTER_TREND_IN_TREND")
	setBool(&cfg.Trading.AllowTrendInRange, "SWINGBOT_TRADING_ALLOW_TREND_IN_RANGE")
	setBool(&cfg.Trading.SyncOnStartup, "SWINGBOT_TRADING_SYNC_ON_STARTUP")
	setBool(&cfg.Trading.ImportManual, "SWINGBOT_TRADING_IMPORT_MANUAL")

	// ── Engine ──
	setFloat64(&cfg.Engine.TrendADXMin, "SWINGBOT_ENGINE_TREND_ADX_MIN")
	setFloat64(&cfg.Engine.RSIOversold, "SWINGBOT_ENGINE_RSI_OVERSOLD")
	setFloat64(&cfg.Engine.RSIOverbought, "SWINGBOT_ENGINE_RSI_OVERBOUGHT")
	setFloat64(&cfg.Engine.SwingBuffer, "SWINGBOT_ENGINE_SWING_BUFFER")
	setFloat64(&cfg.Engine.CounterATRMult, "SWINGBOT_ENGINE_COUNTER_ATR_MULT")
	setFloat64(&cfg.Engine.RangeTighten, "SWINGBOT_ENGINE_RANGE_TIGHTEN")
	setFloat64(&cfg.Engine.TrendTPWiden, "SWINGBOT_ENGINE_TREND_TP_WIDEN")
	setFloat64(&cfg.Engine.BreakevenProgress, "SWINGBOT_ENGINE_BREAKEVEN_PROGRESS")
	setFloat64(&cfg.Engine.LockInBuffer, "SWINGBOT_ENGINE_LOCK_IN_BUFFER")
	setFloat64(&cfg.Engine.FinalATRMult, "SWINGBOT_ENGINE_FINAL_ATR_MULT")
	setInt(&cfg.Engine.PyramidMaxAdds, "SWINGBOT_ENGINE_PYRAMID_MAX_ADDS")
	setFloat64(&cfg.Engine.PyramidAddFraction, "SWINGBOT_ENGINE_PYRAMID_ADD_FRACTION")
	setBool(&cfg.Engine.PartialExits, "SWINGBOT_ENGINE_PARTIAL_EXITS")
	setFloat64(&cfg.Engine.P50Fraction, "SWINGBOT_ENGINE_P50_FRACTION")
	setFloat64(&cfg.Engine.P75Fraction, "SWINGBOT_ENGINE_P75_FRACTION")

	// ── Database ──
	setStr(&cfg.Database.DSN, "SWINGBOT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "SWINGBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "SWINGBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "SWINGBOT_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "SWINGBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "SWINGBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SWINGBOT_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "SWINGBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SWINGBOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SWINGBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SWINGBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SWINGBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SWINGBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SWINGBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SWINGBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SWINGBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SWINGBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SWINGBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SWINGBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SWINGBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SWINGBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SWINGBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SWINGBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SWINGBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "SWINGBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "SWINGBOT_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SWINGBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SWINGBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SWINGBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SWINGBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SWINGBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SWINGBOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SWINGBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SWINGBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SWINGBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SWINGBOT_NOTIFY_EVENTS")
	setInt(&cfg.Notify.DailySummaryHour, "SWINGBOT_NOTIFY_DAILY_SUMMARY_HOUR")

	// ── Top-level ──
	setStr(&cfg.Mode, "SWINGBOT_MODE")
	setStr(&cfg.LogLevel, "SWINGBOT_LOG_LEVEL")
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
