// Package config defines the top-level configuration for the swing bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SWINGBOT_* environment variables.
type Config struct {
	Exchange Exchange       `toml:"exchange"`
	Trading  TradingConfig  `toml:"trading"`
	Engine   EngineConfig   `toml:"engine"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// Exchange holds Binance futures API credentials and endpoints.
type Exchange struct {
	ApiKey              string `toml:"api_key"`
	ApiSecret           string `toml:"api_secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
	Testnet             bool   `toml:"testnet"`
	WsHost              string `toml:"ws_host"`
	RecvWindowMs        int    `toml:"recv_window_ms"`
}

// TradingConfig holds the symbol universe and account-level trading rules.
type TradingConfig struct {
	Symbols      []string `toml:"symbols"`
	Timeframe    string   `toml:"timeframe"`
	TickInterval duration `toml:"tick_interval"`
	Leverage     int      `toml:"leverage"`
	MarginType   string   `toml:"margin_type"` // "isolated" or "crossed"
	PaperTrading bool     `toml:"paper_trading"`
	PaperBalance float64  `toml:"paper_balance"` // simulated starting equity

	RiskFraction  float64 `toml:"risk_fraction"`
	MinRewardRisk float64 `toml:"min_reward_risk"`

	MinQuoteVolume    float64  `toml:"min_quote_volume"`
	MaxSpreadFraction float64  `toml:"max_spread_fraction"`
	MaxCorrelated     int      `toml:"max_correlated"`
	CountManual       bool     `toml:"count_manual"` // manual positions count toward the correlation limit
	Sessions          []string `toml:"sessions"`     // "HH:MM-HH:MM" UTC windows; empty = always
	Blackouts         []string `toml:"blackouts"`

	AllowCounterTrendInTrend bool `toml:"allow_counter_trend_in_trend"`
	AllowTrendInRange        bool `toml:"allow_trend_in_range"`

	SyncOnStartup bool `toml:"sync_on_startup"`
	ImportManual  bool `toml:"import_manual"`
}

// EngineConfig holds the lifecycle engine thresholds.
type EngineConfig struct {
	TrendADXMin   float64 `toml:"trend_adx_min"`
	RSIOversold   float64 `toml:"rsi_oversold"`
	RSIOverbought float64 `toml:"rsi_overbought"`

	SwingBuffer    float64 `toml:"swing_buffer"`
	CounterATRMult float64 `toml:"counter_atr_mult"`
	RangeTighten   float64 `toml:"range_tighten"`
	TrendTPWiden   float64 `toml:"trend_tp_widen"`

	BreakevenProgress float64 `toml:"breakeven_progress"`
	LockInBuffer      float64 `toml:"lock_in_buffer"`
	FinalATRMult      float64 `toml:"final_atr_mult"`

	PyramidMaxAdds     int     `toml:"pyramid_max_adds"`
	PyramidAddFraction float64 `toml:"pyramid_add_fraction"`

	PartialExits bool    `toml:"partial_exits"`
	P50Fraction  float64 `toml:"p50_fraction"`
	P75Fraction  float64 `toml:"p75_fraction"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"` // empty disables request authentication

	RateLimit  int      `toml:"rate_limit"` // requests per client per window; 0 disables
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	DailySummaryHour  int      `toml:"daily_summary_hour"` // UTC hour; negative disables
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: Exchange{
			Testnet:      false,
			WsHost:       "wss://fstream.binance.com",
			RecvWindowMs: 5000,
		},
		Trading: TradingConfig{
			Symbols:           []string{"BTCUSDT", "ETHUSDT"},
			Timeframe:         "1h",
			TickInterval:      duration{30 * time.Second},
			Leverage:          3,
			MarginType:        "isolated",
			PaperTrading:      false,
			PaperBalance:      10_000,
			RiskFraction:      0.01,
			MinRewardRisk:     1.5,
			MinQuoteVolume:    5_000_000,
			MaxSpreadFraction: 0.001,
			MaxCorrelated:     3,
			CountManual:       false,
			SyncOnStartup:     true,
			ImportManual:      true,
		},
		Engine: EngineConfig{
			TrendADXMin:        25,
			RSIOversold:        30,
			RSIOverbought:      70,
			SwingBuffer:        0.002,
			CounterATRMult:     1.5,
			RangeTighten:       0.7,
			TrendTPWiden:       1.25,
			BreakevenProgress:  0.02,
			LockInBuffer:       0.10,
			FinalATRMult:       0.5,
			PyramidMaxAdds:     2,
			PyramidAddFraction: 0.5,
			PartialExits:       true,
			P50Fraction:        0.40,
			P75Fraction:        0.30,
		},
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "swingbot",
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
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "swingbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events:           []string{"position_opened", "breakeven", "tier_advance", "partial_exit", "position_closed", "error"},
			DailySummaryHour: 0,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"paper":   true,
	"monitor": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// tradingModes are the modes that submit real orders and therefore need
// exchange credentials.
var tradingModes = map[string]bool{
	"trade": true,
	"full":  true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper, monitor, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange: trading modes need credentials from some source.
	if tradingModes[mode] && !c.Trading.PaperTrading {
		if c.Exchange.ApiKey == "" {
			errs = append(errs, "exchange: api_key is required for mode "+c.Mode)
		}
		if c.Exchange.ApiSecret == "" && c.Exchange.EncryptedSecretPath == "" {
			errs = append(errs, "exchange: either api_secret or encrypted_secret_path must be set for mode "+c.Mode)
		}
		if c.Exchange.EncryptedSecretPath != "" && c.Exchange.SecretPassword == "" {
			errs = append(errs, "exchange: secret_password is required when encrypted_secret_path is set")
		}
	}

	// Trading
	if len(c.Trading.Symbols) == 0 {
		errs = append(errs, "trading: symbols must not be empty")
	}
	if c.Trading.Timeframe == "" {
		errs = append(errs, "trading: timeframe must not be empty")
	}
	if c.Trading.Leverage < 1 || c.Trading.Leverage > 125 {
		errs = append(errs, fmt.Sprintf("trading: leverage must be 1-125, got %d", c.Trading.Leverage))
	}
	if mt := strings.ToLower(c.Trading.MarginType); mt != "isolated" && mt != "crossed" {
		errs = append(errs, fmt.Sprintf("trading: margin_type must be isolated or crossed, got %q", c.Trading.MarginType))
	}
	if (mode == "paper" || c.Trading.PaperTrading) && c.Trading.PaperBalance <= 0 {
		errs = append(errs, fmt.Sprintf("trading: paper_balance must be > 0, got %g", c.Trading.PaperBalance))
	}
	if c.Trading.RiskFraction <= 0 || c.Trading.RiskFraction > 0.05 {
		errs = append(errs, fmt.Sprintf("trading: risk_fraction must be in (0, 0.05], got %g", c.Trading.RiskFraction))
	}
	if c.Trading.MinRewardRisk < 0 {
		errs = append(errs, "trading: min_reward_risk must be >= 0")
	}
	if c.Trading.MaxCorrelated < 1 {
		errs = append(errs, "trading: max_correlated must be >= 1")
	}
	for _, w := range append(append([]string{}, c.Trading.Sessions...), c.Trading.Blackouts...) {
		if _, _, err := ParseWindow(w); err != nil {
			errs = append(errs, fmt.Sprintf("trading: bad session window %q: %v", w, err))
		}
	}

	// Engine
	if c.Engine.BreakevenProgress <= 0 || c.Engine.BreakevenProgress >= 0.25 {
		errs = append(errs, fmt.Sprintf("engine: breakeven_progress must be in (0, 0.25), got %g", c.Engine.BreakevenProgress))
	}
	if c.Engine.LockInBuffer < 0 || c.Engine.LockInBuffer >= 0.25 {
		errs = append(errs, fmt.Sprintf("engine: lock_in_buffer must be in [0, 0.25), got %g", c.Engine.LockInBuffer))
	}
	if c.Engine.PyramidMaxAdds < 0 || c.Engine.PyramidMaxAdds > 2 {
		errs = append(errs, fmt.Sprintf("engine: pyramid_max_adds must be 0-2, got %d", c.Engine.PyramidMaxAdds))
	}
	if c.Engine.PartialExits {
		if c.Engine.P50Fraction <= 0 || c.Engine.P75Fraction <= 0 ||
			c.Engine.P50Fraction+c.Engine.P75Fraction >= 1 {
			errs = append(errs, "engine: p50_fraction and p75_fraction must be positive and sum to less than 1")
		}
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseWindow parses a "HH:MM-HH:MM" UTC window into start/end minutes
// since midnight. Windows may wrap midnight.
func ParseWindow(s string) (start, end int, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM-HH:MM")
	}
	if start, err = parseMinutes(parts[0]); err != nil {
		return 0, 0, err
	}
	if end, err = parseMinutes(parts[1]); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseMinutes(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("bad time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}
