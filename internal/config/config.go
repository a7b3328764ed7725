package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App     AppConfig     `yaml:"app"`
	Logging LoggingConfig `yaml:"logging"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Scoring ScoringConfig `yaml:"scoring"`
	Windows WindowsConfig `yaml:"windows"`
	Signals SignalsConfig `yaml:"signals"`
	Gate    GateConfig    `yaml:"gate"`
	State   StateConfig   `yaml:"state"`
	Feed    FeedConfig    `yaml:"feed"`
	Archive ArchiveConfig `yaml:"archive"`
	Dedupe  DedupeConfig  `yaml:"dedupe"`
	PubSub  PubSubConfig  `yaml:"pubsub"`
	Notify  NotifyConfig  `yaml:"notify"`
	API     APIConfig     `yaml:"api"`
}

type AppConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type IngestConfig struct {
	DataBase    string        `yaml:"data_base"`
	GammaBase   string        `yaml:"gamma_base"`
	Limit       int           `yaml:"limit"`
	Timeout     time.Duration `yaml:"timeout"`
	MinInterval time.Duration `yaml:"min_interval"`
	MaxRetries  int           `yaml:"max_retries"`
	UserAgent   string        `yaml:"user_agent"`
}

type ScoringConfig struct {
	MinNotional float64 `yaml:"min_notional"`
	MinScore    int     `yaml:"min_score"`
}

type WindowsConfig struct {
	Fast         time.Duration `yaml:"fast"`
	Accumulation time.Duration `yaml:"accumulation"`
	MaxPerMarket int           `yaml:"max_per_market"`
}

type SignalsConfig struct {
	PriceMove     float64 `yaml:"price_move"`     // absolute price range over the fast window
	Heat          float64 `yaml:"heat"`           // summed notional over the fast window
	Participation int     `yaml:"participation"`  // distinct wallets over the fast window
	WhaleNotional float64 `yaml:"whale_notional"` // single-wallet sum over the accumulation window
}

type GateConfig struct {
	WatcherCooldown time.Duration            `yaml:"watcher_cooldown"`
	SignalCooldown  time.Duration            `yaml:"signal_cooldown"`
	Cooldowns       map[string]time.Duration `yaml:"cooldowns"` // per alert type override
	MaxPerDay       int                      `yaml:"max_per_day"`
}

type StateConfig struct {
	Path          string        `yaml:"path"`
	Keep          time.Duration `yaml:"keep"`
	MaxSeenTrades int           `yaml:"max_seen_trades"`
	MaxPerWallet  int           `yaml:"max_per_wallet"`
}

type FeedConfig struct {
	Out       string `yaml:"out"`
	OutJSONL  string `yaml:"out_jsonl"`
	MaxAlerts int    `yaml:"max_alerts"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	Enabled bool                   `yaml:"enabled"`
	DSN     string                 `yaml:"dsn"`
	Writer  ClickHouseWriterConfig `yaml:"writer"`
}

type ArchiveConfig struct {
	Dir        string           `yaml:"dir"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type DedupeConfig struct {
	Backend string        `yaml:"backend"` // memory|redis
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type NotifyConfig struct {
	DiscordWebhookURL string        `yaml:"discord_webhook_url"`
	Timeout           time.Duration `yaml:"timeout"`
	Format            string        `yaml:"format"` // stdout rendering: text or json
}

type RateLimitConfig struct {
	RefillPerSec int `yaml:"refill_per_sec"`
	Burst        int `yaml:"burst"`
}

type APIConfig struct {
	Addr         string          `yaml:"addr"`
	ReadTimeout  time.Duration   `yaml:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout"`
	IdleTimeout  time.Duration   `yaml:"idle_timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// Default returns the configuration with all documented defaults filled in.
func Default() *Config {
	return &Config{
		App: AppConfig{
			PollInterval:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Ingest: IngestConfig{
			DataBase:    "https://data-api.polymarket.com",
			GammaBase:   "https://gamma-api.polymarket.com",
			Limit:       500,
			Timeout:     10 * time.Second,
			MinInterval: 100 * time.Millisecond,
			MaxRetries:  3,
			UserAgent:   "pmwatch/0.1.0",
		},
		Scoring: ScoringConfig{MinNotional: 2000, MinScore: 3},
		Windows: WindowsConfig{
			Fast:         30 * time.Minute,
			Accumulation: 6 * time.Hour,
			MaxPerMarket: 500,
		},
		Signals: SignalsConfig{
			PriceMove:     0.08,
			Heat:          20_000,
			Participation: 5,
			WhaleNotional: 25_000,
		},
		Gate: GateConfig{
			WatcherCooldown: time.Hour,
			SignalCooldown:  6 * time.Hour,
			MaxPerDay:       5,
		},
		State: StateConfig{
			Path:          "state/state.json",
			Keep:          14 * 24 * time.Hour,
			MaxSeenTrades: 5000,
			MaxPerWallet:  400,
		},
		Feed: FeedConfig{
			Out:       "docs/alerts.json",
			OutJSONL:  "docs/alerts.jsonl",
			MaxAlerts: 200,
		},
		Archive: ArchiveConfig{
			Dir: "archive",
			ClickHouse: ClickHouseConfig{
				Writer: ClickHouseWriterConfig{
					BatchMaxRows:     1000,
					BatchMaxInterval: 200 * time.Millisecond,
					MaxRetries:       2,
					RetryBackoff:     200 * time.Millisecond,
				},
			},
		},
		Dedupe: DedupeConfig{Backend: "memory", TTL: 24 * time.Hour},
		Notify: NotifyConfig{Timeout: 10 * time.Second, Format: "text"},
		API: APIConfig{
			Addr:         ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			RateLimit:    RateLimitConfig{RefillPerSec: 10, Burst: 20},
		},
	}
}

// Load reads yaml config over the defaults. An empty path keeps defaults.
// PMWATCH_DISCORD_WEBHOOK_URL overrides the webhook so the secret stays out
// of committed yaml.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err = yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("PMWATCH_DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Notify.DiscordWebhookURL = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scoring.MinNotional <= 0 {
		return fmt.Errorf("scoring.min_notional must be positive")
	}
	if c.Windows.Fast <= 0 || c.Windows.Accumulation <= 0 {
		return fmt.Errorf("window durations must be positive")
	}
	if c.Windows.Accumulation < c.Windows.Fast {
		return fmt.Errorf("windows.accumulation must be >= windows.fast")
	}
	if c.Gate.MaxPerDay < 0 {
		return fmt.Errorf("gate.max_per_day must not be negative")
	}
	if c.Ingest.Limit <= 0 || c.Ingest.Limit > 500 {
		c.Ingest.Limit = 500
	}
	switch c.Dedupe.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("dedupe.backend must be memory or redis, got %q", c.Dedupe.Backend)
	}
	switch c.Notify.Format {
	case "":
		c.Notify.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("notify.format must be text or json, got %q", c.Notify.Format)
	}
	return nil
}

// CooldownFor resolves the cooldown for an alert type, falling back to the
// signal default.
func (g GateConfig) CooldownFor(alertType string) time.Duration {
	if d, ok := g.Cooldowns[alertType]; ok && d > 0 {
		return d
	}
	return g.SignalCooldown
}
