// Package config loads the robot's runtime settings from the environment
// (optionally seeded from a .env file) and its strategy from a YAML file.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Feed sources.
const (
	FeedBroker = "broker"
	FeedRedis  = "redis"
	FeedWS     = "ws"
)

// Config holds the runtime settings.
type Config struct {
	// Broker REST credentials
	BrokerURL        string
	BrokerAPIKey     string
	BrokerAccountID  string
	BrokerUser       string
	BrokerPassword   string
	BrokerTOTPSecret string

	// Trading
	Paper       bool
	SlippageBps float64
	Session     string        // regular, pre, post, extended
	Poll        time.Duration // max sleep slice while waiting for a bar
	Settle      time.Duration // delay after a bar boundary before fetching

	// Feeds
	Feed        string // broker, redis, ws
	WSURL       string
	HistoryFrom string // broker, sqlite, postgres
	PostgresDSN string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPublish  bool
	SQLitePath    string // bar archive, empty disables
	JournalPath   string
	AuditPath     string
	MetricsAddr   string
	LogLevel      string
	StrategyPath  string

	// Alerts
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
	AlertMinLevel    string
}

// LoadDotEnv loads a .env file into the environment if it exists. Variables
// already set win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	log.Printf("[config] loaded %s", path)
	return nil
}

// Load reads the configuration from environment variables with defaults.
// Broker credentials are required unless trading on paper with a non-broker
// feed and non-broker history.
func Load() (*Config, error) {
	var e env
	c := &Config{
		BrokerURL:       e.get("BROKER_URL", "https://api.broker.example"),
		BrokerAPIKey:    e.get("BROKER_API_KEY", ""),
		BrokerAccountID: e.get("BROKER_ACCOUNT_ID", ""),

		Paper:       e.getBool("PAPER_TRADING", true),
		SlippageBps: e.getFloat("PAPER_SLIPPAGE_BPS", 0),
		Session:     e.get("MARKET_SESSION", "regular"),
		Poll:        e.getDuration("BAR_POLL_INTERVAL", 5*time.Second),
		Settle:      e.getDuration("BAR_SETTLE", 2*time.Second),

		Feed:        strings.ToLower(e.get("FEED", FeedBroker)),
		WSURL:       e.get("WS_URL", "ws://localhost:9001/bars"),
		HistoryFrom: strings.ToLower(e.get("HISTORY_SOURCE", "broker")),
		PostgresDSN: e.get("POSTGRES_DSN", ""),

		RedisAddr:     e.get("REDIS_ADDR", "localhost:6379"),
		RedisPassword: e.get("REDIS_PASSWORD", ""),
		RedisDB:       e.getInt("REDIS_DB", 0),
		RedisPublish:  e.getBool("REDIS_PUBLISH", false),
		SQLitePath:    e.get("SQLITE_PATH", "data/bars.db"),
		JournalPath:   e.get("JOURNAL_PATH", "data/journal.db"),
		AuditPath:     e.get("AUDIT_PATH", "order_strategies/orders.json"),
		MetricsAddr:   e.get("METRICS_ADDR", ":9090"),
		LogLevel:      e.get("LOG_LEVEL", "info"),
		StrategyPath:  e.get("STRATEGY_PATH", "strategy.yaml"),

		WebhookURL:       e.get("ALERT_WEBHOOK_URL", ""),
		TelegramBotToken: e.get("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   e.get("TELEGRAM_CHAT_ID", ""),
		AlertMinLevel:    strings.ToUpper(e.get("ALERT_MIN_LEVEL", "WARNING")),
	}

	if c.NeedsBroker() {
		c.BrokerAPIKey = e.must("BROKER_API_KEY")
		c.BrokerAccountID = e.must("BROKER_ACCOUNT_ID")
		c.BrokerUser = e.must("BROKER_USER")
		c.BrokerPassword = e.must("BROKER_PASSWORD")
		c.BrokerTOTPSecret = e.must("BROKER_TOTP_SECRET")
	}
	switch c.Feed {
	case FeedBroker, FeedRedis, FeedWS:
	default:
		e.fail(fmt.Errorf("FEED: unknown source %q", c.Feed))
	}
	switch c.HistoryFrom {
	case "broker", "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			e.fail(errors.New("POSTGRES_DSN required when HISTORY_SOURCE=postgres"))
		}
	default:
		e.fail(fmt.Errorf("HISTORY_SOURCE: unknown source %q", c.HistoryFrom))
	}
	if err := e.err(); err != nil {
		return nil, err
	}
	return c, nil
}

// NeedsBroker reports whether a broker session must be opened.
func (c *Config) NeedsBroker() bool {
	return !c.Paper || c.Feed == FeedBroker || c.HistoryFrom == "broker"
}

// env collects lookup failures so Load can report all of them at once.
type env struct {
	errs []error
}

func (e *env) fail(err error) { e.errs = append(e.errs, err) }

func (e *env) err() error { return errors.Join(e.errs...) }

func (e *env) must(key string) string {
	v := os.Getenv(key)
	if v == "" {
		e.fail(fmt.Errorf("required env var %s not set", key))
	}
	return v
}

func (e *env) get(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func (e *env) getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (e *env) getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *env) getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (e *env) getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
