package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-robot/internal/model"
	"trading-robot/internal/signal"
)

// Channel names used for pub/sub fan-out.
const (
	ChannelBars    = "pub:bars"
	ChannelSignals = "pub:signals"
)

// SignalKey is where the latest verdict of a symbol is kept.
func SignalKey(symbol string) string { return "signal:latest:" + symbol }

// LatestBarKey is where the latest bar of a symbol is kept.
func LatestBarKey(symbol string) string { return "bar:latest:" + symbol }

// SignalEvent is the JSON payload published for each symbol per cycle.
type SignalEvent struct {
	Symbol string    `json:"symbol"`
	At     time.Time `json:"at"`
	Buy    bool      `json:"buy"`
	Sell   bool      `json:"sell"`
}

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	StreamMaxLen int64         // approximate cap per bars stream, 0 = unbounded
	LatestTTL    time.Duration // TTL of latest-value keys, 0 = none
	MaxBacklog   int           // commands kept while the breaker is open
	MaxFailures  int
	Cooldown     time.Duration
}

// DefaultPublisherConfig returns the defaults used by the robot.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		StreamMaxLen: 10000,
		LatestTTL:    24 * time.Hour,
		MaxBacklog:   5000,
		MaxFailures:  5,
		Cooldown:     10 * time.Second,
	}
}

type command func(ctx context.Context, pipe goredis.Pipeliner)

// Publisher writes bars and signals to Redis in pipelines.
// While the breaker is open, commands are held in a bounded backlog and
// replayed ahead of the next successful write; the oldest are dropped first.
type Publisher struct {
	client  *goredis.Client
	cfg     PublisherConfig
	breaker *Breaker

	mu      sync.Mutex
	backlog []command
	dropped int64

	// OnBreakerChange, if set, sees every breaker transition.
	OnBreakerChange func(BreakerState)
}

// NewPublisher wraps an existing client.
func NewPublisher(client *goredis.Client, cfg PublisherConfig) *Publisher {
	if cfg.MaxBacklog <= 0 {
		cfg.MaxBacklog = DefaultPublisherConfig().MaxBacklog
	}
	p := &Publisher{client: client, cfg: cfg, breaker: NewBreaker(cfg.MaxFailures, cfg.Cooldown)}
	p.breaker.OnStateChange = func(from, to BreakerState) {
		log.Printf("[redis-pub] breaker %s -> %s", from, to)
		if p.OnBreakerChange != nil {
			p.OnBreakerChange(to)
		}
	}
	return p
}

// Breaker exposes the publisher's breaker for health reporting.
func (p *Publisher) Breaker() *Breaker { return p.breaker }

// Backlog returns the number of queued commands and how many were dropped.
func (p *Publisher) Backlog() (queued int, dropped int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog), p.dropped
}

// PublishBars appends bars to their streams, updates the latest-bar keys
// and announces them on ChannelBars.
func (p *Publisher) PublishBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	cmds := make([]command, 0, len(bars))
	for i := range bars {
		b := bars[i]
		data := b.JSON()
		cmds = append(cmds, func(ctx context.Context, pipe goredis.Pipeliner) {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: b.StreamKey(),
				MaxLen: p.cfg.StreamMaxLen,
				Approx: p.cfg.StreamMaxLen > 0,
				Values: map[string]interface{}{"data": string(data)},
			})
			pipe.Set(ctx, LatestBarKey(b.Symbol), data, p.cfg.LatestTTL)
			pipe.Publish(ctx, ChannelBars, data)
		})
	}
	return p.run(ctx, cmds)
}

// PublishSignals stores and announces one SignalEvent per symbol in res.
func (p *Publisher) PublishSignals(ctx context.Context, res signal.Result) error {
	if len(res.Verdicts) == 0 {
		return nil
	}
	cmds := make([]command, 0, len(res.Verdicts))
	for sym, v := range res.Verdicts {
		data, err := json.Marshal(SignalEvent{Symbol: sym, At: res.At, Buy: v.Buy, Sell: v.Sell})
		if err != nil {
			return fmt.Errorf("marshal signal %s: %w", sym, err)
		}
		key := SignalKey(sym)
		cmds = append(cmds, func(ctx context.Context, pipe goredis.Pipeliner) {
			pipe.Set(ctx, key, data, p.cfg.LatestTTL)
			pipe.Publish(ctx, ChannelSignals, data)
		})
	}
	return p.run(ctx, cmds)
}

func (p *Publisher) run(ctx context.Context, cmds []command) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := append(p.backlog, cmds...)
	err := p.breaker.Do(func() error {
		pipe := p.client.Pipeline()
		for _, c := range all {
			c(ctx, pipe)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err == nil {
		p.backlog = nil
		return nil
	}

	if over := len(all) - p.cfg.MaxBacklog; over > 0 {
		p.dropped += int64(over)
		all = all[over:]
	}
	p.backlog = all
	if errors.Is(err, ErrCircuitOpen) {
		return err
	}
	return fmt.Errorf("redis publish: %w", err)
}
