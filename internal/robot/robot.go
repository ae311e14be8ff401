// Package robot runs the trading cycle: fetch the latest bars, upsert them,
// refresh indicators, evaluate signals, dispatch trades and wait for the next
// bar, for as long as the market session is open.
package robot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trading-robot/internal/barstore"
	"trading-robot/internal/execution"
	"trading-robot/internal/feed"
	"trading-robot/internal/indicator"
	"trading-robot/internal/logger"
	"trading-robot/internal/metrics"
	"trading-robot/internal/model"
	"trading-robot/internal/signal"
)

// Gate decides whether to keep running and paces the loop.
type Gate interface {
	IsOpen() bool
	WaitUntilNextBoundary(ctx context.Context, last time.Time) error
}

// Archiver stores ingested bars.
type Archiver interface {
	WriteBars(ctx context.Context, bars []model.Bar) error
}

// Publisher fans bars and signals out to other consumers.
type Publisher interface {
	PublishBars(ctx context.Context, bars []model.Bar) error
	PublishSignals(ctx context.Context, res signal.Result) error
}

// Config is the strategy the robot runs.
type Config struct {
	Symbols     []string
	BarSize     int
	BarType     string
	HistoryDays int
	Indicators  []indicator.Spec
	Rules       []signal.Rule
	AuditPath   string // order documents written at startup, empty skips
}

// Deps are the robot's collaborators. History, Archive, Publisher, Metrics
// and Health are optional.
type Deps struct {
	History   feed.Historical
	Live      feed.Live
	Gate      Gate
	Dispatch  *execution.Dispatch
	Archive   Archiver
	Publisher Publisher
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Logger    *slog.Logger
	Now       func() time.Time
}

// Robot owns the bar store, indicator engine and signal evaluator and drives
// them from one goroutine.
type Robot struct {
	cfg  Config
	deps Deps

	store     *barstore.Store
	engine    *indicator.Engine
	evaluator *signal.Evaluator
	log       *slog.Logger

	cycles int64
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	Fetched  int
	Changed  int
	Refresh  indicator.RefreshStats
	Signals  signal.Result
	Outcomes []execution.Outcome
	FetchErr error
}

// New registers the indicators and rules. Any registration error is returned
// before anything runs.
func New(cfg Config, deps Deps) (*Robot, error) {
	if deps.Live == nil || deps.Gate == nil || deps.Dispatch == nil {
		return nil, errors.New("robot: live feed, gate and dispatch are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if _, err := model.BarSpan(cfg.BarSize, cfg.BarType); err != nil {
		return nil, fmt.Errorf("robot: %w", err)
	}

	store := barstore.New()
	engine := indicator.NewEngine(store)
	for _, spec := range cfg.Indicators {
		if err := engine.Register(spec); err != nil {
			return nil, fmt.Errorf("robot: indicator %s: %w", spec.Name, err)
		}
	}
	evaluator := signal.New(engine)
	for _, rule := range cfg.Rules {
		if err := evaluator.Register(rule); err != nil {
			return nil, fmt.Errorf("robot: rule %s/%s: %w", rule.Left, rule.Right, err)
		}
	}

	r := &Robot{
		cfg:       cfg,
		deps:      deps,
		store:     store,
		engine:    engine,
		evaluator: evaluator,
		log:       deps.Logger,
	}
	if m := deps.Metrics; m != nil {
		prev := deps.Dispatch.OnOutcome
		deps.Dispatch.OnOutcome = func(o execution.Outcome) {
			m.Orders.WithLabelValues(string(o.Intent), outcomeStatus(o)).Inc()
			if prev != nil {
				prev(o)
			}
		}
	}
	return r, nil
}

func outcomeStatus(o execution.Outcome) string {
	if o.Err != nil && o.Status == "" {
		return "ERROR"
	}
	return string(o.Status)
}

// Store returns the bar store.
func (r *Robot) Store() *barstore.Store { return r.store }

// Engine returns the indicator engine.
func (r *Robot) Engine() *indicator.Engine { return r.engine }

// Bootstrap loads HistoryDays of history (when a historical source is set),
// computes the indicators over it and writes the order audit document.
func (r *Robot) Bootstrap(ctx context.Context) error {
	if r.cfg.AuditPath != "" {
		if err := execution.WriteOrderStrategies(r.cfg.AuditPath, r.deps.Dispatch.Trades().Trades()); err != nil {
			return fmt.Errorf("robot: audit: %w", err)
		}
	}
	if r.deps.History == nil || r.cfg.HistoryDays <= 0 {
		return nil
	}
	end := r.deps.Now().UTC()
	start := end.AddDate(0, 0, -r.cfg.HistoryDays)
	bars, err := r.deps.History.Fetch(ctx, r.cfg.Symbols, start, end, r.cfg.BarSize, r.cfg.BarType)
	if err != nil {
		return fmt.Errorf("robot: history: %w", err)
	}
	changed := r.store.Upsert(bars...)
	r.archive(ctx, bars)
	st := r.engine.Refresh()
	r.log.Info("history loaded",
		"bars", len(bars), "changed", changed, "symbols", st.Symbols,
		"from", start.Format(time.RFC3339), "to", end.Format(time.RFC3339))
	return nil
}

// Run bootstraps and then cycles while the gate is open. It returns nil when
// the session closes or ctx is cancelled.
func (r *Robot) Run(ctx context.Context) error {
	if err := r.Bootstrap(ctx); err != nil {
		return err
	}
	for r.open() {
		if ctx.Err() != nil {
			break
		}
		r.Cycle(ctx)
		if err := r.deps.Gate.WaitUntilNextBoundary(ctx, r.store.LastTS()); err != nil {
			break
		}
	}
	r.log.Info("robot stopped", "cycles", r.cycles, "reason", r.stopReason(ctx))
	return nil
}

func (r *Robot) open() bool {
	open := r.deps.Gate.IsOpen()
	if r.deps.Metrics != nil {
		r.deps.Metrics.SetMarketOpen(open)
	}
	return open
}

func (r *Robot) stopReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return "cancelled"
	}
	return "session closed"
}

// Cycle runs one fetch, refresh, evaluate and dispatch pass. Feed errors are
// reported and the cycle continues with whatever bars arrived. Dispatch runs
// to completion even if ctx is cancelled meanwhile.
func (r *Robot) Cycle(ctx context.Context) CycleReport {
	r.cycles++
	start := time.Now()
	ctx = logger.WithTraceID(ctx, logger.CycleTraceID(r.cycles, r.deps.Now()))
	attrs := logger.Attrs(ctx)

	var rep CycleReport
	bars, err := r.deps.Live.FetchLatest(ctx)
	if err != nil {
		rep.FetchErr = err
		r.log.Warn("fetch latest failed", append(attrs, "err", err)...)
		if r.deps.Metrics != nil {
			r.deps.Metrics.FetchErrors.WithLabelValues("live").Inc()
		}
	}
	rep.Fetched = len(bars)
	rep.Changed = r.store.Upsert(bars...)
	r.archive(ctx, bars)

	refreshStart := time.Now()
	rep.Refresh = r.engine.Refresh()
	refreshDur := time.Since(refreshStart)

	rep.Signals = r.evaluator.Evaluate()
	r.publish(ctx, bars, rep.Signals)

	dctx := context.WithoutCancel(ctx)
	rep.Outcomes = r.deps.Dispatch.Execute(dctx, rep.Signals, r.refPrices())
	rep.Outcomes = append(rep.Outcomes, r.deps.Dispatch.Reconcile(dctx)...)

	r.log.Info("cycle",
		append(attrs,
			"fetched", rep.Fetched, "changed", rep.Changed,
			"rebuilt", rep.Refresh.Rebuilt, "rewound", rep.Refresh.Rewound,
			"buys", rep.Signals.Buys(), "sells", rep.Signals.Sells(),
			"orders", len(rep.Outcomes),
			"ownership", r.deps.Dispatch.Book().Snapshot())...)

	if m := r.deps.Metrics; m != nil {
		for _, b := range bars {
			m.BarsIngested.WithLabelValues(b.Symbol).Inc()
		}
		m.BarsChanged.Add(float64(rep.Changed))
		m.ObserveRefresh(rep.Refresh, refreshDur)
		m.ObserveSignals(rep.Signals)
		book := r.deps.Dispatch.Book()
		for _, sym := range r.deps.Dispatch.Trades().Symbols() {
			m.Ownership.WithLabelValues(sym).Set(float64(book.State(sym)))
		}
		if last := r.store.LastTS(); !last.IsZero() {
			m.LastBarAge.Set(r.deps.Now().Sub(last).Seconds())
		}
		m.CycleDur.Observe(time.Since(start).Seconds())
		m.Cycles.Inc()
	}
	if r.deps.Health != nil {
		r.deps.Health.RecordCycle(true, r.store.LastTS(), rep.FetchErr == nil)
	}
	return rep
}

// refPrices maps each symbol to its latest close, the paper fill reference.
func (r *Robot) refPrices() map[string]float64 {
	out := make(map[string]float64)
	for _, sym := range r.store.Symbols() {
		if b, ok := r.store.Last(sym); ok {
			out[sym] = b.Close
		}
	}
	return out
}

func (r *Robot) archive(ctx context.Context, bars []model.Bar) {
	if r.deps.Archive == nil || len(bars) == 0 {
		return
	}
	if err := r.deps.Archive.WriteBars(ctx, bars); err != nil {
		r.log.Warn("archive failed", append(logger.Attrs(ctx), "bars", len(bars), "err", err)...)
	}
}

func (r *Robot) publish(ctx context.Context, bars []model.Bar, res signal.Result) {
	p := r.deps.Publisher
	if p == nil {
		return
	}
	failed := false
	if err := p.PublishBars(ctx, bars); err != nil {
		failed = true
		r.log.Warn("publish bars failed", append(logger.Attrs(ctx), "err", err)...)
	}
	if err := p.PublishSignals(ctx, res); err != nil {
		failed = true
		r.log.Warn("publish signals failed", append(logger.Attrs(ctx), "err", err)...)
	}
	if failed && r.deps.Metrics != nil {
		r.deps.Metrics.PublishErrors.Inc()
	}
}
