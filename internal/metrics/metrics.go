// Package metrics exposes the robot's Prometheus metrics and the /healthz
// endpoint.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trading-robot/internal/indicator"
	"trading-robot/internal/signal"
)

// Metrics holds the robot's Prometheus collectors.
type Metrics struct {
	BarsIngested  *prometheus.CounterVec // labels: symbol
	BarsChanged   prometheus.Counter     // bars that changed the store
	FetchErrors   *prometheus.CounterVec // labels: source
	RefreshDur    prometheus.Histogram
	RefreshModes  *prometheus.CounterVec // labels: mode=incremental|rewound|rebuilt
	Signals       *prometheus.CounterVec // labels: symbol, side
	Orders        *prometheus.CounterVec // labels: intent, status
	Ownership     *prometheus.GaugeVec   // labels: symbol; 0=flat 1=pending entry 2=owned 3=pending exit
	CycleDur      prometheus.Histogram
	Cycles        prometheus.Counter
	MarketState   prometheus.Gauge // 0=closed, 1=open
	LastBarAge    prometheus.Gauge
	PublishErrors prometheus.Counter
	BreakerState  prometheus.Gauge // 0=closed, 1=open, 2=half-open
	WSReconnects  prometheus.Counter
	WSDropped     prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses the default registry.
func New(reg *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}

	fast := []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}
	m := &Metrics{
		BarsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robot_bars_ingested_total",
			Help: "Bars received from the live feed",
		}, []string{"symbol"}),
		BarsChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "robot_bars_changed_total",
			Help: "Bars that inserted or replaced a row in the bar store",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robot_fetch_errors_total",
			Help: "Feed fetch failures",
		}, []string{"source"}),
		RefreshDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "robot_indicator_refresh_duration_seconds",
			Help:    "Indicator refresh latency per cycle",
			Buckets: fast,
		}),
		RefreshModes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robot_indicator_refresh_symbols_total",
			Help: "Symbols refreshed, by refresh mode",
		}, []string{"mode"}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robot_signals_total",
			Help: "Buy/sell verdicts raised",
		}, []string{"symbol", "side"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robot_orders_total",
			Help: "Order outcomes by intent and status",
		}, []string{"intent", "status"}),
		Ownership: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "robot_ownership_state",
			Help: "Ownership state per symbol (0=flat, 1=pending entry, 2=owned, 3=pending exit)",
		}, []string{"symbol"}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "robot_cycle_duration_seconds",
			Help:    "Work time of one robot cycle, excluding the boundary wait",
			Buckets: prometheus.DefBuckets,
		}),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "robot_cycles_total",
			Help: "Completed robot cycles",
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "robot_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		LastBarAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "robot_last_bar_age_seconds",
			Help: "Wall-clock age of the newest bar in the store",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "robot_redis_publish_errors_total",
			Help: "Failed Redis publishes of bars or signals",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "robot_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "robot_ws_reconnects_total",
			Help: "WebSocket feed reconnections",
		}),
		WSDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "robot_ws_dropped_bars",
			Help: "Bars dropped because the WebSocket ring buffer was full",
		}),
		gatherer: gatherer,
	}

	registerer.MustRegister(
		m.BarsIngested,
		m.BarsChanged,
		m.FetchErrors,
		m.RefreshDur,
		m.RefreshModes,
		m.Signals,
		m.Orders,
		m.Ownership,
		m.CycleDur,
		m.Cycles,
		m.MarketState,
		m.LastBarAge,
		m.PublishErrors,
		m.BreakerState,
		m.WSReconnects,
		m.WSDropped,
	)
	return m
}

// ObserveRefresh records one indicator refresh.
func (m *Metrics) ObserveRefresh(st indicator.RefreshStats, d time.Duration) {
	m.RefreshDur.Observe(d.Seconds())
	m.RefreshModes.WithLabelValues("incremental").Add(float64(st.Incremental))
	m.RefreshModes.WithLabelValues("rewound").Add(float64(st.Rewound))
	m.RefreshModes.WithLabelValues("rebuilt").Add(float64(st.Rebuilt))
}

// ObserveSignals counts the raised verdicts of res.
func (m *Metrics) ObserveSignals(res signal.Result) {
	for sym, v := range res.Verdicts {
		if v.Buy {
			m.Signals.WithLabelValues(sym, "buy").Inc()
		}
		if v.Sell {
			m.Signals.WithLabelValues(sym, "sell").Inc()
		}
	}
}

// SetMarketOpen sets the market state gauge.
func (m *Metrics) SetMarketOpen(open bool) {
	if open {
		m.MarketState.Set(1)
	} else {
		m.MarketState.Set(0)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
