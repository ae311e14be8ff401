package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus is the robot's liveness report served on /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	MarketOpen      bool
	LastCycle       time.Time
	LastBar         time.Time
	FeedOK          bool
	RedisEnabled    bool
	RedisConnected  bool
	RedisLatencyMs  float64
	SQLiteEnabled   bool
	SQLiteOK        bool
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	now func() time.Time
}

// NewHealthStatus returns a status with the feed assumed healthy.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{FeedOK: true, StartedAt: time.Now(), now: time.Now}
}

// RecordCycle notes a completed cycle and the newest bar time.
func (h *HealthStatus) RecordCycle(open bool, lastBar time.Time, feedOK bool) {
	h.mu.Lock()
	h.MarketOpen = open
	h.LastCycle = h.now()
	if !lastBar.IsZero() {
		h.LastBar = lastBar
	}
	h.FeedOK = feedOK
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckSQLite pings the archive database.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker probes the optional dependencies every interval until
// ctx is cancelled. Nil dependencies are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if db != nil {
			h.CheckSQLite(probeCtx, db)
		}
	}
	probe()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// HealthReport is the JSON body of /healthz.
type HealthReport struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	MarketOpen      bool    `json:"market_open"`
	LastCycle       string  `json:"last_cycle,omitempty"`
	LastBar         string  `json:"last_bar,omitempty"`
	FeedOK          bool    `json:"feed_ok"`
	RedisConnected  *bool   `json:"redis_connected,omitempty"`
	RedisLatencyMs  float64 `json:"redis_latency_ms,omitempty"`
	SQLiteOK        *bool   `json:"sqlite_ok,omitempty"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms,omitempty"`
}

// Report builds the current report and its HTTP status code.
// Degraded when the feed or an enabled dependency fails.
func (h *HealthStatus) Report() (HealthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r := HealthReport{
		Status:     "healthy",
		Uptime:     h.now().Sub(h.StartedAt).Round(time.Second).String(),
		MarketOpen: h.MarketOpen,
		FeedOK:     h.FeedOK,
	}
	if !h.LastCycle.IsZero() {
		r.LastCycle = h.LastCycle.UTC().Format(time.RFC3339)
	}
	if !h.LastBar.IsZero() {
		r.LastBar = h.LastBar.UTC().Format(time.RFC3339)
	}
	healthy := h.FeedOK
	if h.RedisEnabled {
		ok := h.RedisConnected
		r.RedisConnected, r.RedisLatencyMs = &ok, h.RedisLatencyMs
		healthy = healthy && ok
	}
	if h.SQLiteEnabled {
		ok := h.SQLiteOK
		r.SQLiteOK, r.SQLiteLatencyMs = &ok, h.SQLiteLatencyMs
		healthy = healthy && ok
	}
	if !healthy {
		r.Status = "degraded"
		return r, http.StatusServiceUnavailable
	}
	return r, http.StatusOK
}

// ServeHTTP handles /healthz.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}
