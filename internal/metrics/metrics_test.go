package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"trading-robot/internal/indicator"
	"trading-robot/internal/signal"
)

func TestMetrics_Observe(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRefresh(indicator.RefreshStats{Incremental: 2, Rewound: 1}, 3*time.Millisecond)
	m.ObserveSignals(signal.Result{Verdicts: map[string]signal.Verdict{
		"FCEL": {Buy: true},
		"SQQQ": {Buy: true, Sell: true},
		"TQQQ": {},
	}})
	m.SetMarketOpen(true)

	if v := testutil.ToFloat64(m.RefreshModes.WithLabelValues("incremental")); v != 2 {
		t.Errorf("incremental = %v", v)
	}
	if v := testutil.ToFloat64(m.RefreshModes.WithLabelValues("rebuilt")); v != 0 {
		t.Errorf("rebuilt = %v", v)
	}
	if v := testutil.ToFloat64(m.Signals.WithLabelValues("SQQQ", "sell")); v != 1 {
		t.Errorf("SQQQ sell = %v", v)
	}
	if n := testutil.CollectAndCount(m.Signals); n != 3 {
		t.Errorf("signal series = %d, want 3", n)
	}
	if v := testutil.ToFloat64(m.MarketState); v != 1 {
		t.Errorf("market state = %v", v)
	}
}

func TestServer_Endpoints(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Cycles.Inc()
	h := NewHealthStatus()
	h.RecordCycle(true, time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), true)

	srv := NewServer(":0", m, h)
	ts := httptest.NewServer(srv.srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "robot_cycles_total 1") {
		t.Errorf("metrics body missing cycles counter:\n%s", body)
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
	var rep HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.Status != "healthy" || !rep.MarketOpen || rep.LastBar != "2026-03-02T15:00:00Z" {
		t.Errorf("report = %+v", rep)
	}
	if rep.RedisConnected != nil {
		t.Error("redis should be omitted when not enabled")
	}
}

func TestHealth_Dependencies(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	h := NewHealthStatus()
	ctx := context.Background()
	h.CheckRedis(ctx, rdb)
	h.CheckSQLite(ctx, db)
	if rep, code := h.Report(); code != http.StatusOK || !*rep.RedisConnected || !*rep.SQLiteOK {
		t.Fatalf("expected healthy, got %d %+v", code, rep)
	}

	mr.Close()
	h.CheckRedis(ctx, rdb)
	rep, code := h.Report()
	if code != http.StatusServiceUnavailable || rep.Status != "degraded" || *rep.RedisConnected {
		t.Errorf("expected degraded after redis loss, got %d %+v", code, rep)
	}

	h.RecordCycle(false, time.Time{}, false)
	if rep, _ := h.Report(); rep.FeedOK {
		t.Error("feed failure not reported")
	}
}
