package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trading-robot/internal/execution"
	"trading-robot/internal/indicator"
	"trading-robot/internal/signal"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoad_PaperDefaultsNeedNoBroker(t *testing.T) {
	setEnv(t, map[string]string{"FEED": "redis", "HISTORY_SOURCE": "sqlite", "PAPER_TRADING": ""})
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if !c.Paper || c.NeedsBroker() {
		t.Errorf("paper=%v needsBroker=%v", c.Paper, c.NeedsBroker())
	}
	if c.Poll != 5*time.Second || c.Settle != 2*time.Second || c.Session != "regular" {
		t.Errorf("defaults: %+v", c)
	}
	if c.AuditPath != "order_strategies/orders.json" || c.AlertMinLevel != "WARNING" {
		t.Errorf("defaults: %+v", c)
	}
}

func TestLoad_BrokerCredentialsRequired(t *testing.T) {
	setEnv(t, map[string]string{
		"FEED": "broker", "BROKER_API_KEY": "k", "BROKER_ACCOUNT_ID": "", "BROKER_USER": "",
		"BROKER_PASSWORD": "", "BROKER_TOTP_SECRET": "",
	})
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
	for _, key := range []string{"BROKER_ACCOUNT_ID", "BROKER_USER", "BROKER_PASSWORD", "BROKER_TOTP_SECRET"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not name %s: %v", key, err)
		}
	}
	if strings.Contains(err.Error(), "BROKER_API_KEY") {
		t.Errorf("set variable reported missing: %v", err)
	}
}

func TestLoad_BadValues(t *testing.T) {
	setEnv(t, map[string]string{
		"FEED": "carrier-pigeon", "HISTORY_SOURCE": "postgres",
		"PAPER_SLIPPAGE_BPS": "ten", "BAR_SETTLE": "2 seconds",
	})
	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"FEED", "POSTGRES_DSN", "PAPER_SLIPPAGE_BPS", "BAR_SETTLE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %s: %v", want, err)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("FEED=ws\nWS_URL=ws://feed:9001/bars\nREDIS_DB=3\n"), 0o644)

	t.Setenv("FEED", "redis") // already set wins
	t.Setenv("WS_URL", "")
	os.Unsetenv("WS_URL")
	t.Setenv("REDIS_DB", "")
	os.Unsetenv("REDIS_DB")

	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("FEED") != "redis" || os.Getenv("WS_URL") != "ws://feed:9001/bars" || os.Getenv("REDIS_DB") != "3" {
		t.Errorf("env after load: FEED=%s WS_URL=%s REDIS_DB=%s", os.Getenv("FEED"), os.Getenv("WS_URL"), os.Getenv("REDIS_DB"))
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing file should be ignored: %v", err)
	}
}

const fcelStrategy = `
symbols: [fcel, FCEL, sqqq]
bar:
  size: 1
  type: Minute
indicators:
  - {name: rsi14, kind: rsi, period: 14}
  - {name: sma200, kind: sma, period: 200}
  - {name: sma50, kind: SMA, period: 50}
  - {name: ema50, kind: ema, period: 50}
rules:
  - {left: sma50, right: sma200, buy: ">=", sell: "<="}
  - {name: rsi_band, left: rsi14, buy: "<", buy_level: 30, sell: gt, sell_level: 70}
trades:
  - symbol: fcel
    buy:
      id: long_enter
      intent: enter
      side: long
      order_type: mkt
      legs: [{quantity: 1}]
    sell:
      id: long_exit
      intent: EXIT
      side: long
      order_type: mkt
      legs: [{symbol: fcel, quantity: 1, asset_type: EQUITY}]
owned: [sqqq]
`

func writeStrategy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadStrategy(t *testing.T) {
	s, err := LoadStrategy(writeStrategy(t, fcelStrategy))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(s.Symbols, ",") != "FCEL,SQQQ" {
		t.Errorf("symbols = %v", s.Symbols)
	}
	if s.BarSize != 1 || s.BarType != "minute" || s.HistoryDays != 30 {
		t.Errorf("bar = %d %s, history %d", s.BarSize, s.BarType, s.HistoryDays)
	}
	if len(s.Indicators) != 4 || s.Indicators[2].Kind != indicator.KindSMA {
		t.Errorf("indicators = %+v", s.Indicators)
	}

	if len(s.Rules) != 2 {
		t.Fatalf("rules = %+v", s.Rules)
	}
	r := s.Rules[0]
	if r.Buy != signal.GE || r.Sell != signal.LE || r.Right != "sma200" {
		t.Errorf("crossover rule = %+v", r)
	}
	r = s.Rules[1]
	if !r.Threshold() || r.Buy != signal.LT || r.Sell != signal.GT || r.BuyLevel != 30 || r.SellLevel != 70 {
		t.Errorf("threshold rule = %+v", r)
	}

	pair, ok := s.Trades["FCEL"]
	if !ok {
		t.Fatalf("trades = %v", s.Trades)
	}
	if pair.Buy.OrderType != execution.Market || pair.Buy.Legs[0].Symbol != "FCEL" || pair.Buy.Legs[0].AssetType != "EQUITY" {
		t.Errorf("buy trade = %+v", pair.Buy)
	}
	if pair.Sell.Intent != execution.Exit || pair.Sell.Instruction() != "SELL" {
		t.Errorf("sell trade = %+v", pair.Sell)
	}
	if !s.Owned["SQQQ"] || s.Owned["FCEL"] {
		t.Errorf("owned = %v", s.Owned)
	}
}

func TestLoadStrategy_Errors(t *testing.T) {
	cases := map[string]struct {
		body string
		is   error
	}{
		"no symbols":   {body: "symbols: []\n"},
		"bad relation": {body: "symbols: [A]\nrules:\n  - {left: a, right: b, buy: '=>'}\n", is: signal.ErrInvalidRule},
		"bad kind":     {body: "symbols: [A]\nindicators:\n  - {name: m, kind: macd, period: 3}\n", is: indicator.ErrInvalidSpec},
		"bad bar":      {body: "symbols: [A]\nbar: {size: 1, type: month}\n"},
		"bad trade": {
			body: "symbols: [A]\ntrades:\n  - symbol: A\n    buy: {id: x, intent: enter, side: long, legs: []}\n",
			is:   execution.ErrInvalidTrade,
		},
	}
	for name, tc := range cases {
		_, err := LoadStrategy(writeStrategy(t, tc.body))
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if tc.is != nil && !errors.Is(err, tc.is) {
			t.Errorf("%s: error %v is not %v", name, err, tc.is)
		}
	}
	if _, err := LoadStrategy(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
