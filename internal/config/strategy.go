package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"trading-robot/internal/execution"
	"trading-robot/internal/indicator"
	"trading-robot/internal/model"
	"trading-robot/internal/signal"
)

// Strategy is what the robot trades and how.
type Strategy struct {
	Symbols     []string
	BarSize     int
	BarType     string
	HistoryDays int
	Indicators  []indicator.Spec
	Rules       []signal.Rule
	Trades      execution.TradeMap
	Owned       map[string]bool
}

// File layout (YAML):
//
//	symbols: [FCEL]
//	bar: {size: 1, type: minute}
//	history_days: 30
//	indicators:
//	  - {name: sma50, kind: sma, period: 50}
//	rules:
//	  - {left: sma50, right: sma200, buy: ">=", sell: "<="}
//	  - {left: rsi14, buy: "<=", buy_level: 30, sell: ">=", sell_level: 70}
//	trades:
//	  - symbol: FCEL
//	    buy:  {id: long_enter, intent: enter, side: long, order_type: mkt, legs: [{symbol: FCEL, quantity: 1}]}
//	    sell: {id: long_exit, intent: exit, side: long, order_type: mkt, legs: [{symbol: FCEL, quantity: 1}]}
//	owned: []
//
// Trades and ownership are lists because viper lower-cases map keys.
type strategyFile struct {
	Symbols []string `mapstructure:"symbols"`
	Bar     struct {
		Size int    `mapstructure:"size"`
		Type string `mapstructure:"type"`
	} `mapstructure:"bar"`
	HistoryDays int              `mapstructure:"history_days"`
	Indicators  []indicator.Spec `mapstructure:"indicators"`
	Rules       []ruleFile       `mapstructure:"rules"`
	Trades      []tradeFile      `mapstructure:"trades"`
	Owned       []string         `mapstructure:"owned"`
}

type ruleFile struct {
	Name      string  `mapstructure:"name"`
	Left      string  `mapstructure:"left"`
	Right     string  `mapstructure:"right"`
	Buy       string  `mapstructure:"buy"`
	Sell      string  `mapstructure:"sell"`
	BuyLevel  float64 `mapstructure:"buy_level"`
	SellLevel float64 `mapstructure:"sell_level"`
}

type tradeFile struct {
	Symbol string           `mapstructure:"symbol"`
	Buy    *execution.Trade `mapstructure:"buy"`
	Sell   *execution.Trade `mapstructure:"sell"`
}

// LoadStrategy reads and validates a strategy file. The format follows the
// file extension (yaml, json or toml).
func LoadStrategy(path string) (*Strategy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("bar.size", 1)
	v.SetDefault("bar.type", "minute")
	v.SetDefault("history_days", 30)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read strategy %s: %w", path, err)
	}
	var f strategyFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode strategy %s: %w", path, err)
	}
	s, err := f.build()
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", path, err)
	}
	return s, nil
}

func (f *strategyFile) build() (*Strategy, error) {
	s := &Strategy{
		BarSize:     f.Bar.Size,
		BarType:     strings.ToLower(f.Bar.Type),
		HistoryDays: f.HistoryDays,
		Trades:      make(execution.TradeMap, len(f.Trades)),
		Owned:       make(map[string]bool, len(f.Owned)),
	}
	if _, err := model.BarSpan(s.BarSize, s.BarType); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, sym := range f.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		s.Symbols = append(s.Symbols, sym)
	}
	if len(s.Symbols) == 0 {
		return nil, errors.New("no symbols")
	}

	for _, spec := range f.Indicators {
		kind, err := indicator.ParseKind(string(spec.Kind))
		if err != nil {
			return nil, fmt.Errorf("indicator %q: %w", spec.Name, err)
		}
		spec.Kind = kind
		s.Indicators = append(s.Indicators, spec)
	}

	for i, r := range f.Rules {
		buy, err := signal.ParseRelation(r.Buy)
		if err != nil {
			return nil, fmt.Errorf("rule %d buy: %w", i, err)
		}
		sell, err := signal.ParseRelation(r.Sell)
		if err != nil {
			return nil, fmt.Errorf("rule %d sell: %w", i, err)
		}
		s.Rules = append(s.Rules, signal.Rule{
			Name: r.Name, Left: r.Left, Right: r.Right,
			Buy: buy, Sell: sell, BuyLevel: r.BuyLevel, SellLevel: r.SellLevel,
		})
	}

	for _, t := range f.Trades {
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if sym == "" {
			return nil, errors.New("trade entry without symbol")
		}
		if _, dup := s.Trades[sym]; dup {
			return nil, fmt.Errorf("duplicate trades for %s", sym)
		}
		normalizeTrade(t.Buy, sym)
		normalizeTrade(t.Sell, sym)
		s.Trades[sym] = execution.TradePair{Buy: t.Buy, Sell: t.Sell}
	}
	if err := s.Trades.Validate(); err != nil {
		return nil, err
	}

	for _, sym := range f.Owned {
		s.Owned[strings.ToUpper(strings.TrimSpace(sym))] = true
	}
	return s, nil
}

// normalizeTrade accepts the short order types (mkt, lmt) and fills in the
// leg symbol and asset type.
func normalizeTrade(t *execution.Trade, sym string) {
	if t == nil {
		return
	}
	switch strings.ToLower(t.OrderType) {
	case "", "mkt", "market":
		t.OrderType = execution.Market
	case "lmt", "limit":
		t.OrderType = execution.Limit
	}
	t.Intent = execution.Intent(strings.ToLower(string(t.Intent)))
	t.Side = execution.Side(strings.ToLower(string(t.Side)))
	for i := range t.Legs {
		if t.Legs[i].Symbol == "" {
			t.Legs[i].Symbol = sym
		}
		t.Legs[i].Symbol = strings.ToUpper(t.Legs[i].Symbol)
		if t.Legs[i].AssetType == "" {
			t.Legs[i].AssetType = "EQUITY"
		}
	}
}
