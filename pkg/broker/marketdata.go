package broker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"trading-robot/internal/model"
)

// HistoryRequest selects a price history window.
type HistoryRequest struct {
	Symbol        string
	Start, End    time.Time
	Frequency     int    // e.g. 1, 5, 15
	FrequencyType string // minute, daily, weekly
	ExtendedHours bool
}

// Candle is one price history row. Datetime is unix milliseconds.
type Candle struct {
	Datetime int64   `json:"datetime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume"`
}

// Bar converts the candle to a model.Bar for symbol.
func (c Candle) Bar(symbol string) model.Bar {
	return model.Bar{
		Symbol: symbol,
		TS:     time.UnixMilli(c.Datetime).UTC(),
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
	}
}

// PriceHistory returns the bars of one symbol in [Start, End], ascending.
func (c *Client) PriceHistory(ctx context.Context, req HistoryRequest) ([]model.Bar, error) {
	if req.Frequency <= 0 {
		req.Frequency = 1
	}
	if req.FrequencyType == "" {
		req.FrequencyType = "minute"
	}
	params := map[string]any{
		"startDate":             req.Start.UnixMilli(),
		"endDate":               req.End.UnixMilli(),
		"frequency":             req.Frequency,
		"frequencyType":         req.FrequencyType,
		"needExtendedHoursData": req.ExtendedHours,
	}
	var res struct {
		Candles []Candle `json:"candles"`
		Empty   bool     `json:"empty"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "api.price.history", map[string]string{"symbol": req.Symbol}, params, &res); err != nil {
		return nil, fmt.Errorf("price history %s: %w", req.Symbol, err)
	}
	bars := make([]model.Bar, 0, len(res.Candles))
	for _, cd := range res.Candles {
		bars = append(bars, cd.Bar(req.Symbol))
	}
	return bars, nil
}

// Quote is the latest trade snapshot of a symbol.
type Quote struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"lastPrice"`
	BidPrice  float64 `json:"bidPrice"`
	AskPrice  float64 `json:"askPrice"`
	TradeTime int64   `json:"tradeTimeInLong"`
}

// Quotes returns the latest quote per symbol.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	params := map[string]any{"symbol": strings.Join(symbols, ",")}
	if err := c.doRequest(ctx, http.MethodGet, "api.quotes", nil, params, &out); err != nil {
		return nil, fmt.Errorf("quotes: %w", err)
	}
	return out, nil
}
