package feed

import (
	"context"
	"fmt"
	"log"
	"time"

	"trading-robot/internal/model"
	"trading-robot/pkg/broker"
)

// PriceHistorian is the part of the broker client the feeds need.
type PriceHistorian interface {
	PriceHistory(ctx context.Context, req broker.HistoryRequest) ([]model.Bar, error)
}

var _ PriceHistorian = (*broker.Client)(nil)

func frequencyType(barType string) string {
	switch barType {
	case "day", "daily", "d":
		return "daily"
	case "week", "weekly", "w":
		return "weekly"
	}
	return "minute"
}

// BrokerHistorical fetches history over the broker REST API, one request per symbol.
type BrokerHistorical struct {
	Client        PriceHistorian
	ExtendedHours bool
}

// Fetch implements Historical.
func (h *BrokerHistorical) Fetch(ctx context.Context, symbols []string, start, end time.Time, barSize int, barType string) ([]model.Bar, error) {
	if _, err := model.BarSpan(barSize, barType); err != nil {
		return nil, err
	}
	var out []model.Bar
	for _, sym := range symbols {
		bars, err := h.Client.PriceHistory(ctx, broker.HistoryRequest{
			Symbol:        sym,
			Start:         start,
			End:           end,
			Frequency:     barSize,
			FrequencyType: frequencyType(barType),
			ExtendedHours: h.ExtendedHours,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, bars...)
	}
	model.SortBars(out)
	return out, nil
}

// BrokerLive polls the price history endpoint for a short trailing window and
// returns each symbol's newest complete bar that has not been returned yet.
type BrokerLive struct {
	client  PriceHistorian
	symbols []string
	barSize int
	barType string
	span    time.Duration
	window  time.Duration
	now     func() time.Time
	last    map[string]time.Time
}

// NewBrokerLive polls symbols at the given bar size.
func NewBrokerLive(client PriceHistorian, symbols []string, barSize int, barType string) (*BrokerLive, error) {
	span, err := model.BarSpan(barSize, barType)
	if err != nil {
		return nil, err
	}
	return &BrokerLive{
		client:  client,
		symbols: symbols,
		barSize: barSize,
		barType: barType,
		span:    span,
		window:  15 * span,
		now:     time.Now,
		last:    make(map[string]time.Time, len(symbols)),
	}, nil
}

// FetchLatest implements Live.
func (l *BrokerLive) FetchLatest(ctx context.Context) ([]model.Bar, error) {
	end := l.now().UTC()
	start := end.Add(-l.window)
	var out []model.Bar
	for _, sym := range l.symbols {
		bars, err := l.client.PriceHistory(ctx, broker.HistoryRequest{
			Symbol:        sym,
			Start:         start,
			End:           end,
			Frequency:     l.barSize,
			FrequencyType: frequencyType(l.barType),
		})
		if err != nil {
			return out, fmt.Errorf("latest bar %s: %w", sym, err)
		}
		latest, ok := newestComplete(bars, end, l.span)
		if !ok {
			continue
		}
		if prev, seen := l.last[sym]; seen && !latest.TS.After(prev) {
			continue
		}
		l.last[sym] = latest.TS
		out = append(out, latest)
	}
	if len(out) == 0 {
		log.Printf("[feed-broker] no new bars for %d symbols", len(l.symbols))
	}
	model.SortBars(out)
	return out, nil
}

// newestComplete returns the newest bar whose interval has ended by now.
func newestComplete(bars []model.Bar, now time.Time, span time.Duration) (model.Bar, bool) {
	var best model.Bar
	found := false
	for _, b := range bars {
		if b.TS.Add(span).After(now) {
			continue
		}
		if !found || b.TS.After(best.TS) {
			best, found = b, true
		}
	}
	return best, found
}
