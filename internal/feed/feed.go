// Package feed defines where bars come from: a Historical source for warm-up
// and backtests, and a Live source polled once per robot cycle.
package feed

import (
	"context"
	"time"

	"trading-robot/internal/model"
	"trading-robot/internal/store/postgres"
	"trading-robot/internal/store/redis"
)

// Historical returns the bars of symbols in [start, end] at a bar size such
// as (1, "minute"). Results are ordered by timestamp, then symbol.
type Historical interface {
	Fetch(ctx context.Context, symbols []string, start, end time.Time, barSize int, barType string) ([]model.Bar, error)
}

// Live returns the bars that became available since the previous call.
// It never blocks waiting for new data.
type Live interface {
	FetchLatest(ctx context.Context) ([]model.Bar, error)
}

var (
	_ Historical = (*postgres.Provider)(nil)
	_ Historical = (*Archive)(nil)
	_ Historical = (*BrokerHistorical)(nil)
	_ Live       = (*redis.StreamSource)(nil)
	_ Live       = (*BrokerLive)(nil)
	_ Live       = (*WSSource)(nil)
)

// Archive serves history from a bar archive such as the local SQLite store.
// The archive holds one bar size, so barSize and barType are only validated.
type Archive struct {
	Reader model.BarReader
}

// Fetch implements Historical.
func (a Archive) Fetch(ctx context.Context, symbols []string, start, end time.Time, barSize int, barType string) ([]model.Bar, error) {
	if _, err := model.BarSpan(barSize, barType); err != nil {
		return nil, err
	}
	var out []model.Bar
	for _, sym := range symbols {
		bars, err := a.Reader.ReadBars(ctx, sym, start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, bars...)
	}
	model.SortBars(out)
	return out, nil
}
