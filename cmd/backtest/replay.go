package main

import (
	"context"
	"time"

	"trading-robot/internal/model"
)

// replay serves archived bars one timestamp at a time. It is both the live
// feed and the session gate of a backtest run: the session stays open until
// every timestamp has been served.
type replay struct {
	groups [][]model.Bar
	next   int
	served int
}

func newReplay(bars []model.Bar) *replay {
	sorted := append([]model.Bar(nil), bars...)
	model.SortBars(sorted)
	r := &replay{}
	for i, b := range sorted {
		if i == 0 || !b.TS.Equal(sorted[i-1].TS) {
			r.groups = append(r.groups, nil)
		}
		r.groups[len(r.groups)-1] = append(r.groups[len(r.groups)-1], b)
	}
	return r
}

// FetchLatest returns the next timestamp's bars.
func (r *replay) FetchLatest(ctx context.Context) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.next >= len(r.groups) {
		return nil, nil
	}
	g := r.groups[r.next]
	r.next++
	r.served += len(g)
	return g, nil
}

func (r *replay) IsOpen() bool { return r.next < len(r.groups) }

func (r *replay) WaitUntilNextBoundary(ctx context.Context, _ time.Time) error {
	return ctx.Err()
}

// Now is the timestamp of the bars served last.
func (r *replay) Now() time.Time {
	if r.next == 0 {
		return time.Time{}
	}
	return r.groups[r.next-1][0].TS
}

func (r *replay) Replayed() int { return r.served }

// fillCount tallies fills per symbol and side.
type fillCount struct {
	Total    int
	BySymbol map[string]map[string]int // symbol -> side -> fills
}

func countFills(fills []model.Fill) fillCount {
	out := fillCount{BySymbol: make(map[string]map[string]int)}
	for _, f := range fills {
		out.Total++
		sides := out.BySymbol[f.Symbol]
		if sides == nil {
			sides = make(map[string]int)
			out.BySymbol[f.Symbol] = sides
		}
		sides[f.Side]++
	}
	return out
}
