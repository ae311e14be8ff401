// Package barstore holds the rolling, multi-symbol OHLCV series the robot
// trades on.
//
// Every symbol owns a series sorted by timestamp with no duplicates. Bars are
// upserted by (symbol, ts): a later bar with the same key replaces the earlier
// one. The store remembers, per symbol, the lowest index whose content changed
// since the last TakeDirty so the indicator engine can recompute only what moved.
//
// Not safe for concurrent use; the robot loop is the only writer.
package barstore

import (
	"sort"
	"time"

	"trading-robot/internal/model"
)

// Store is an ordered, multi-symbol time-series container of bars.
type Store struct {
	series map[string][]model.Bar

	// dirty[symbol] = lowest index changed since the last TakeDirty
	dirty map[string]int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		series: make(map[string][]model.Bar, 16),
		dirty:  make(map[string]int, 16),
	}
}

// Upsert inserts or replaces bars by (symbol, ts) and keeps every series sorted.
// Bars without a symbol or timestamp are ignored. Returns the number of bars
// that changed the store; re-upserting an identical bar is a no-op.
func (s *Store) Upsert(bars ...model.Bar) int {
	switch len(bars) {
	case 0:
		return 0
	case 1:
		b := bars[0]
		if !valid(b) {
			return 0
		}
		b.TS = b.TS.UTC()
		if s.upsertOne(b) {
			return 1
		}
		return 0
	}

	// Bulk path: partition by symbol, keeping arrival order within each symbol
	bySymbol := make(map[string][]model.Bar, 4)
	for _, b := range bars {
		if !valid(b) {
			continue
		}
		b.TS = b.TS.UTC()
		bySymbol[b.Symbol] = append(bySymbol[b.Symbol], b)
	}

	changed := 0
	for sym, batch := range bySymbol {
		if len(batch) == 1 {
			if s.upsertOne(batch[0]) {
				changed++
			}
			continue
		}
		changed += s.merge(sym, normalize(batch))
	}
	return changed
}

// upsertOne is the live-ticking path: O(1) append when the bar is newer than
// everything stored, binary-search insert/replace otherwise.
func (s *Store) upsertOne(b model.Bar) bool {
	cur := s.series[b.Symbol]
	n := len(cur)

	if n == 0 || b.TS.After(cur[n-1].TS) {
		s.series[b.Symbol] = append(cur, b)
		s.markDirty(b.Symbol, n)
		return true
	}

	idx := sort.Search(n, func(i int) bool { return !cur[i].TS.Before(b.TS) })
	if idx < n && cur[idx].TS.Equal(b.TS) {
		if cur[idx].Equal(b) {
			return false
		}
		cur[idx] = b
		s.markDirty(b.Symbol, idx)
		return true
	}

	cur = append(cur, model.Bar{})
	copy(cur[idx+1:], cur[idx:])
	cur[idx] = b
	s.series[b.Symbol] = cur
	s.markDirty(b.Symbol, idx)
	return true
}

// merge folds a sorted, de-duplicated batch into the symbol's series.
// Batch bars win on equal timestamps.
func (s *Store) merge(sym string, batch []model.Bar) int {
	cur := s.series[sym]
	n := len(cur)

	if n == 0 || batch[0].TS.After(cur[n-1].TS) {
		s.series[sym] = append(cur, batch...)
		s.markDirty(sym, n)
		return len(batch)
	}

	out := make([]model.Bar, 0, n+len(batch))
	first := -1
	changed := 0
	i, j := 0, 0
	for i < n || j < len(batch) {
		switch {
		case j == len(batch) || (i < n && cur[i].TS.Before(batch[j].TS)):
			out = append(out, cur[i])
			i++
			continue
		case i == n || batch[j].TS.Before(cur[i].TS):
			if first < 0 {
				first = len(out)
			}
			changed++
			out = append(out, batch[j])
			j++
		default: // same timestamp
			if !cur[i].Equal(batch[j]) {
				if first < 0 {
					first = len(out)
				}
				changed++
			}
			out = append(out, batch[j])
			i++
			j++
		}
	}

	s.series[sym] = out
	if first >= 0 {
		s.markDirty(sym, first)
	}
	return changed
}

func (s *Store) markDirty(sym string, idx int) {
	if cur, ok := s.dirty[sym]; !ok || idx < cur {
		s.dirty[sym] = idx
	}
}

// TakeDirty returns the per-symbol lowest changed index since the previous
// call and clears the marks.
func (s *Store) TakeDirty() map[string]int {
	d := s.dirty
	s.dirty = make(map[string]int, len(d))
	return d
}

// Latest returns the last n bars for symbol, or fewer if the series is shorter.
// Unknown symbols yield an empty result.
func (s *Store) Latest(symbol string, n int) []model.Bar {
	cur := s.series[symbol]
	if n <= 0 || len(cur) == 0 {
		return []model.Bar{}
	}
	if n > len(cur) {
		n = len(cur)
	}
	out := make([]model.Bar, n)
	copy(out, cur[len(cur)-n:])
	return out
}

// Range returns bars for symbol with start <= ts <= end.
func (s *Store) Range(symbol string, start, end time.Time) []model.Bar {
	cur := s.series[symbol]
	lo := sort.Search(len(cur), func(i int) bool { return !cur[i].TS.Before(start) })
	hi := sort.Search(len(cur), func(i int) bool { return cur[i].TS.After(end) })
	if lo >= hi {
		return []model.Bar{}
	}
	out := make([]model.Bar, hi-lo)
	copy(out, cur[lo:hi])
	return out
}

// Last returns the newest bar for symbol.
func (s *Store) Last(symbol string) (model.Bar, bool) {
	cur := s.series[symbol]
	if len(cur) == 0 {
		return model.Bar{}, false
	}
	return cur[len(cur)-1], true
}

// LastTS returns the newest timestamp across all symbols (zero if empty).
func (s *Store) LastTS() time.Time {
	var last time.Time
	for _, cur := range s.series {
		if n := len(cur); n > 0 && cur[n-1].TS.After(last) {
			last = cur[n-1].TS
		}
	}
	return last
}

// Len returns the number of bars stored for symbol.
func (s *Store) Len(symbol string) int {
	return len(s.series[symbol])
}

// At returns the i-th bar (ascending) of symbol.
func (s *Store) At(symbol string, i int) (model.Bar, bool) {
	cur := s.series[symbol]
	if i < 0 || i >= len(cur) {
		return model.Bar{}, false
	}
	return cur[i], true
}

// View exposes the symbol's series without copying. The slice is read-only
// and only valid until the next Upsert.
func (s *Store) View(symbol string) []model.Bar {
	return s.series[symbol]
}

// Symbols returns all known symbols, sorted.
func (s *Store) Symbols() []string {
	out := make([]string, 0, len(s.series))
	for sym := range s.series {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// All returns every bar ordered by (symbol, ts). For display/debugging only.
func (s *Store) All() []model.Bar {
	total := 0
	for _, cur := range s.series {
		total += len(cur)
	}
	out := make([]model.Bar, 0, total)
	for _, sym := range s.Symbols() {
		out = append(out, s.series[sym]...)
	}
	return out
}

// normalize sorts a batch by timestamp, keeping the last arrival for duplicate keys.
func normalize(batch []model.Bar) []model.Bar {
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].TS.Before(batch[j].TS) })
	out := batch[:0]
	for _, b := range batch {
		if n := len(out); n > 0 && out[n-1].TS.Equal(b.TS) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func valid(b model.Bar) bool {
	return b.Symbol != "" && !b.TS.IsZero()
}
