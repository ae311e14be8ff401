package indicator

import (
	"fmt"
	"math"
	"sort"

	"trading-robot/internal/barstore"
	"trading-robot/internal/model"
)

// symbolState holds the indicator columns and incremental state for one symbol.
type symbolState struct {
	processed int // bars consumed so far

	calcs []Indicator
	out   [][]float64 // out[k][i] = value of indicator k at bar i (NaN if undefined)

	// checkpoint is the state before the last processed bar, so a replaced
	// latest bar can be re-fed without rebuilding the whole series.
	checkpoint []Indicator
}

// RefreshStats summarizes what a Refresh did.
type RefreshStats struct {
	Symbols     int
	Bars        int // bars fed through the indicators
	Incremental int // symbols extended append-only
	Rewound     int // symbols whose last bar was replaced
	Rebuilt     int // symbols recomputed from scratch
}

// Engine maintains named indicator columns per symbol over a bar store.
// Not safe for concurrent use.
type Engine struct {
	store *barstore.Store

	specs   []Spec
	sources []column
	names   map[string]int
	columns map[string]column

	state map[string]*symbolState
}

// NewEngine creates an indicator engine bound to store.
func NewEngine(store *barstore.Store) *Engine {
	cols := make(map[string]column, len(barColumns)+8)
	for name, acc := range barColumns {
		cols[name] = column{bar: acc, ind: -1}
	}
	return &Engine{
		store:   store,
		names:   make(map[string]int, 8),
		columns: cols,
		state:   make(map[string]*symbolState, 16),
	}
}

// Register adds an indicator and backfills it over every stored bar.
// Fails with ErrDuplicateIndicator if the name or output column is taken and
// with ErrMissingColumn if the source column does not exist.
func (e *Engine) Register(spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	spec = spec.withDefaults()

	if _, ok := e.names[spec.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateIndicator, spec.Name)
	}
	if _, ok := e.columns[spec.Output]; ok {
		return fmt.Errorf("%w: output column %q already exists", ErrDuplicateIndicator, spec.Output)
	}
	src, ok := e.columns[spec.Source]
	if !ok {
		return fmt.Errorf("%w: %q (source of %s)", ErrMissingColumn, spec.Source, spec.Name)
	}

	// Bring existing indicators up to date so every symbol is fully processed
	e.Refresh()

	k := len(e.specs)
	e.specs = append(e.specs, spec)
	e.sources = append(e.sources, src)
	e.names[spec.Name] = k
	e.columns[spec.Output] = column{ind: k}

	for sym, st := range e.state {
		e.backfill(st, e.store.View(sym), k)
	}
	return nil
}

// Refresh recomputes indicator values for every symbol the store marked dirty
// since the last refresh. Appended bars are fed incrementally; a replaced
// latest bar rewinds one step from the checkpoint; anything older rebuilds the
// symbol. The result always equals a full recompute.
func (e *Engine) Refresh() RefreshStats {
	dirty := e.store.TakeDirty()
	for _, sym := range e.store.Symbols() {
		if _, ok := e.state[sym]; !ok {
			dirty[sym] = 0
		}
	}

	var stats RefreshStats
	for sym, from := range dirty {
		bars := e.store.View(sym)
		st, ok := e.state[sym]
		if !ok {
			st = e.newSymbolState()
			e.state[sym] = st
		}

		switch {
		case from >= st.processed:
			from = st.processed
			stats.Incremental++
		case from == st.processed-1 && st.checkpoint != nil:
			st.rewind(from)
			stats.Rewound++
		default:
			e.reset(st)
			from = 0
			stats.Rebuilt++
		}

		stats.Symbols++
		stats.Bars += len(bars) - from
		e.advance(st, bars, from)
	}
	return stats
}

// Recompute rebuilds every indicator column of symbol from scratch.
func (e *Engine) Recompute(symbol string) {
	st, ok := e.state[symbol]
	if !ok {
		st = e.newSymbolState()
		e.state[symbol] = st
	}
	e.reset(st)
	e.advance(st, e.store.View(symbol), 0)
}

func (e *Engine) newSymbolState() *symbolState {
	st := &symbolState{}
	e.reset(st)
	return st
}

func (e *Engine) reset(st *symbolState) {
	st.processed = 0
	st.checkpoint = nil
	st.calcs = make([]Indicator, len(e.specs))
	st.out = make([][]float64, len(e.specs))
	for k, spec := range e.specs {
		st.calcs[k], _ = New(spec.Kind, spec.Period)
	}
}

// rewind restores the state to just before bar index from (== processed-1).
func (st *symbolState) rewind(from int) {
	st.calcs = cloneAll(st.checkpoint)
	for k := range st.out {
		st.out[k] = st.out[k][:from]
	}
	st.processed = from
}

// advance feeds bars[from:] through every indicator in registration order.
func (e *Engine) advance(st *symbolState, bars []model.Bar, from int) {
	last := len(bars) - 1
	for i := from; i <= last; i++ {
		if i == last {
			st.checkpoint = cloneAll(st.calcs)
		}
		for k := range e.specs {
			e.step(st, k, bars, i)
		}
	}
	st.processed = len(bars)
}

// backfill computes a newly registered indicator k over bars[:processed].
func (e *Engine) backfill(st *symbolState, bars []model.Bar, k int) {
	calc, _ := New(e.specs[k].Kind, e.specs[k].Period)
	st.calcs = append(st.calcs, calc)
	st.out = append(st.out, make([]float64, 0, st.processed))

	var cp Indicator
	for i := 0; i < st.processed; i++ {
		if i == st.processed-1 {
			cp = calc.Clone()
		}
		e.step(st, k, bars, i)
	}
	if st.checkpoint != nil && cp != nil {
		st.checkpoint = append(st.checkpoint, cp)
	}
}

// step computes indicator k at bar i. Undefined inputs are skipped, so an
// indicator over a derived column starts its warm-up at the first defined value.
func (e *Engine) step(st *symbolState, k int, bars []model.Bar, i int) {
	v := math.NaN()
	if x, ok := e.source(st, k, bars, i); ok {
		calc := st.calcs[k]
		calc.Update(x)
		if calc.Ready() {
			v = calc.Value()
		}
	}
	st.out[k] = append(st.out[k][:i], v)
}

func (e *Engine) source(st *symbolState, k int, bars []model.Bar, i int) (float64, bool) {
	src := e.sources[k]
	if src.bar != nil {
		return src.bar(&bars[i]), true
	}
	v := st.out[src.ind][i]
	return v, !math.IsNaN(v)
}

// Value returns the latest value of column for symbol. ok is false when the
// symbol or column is unknown or the value is still undefined (warm-up).
func (e *Engine) Value(symbol, column string) (float64, bool) {
	st, ok := e.state[symbol]
	if !ok || st.processed == 0 {
		return 0, false
	}
	return e.ValueAt(symbol, column, st.processed-1)
}

// ValueAt returns the value of column at bar index i for symbol.
func (e *Engine) ValueAt(symbol, column string, i int) (float64, bool) {
	col, ok := e.columns[column]
	st, known := e.state[symbol]
	if !ok || !known || i < 0 || i >= st.processed {
		return 0, false
	}
	if col.bar != nil {
		b, ok := e.store.At(symbol, i)
		if !ok {
			return 0, false
		}
		return col.bar(&b), true
	}
	v := st.out[col.ind][i]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Column returns a copy of an indicator column for symbol (NaN where undefined).
// Returns nil for unknown symbols or non-indicator columns.
func (e *Engine) Column(symbol, column string) []float64 {
	col, ok := e.columns[column]
	st, known := e.state[symbol]
	if !ok || !known || col.bar != nil {
		return nil
	}
	out := make([]float64, len(st.out[col.ind]))
	copy(out, st.out[col.ind])
	return out
}

// Latest returns every defined indicator value at symbol's newest processed bar.
func (e *Engine) Latest(symbol string) map[string]float64 {
	out := make(map[string]float64, len(e.specs))
	for _, spec := range e.specs {
		if v, ok := e.Value(symbol, spec.Output); ok {
			out[spec.Output] = v
		}
	}
	return out
}

// HasColumn reports whether name resolves to a bar or indicator column.
func (e *Engine) HasColumn(name string) bool {
	_, ok := e.columns[name]
	return ok
}

// Columns returns all column names, sorted.
func (e *Engine) Columns() []string {
	out := make([]string, 0, len(e.columns))
	for name := range e.columns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Specs returns the registered specs in registration order.
func (e *Engine) Specs() []Spec {
	out := make([]Spec, len(e.specs))
	copy(out, e.specs)
	return out
}

// Symbols returns the symbols the engine has processed, sorted.
func (e *Engine) Symbols() []string {
	out := make([]string, 0, len(e.state))
	for sym := range e.state {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Processed returns the number of bars consumed for symbol.
func (e *Engine) Processed(symbol string) int {
	if st, ok := e.state[symbol]; ok {
		return st.processed
	}
	return 0
}

func cloneAll(in []Indicator) []Indicator {
	out := make([]Indicator, len(in))
	for i, ind := range in {
		out[i] = ind.Clone()
	}
	return out
}

// Store returns the bar store the engine reads from.
func (e *Engine) Store() *barstore.Store { return e.store }
