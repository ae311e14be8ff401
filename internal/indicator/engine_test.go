package indicator

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"trading-robot/internal/barstore"
	"trading-robot/internal/model"
)

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func mkBar(sym string, minute int, close float64) model.Bar {
	return model.Bar{
		Symbol: sym,
		TS:     t0.Add(time.Duration(minute) * time.Minute),
		Open:   close,
		High:   close + 0.5,
		Low:    close - 0.5,
		Close:  close,
		Volume: 1000,
	}
}

// walk returns a deterministic pseudo-random price path.
func walk(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 50.0
	for i := range out {
		p += rng.Float64()*2 - 1
		if p < 1 {
			p = 1
		}
		out[i] = p
	}
	return out
}

var testSpecs = []Spec{
	{Name: "rsi14", Kind: KindRSI, Period: 14},
	{Name: "rsi5", Kind: KindRSI, Period: 5},
	{Name: "sma3", Kind: KindSMA, Period: 3},
	{Name: "sma50", Kind: KindSMA, Period: 50},
	{Name: "ema10", Kind: KindEMA, Period: 10},
	{Name: "ema50", Kind: KindEMA, Period: 50},
	{Name: "ema_rsi", Kind: KindEMA, Period: 5, Source: "rsi14"},
}

func newEngine(t *testing.T, store *barstore.Store) *Engine {
	t.Helper()
	eng := NewEngine(store)
	for _, s := range testSpecs {
		if err := eng.Register(s); err != nil {
			t.Fatalf("Register(%s): %v", s.Name, err)
		}
	}
	return eng
}

// sameColumn compares two columns exactly, treating NaN == NaN.
func sameColumn(t *testing.T, label string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len %d, want %d", label, len(got), len(want))
	}
	for i := range got {
		if math.IsNaN(got[i]) && math.IsNaN(want[i]) {
			continue
		}
		if got[i] != want[i] {
			t.Fatalf("%s[%d]: got %v, want %v", label, i, got[i], want[i])
		}
	}
}

func TestEngine_IncrementalEqualsBatch(t *testing.T) {
	prices := walk(42, 300)

	incStore := barstore.New()
	inc := newEngine(t, incStore)
	for i, p := range prices {
		incStore.Upsert(mkBar("FCEL", i, p))
		inc.Refresh()
	}

	batchStore := barstore.New()
	bulk := make([]model.Bar, len(prices))
	for i, p := range prices {
		bulk[i] = mkBar("FCEL", i, p)
	}
	batchStore.Upsert(bulk...)
	batch := newEngine(t, batchStore)
	batch.Refresh()

	for _, s := range testSpecs {
		sameColumn(t, s.Name, inc.Column("FCEL", s.Name), batch.Column("FCEL", s.Name))
	}
}

func TestEngine_SMAMatchesDirectSum(t *testing.T) {
	prices := walk(3, 120)
	store := barstore.New()
	eng := NewEngine(store)
	if err := eng.Register(Spec{Name: "sma20", Kind: KindSMA, Period: 20}); err != nil {
		t.Fatal(err)
	}
	for i, p := range prices {
		store.Upsert(mkBar("FCEL", i, p))
	}
	eng.Refresh()

	for i := range prices {
		got, ok := eng.ValueAt("FCEL", "sma20", i)
		if i < 19 {
			if ok {
				t.Fatalf("sma20 defined at %d", i)
			}
			continue
		}
		sum := 0.0
		for _, p := range prices[i-19 : i+1] {
			sum += p
		}
		assertClose(t, "sma20", got, sum/20, 1e-9)
	}
}

func TestEngine_WarmupBoundaries(t *testing.T) {
	store := barstore.New()
	eng := NewEngine(store)
	for _, s := range []Spec{
		{Name: "sma5", Kind: KindSMA, Period: 5},
		{Name: "ema5", Kind: KindEMA, Period: 5},
		{Name: "rsi5", Kind: KindRSI, Period: 5},
	} {
		if err := eng.Register(s); err != nil {
			t.Fatal(err)
		}
	}
	closes := []float64{10, 11, 13, 12, 14, 15, 16}
	for i, c := range closes {
		store.Upsert(mkBar("FCEL", i, c))
	}
	eng.Refresh()

	for i := range closes {
		_, smaOK := eng.ValueAt("FCEL", "sma5", i)
		_, emaOK := eng.ValueAt("FCEL", "ema5", i)
		_, rsiOK := eng.ValueAt("FCEL", "rsi5", i)
		if smaOK != (i >= 4) || emaOK != (i >= 4) {
			t.Errorf("bar %d: sma ok=%v ema ok=%v", i, smaOK, emaOK)
		}
		if rsiOK != (i >= 5) {
			t.Errorf("bar %d: rsi ok=%v", i, rsiOK)
		}
	}

	// EMA seed is the SMA of the first p closes.
	seed, _ := eng.ValueAt("FCEL", "ema5", 4)
	assertClose(t, "ema seed", seed, 12.0, 1e-12)
	sma, _ := eng.ValueAt("FCEL", "sma5", 4)
	assertClose(t, "sma first", sma, 12.0, 1e-12)
}

func TestEngine_RSIStrictlyIncreasingIs100(t *testing.T) {
	store := barstore.New()
	eng := NewEngine(store)
	if err := eng.Register(Spec{Name: "rsi14", Kind: KindRSI, Period: 14}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 40; i++ {
		store.Upsert(mkBar("FCEL", i, float64(10+i)))
	}
	eng.Refresh()
	for i := 14; i < 40; i++ {
		v, ok := eng.ValueAt("FCEL", "rsi14", i)
		if !ok || v != 100 {
			t.Fatalf("rsi14[%d] = %v, %v; want 100", i, v, ok)
		}
	}
}

func TestEngine_ReplacementAndOutOfOrderEqualRecompute(t *testing.T) {
	prices := walk(11, 150)
	store := barstore.New()
	eng := newEngine(t, store)

	for i := 0; i < 100; i++ {
		store.Upsert(mkBar("FCEL", i, prices[i]))
	}
	eng.Refresh()

	// Replace the latest bar (rewind path).
	store.Upsert(mkBar("FCEL", 99, prices[99]+3))
	st := eng.Refresh()
	if st.Rewound != 1 {
		t.Errorf("expected a rewind, got %+v", st)
	}

	// Late bar in the middle (rebuild path) plus appended bars.
	store.Upsert(mkBar("FCEL", 40, prices[40]-2))
	for i := 100; i < 150; i++ {
		store.Upsert(mkBar("FCEL", i, prices[i]))
	}
	st = eng.Refresh()
	if st.Rebuilt != 1 {
		t.Errorf("expected a rebuild, got %+v", st)
	}

	got := make(map[string][]float64)
	for _, s := range testSpecs {
		got[s.Name] = eng.Column("FCEL", s.Name)
	}
	eng.Recompute("FCEL")
	for _, s := range testSpecs {
		sameColumn(t, s.Name, got[s.Name], eng.Column("FCEL", s.Name))
	}
}

func TestEngine_RefreshUnchangedIsNoop(t *testing.T) {
	store := barstore.New()
	eng := newEngine(t, store)
	for i, p := range walk(5, 30) {
		store.Upsert(mkBar("FCEL", i, p))
	}
	eng.Refresh()
	before := eng.Latest("FCEL")

	store.Upsert(mkBar("FCEL", 29, walk(5, 30)[29])) // identical re-upsert
	st := eng.Refresh()
	if st.Symbols != 0 {
		t.Errorf("identical upsert should not dirty the symbol: %+v", st)
	}
	after := eng.Latest("FCEL")
	if len(before) != len(after) {
		t.Fatalf("latest changed: %v vs %v", before, after)
	}
	for k, v := range before {
		if after[k] != v {
			t.Errorf("%s changed: %v -> %v", k, v, after[k])
		}
	}
}

func TestEngine_RegisterBackfills(t *testing.T) {
	prices := walk(9, 80)
	store := barstore.New()
	eng := NewEngine(store)
	if err := eng.Register(Spec{Name: "sma3", Kind: KindSMA, Period: 3}); err != nil {
		t.Fatal(err)
	}
	for i, p := range prices {
		store.Upsert(mkBar("FCEL", i, p))
		if i == 40 {
			eng.Refresh()
		}
	}

	// Registration refreshes pending bars, then backfills the new column.
	if err := eng.Register(Spec{Name: "ema20", Kind: KindEMA, Period: 20}); err != nil {
		t.Fatal(err)
	}
	if eng.Processed("FCEL") != len(prices) {
		t.Fatalf("processed %d, want %d", eng.Processed("FCEL"), len(prices))
	}

	ref := NewEMA(20)
	for _, p := range prices {
		ref.Update(p)
	}
	got, ok := eng.Value("FCEL", "ema20")
	if !ok {
		t.Fatal("ema20 undefined after backfill")
	}
	assertClose(t, "ema20", got, ref.Value(), 0)

	// Rewind after backfill must still agree with a recompute.
	store.Upsert(mkBar("FCEL", len(prices)-1, 99))
	eng.Refresh()
	v1, _ := eng.Value("FCEL", "ema20")
	eng.Recompute("FCEL")
	v2, _ := eng.Value("FCEL", "ema20")
	assertClose(t, "ema20 after rewind", v1, v2, 0)
}

func TestEngine_DerivedColumnSkipsUndefined(t *testing.T) {
	store := barstore.New()
	eng := NewEngine(store)
	if err := eng.Register(Spec{Name: "rsi3", Kind: KindRSI, Period: 3}); err != nil {
		t.Fatal(err)
	}
	if err := eng.Register(Spec{Name: "sma_rsi", Kind: KindSMA, Period: 2, Source: "rsi3"}); err != nil {
		t.Fatal(err)
	}
	for i, c := range []float64{10, 11, 10, 12, 13, 12} {
		store.Upsert(mkBar("FCEL", i, c))
	}
	eng.Refresh()

	// rsi3 defined from bar 3, so sma over it from bar 4.
	if _, ok := eng.ValueAt("FCEL", "sma_rsi", 3); ok {
		t.Error("sma_rsi defined at bar 3")
	}
	a, _ := eng.ValueAt("FCEL", "rsi3", 3)
	b, _ := eng.ValueAt("FCEL", "rsi3", 4)
	got, ok := eng.ValueAt("FCEL", "sma_rsi", 4)
	if !ok {
		t.Fatal("sma_rsi undefined at bar 4")
	}
	assertClose(t, "sma_rsi", got, (a+b)/2, 1e-12)
}

func TestEngine_RegisterErrors(t *testing.T) {
	eng := NewEngine(barstore.New())
	if err := eng.Register(Spec{Name: "sma50", Kind: KindSMA, Period: 50}); err != nil {
		t.Fatal(err)
	}

	err := eng.Register(Spec{Name: "sma50", Kind: KindEMA, Period: 10})
	if !errors.Is(err, ErrDuplicateIndicator) {
		t.Errorf("duplicate name: got %v", err)
	}
	err = eng.Register(Spec{Name: "other", Kind: KindEMA, Period: 10, Output: "sma50"})
	if !errors.Is(err, ErrDuplicateIndicator) {
		t.Errorf("duplicate output: got %v", err)
	}
	err = eng.Register(Spec{Name: "close", Kind: KindEMA, Period: 10})
	if !errors.Is(err, ErrDuplicateIndicator) {
		t.Errorf("output shadowing a bar column: got %v", err)
	}
	err = eng.Register(Spec{Name: "x", Kind: KindEMA, Period: 10, Source: "vwap"})
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("missing source: got %v", err)
	}
	err = eng.Register(Spec{Name: "y", Kind: KindSMA, Period: 0})
	if !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("zero period: got %v", err)
	}
	err = eng.Register(Spec{Name: "z", Kind: "MACD", Period: 3})
	if !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("unknown kind: got %v", err)
	}
	if len(eng.Specs()) != 1 {
		t.Errorf("failed registrations must not add specs: %d", len(eng.Specs()))
	}
}

func TestEngine_UnknownSymbol(t *testing.T) {
	eng := newEngine(t, barstore.New())
	if v, ok := eng.Value("NOPE", "sma3"); ok || v != 0 {
		t.Errorf("unknown symbol: got %v, %v", v, ok)
	}
	if col := eng.Column("NOPE", "sma3"); col != nil {
		t.Errorf("unknown symbol column: %v", col)
	}
	if len(eng.Latest("NOPE")) != 0 {
		t.Error("unknown symbol latest not empty")
	}
}

func TestEngine_MultiSymbolIsolation(t *testing.T) {
	store := barstore.New()
	eng := newEngine(t, store)
	a, b := walk(1, 60), walk(2, 60)
	for i := range a {
		store.Upsert(mkBar("AAA", i, a[i]), mkBar("BBB", i, b[i]))
	}
	eng.Refresh()

	solo := barstore.New()
	soloEng := newEngine(t, solo)
	for i := range a {
		solo.Upsert(mkBar("AAA", i, a[i]))
	}
	soloEng.Refresh()

	for _, s := range testSpecs {
		sameColumn(t, s.Name, eng.Column("AAA", s.Name), soloEng.Column("AAA", s.Name))
	}
	if got := eng.Symbols(); len(got) != 2 || got[0] != "AAA" || got[1] != "BBB" {
		t.Errorf("Symbols() = %v", got)
	}
}
