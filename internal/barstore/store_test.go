package barstore

import (
	"math/rand"
	"testing"
	"time"

	"trading-robot/internal/model"
)

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func bar(sym string, minute int, close float64) model.Bar {
	return model.Bar{
		Symbol: sym,
		TS:     t0.Add(time.Duration(minute) * time.Minute),
		Open:   close, High: close + 0.5, Low: close - 0.5, Close: close,
		Volume: 100,
	}
}

func assertSorted(t *testing.T, bars []model.Bar) {
	t.Helper()
	for i := 1; i < len(bars); i++ {
		if !bars[i].TS.After(bars[i-1].TS) {
			t.Fatalf("bars not strictly ascending at %d: %v then %v", i, bars[i-1].TS, bars[i].TS)
		}
	}
}

func TestUpsert_AppendPath(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		if n := s.Upsert(bar("FCEL", i, float64(10+i))); n != 1 {
			t.Fatalf("bar %d: changed=%d, want 1", i, n)
		}
	}
	if s.Len("FCEL") != 5 {
		t.Fatalf("len=%d, want 5", s.Len("FCEL"))
	}
	last, ok := s.Last("FCEL")
	if !ok || last.Close != 14 {
		t.Errorf("last=%v ok=%v, want close 14", last, ok)
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	once := New()
	twice := New()

	b := bar("FCEL", 0, 10)
	once.Upsert(b)
	twice.Upsert(b)
	if n := twice.Upsert(b); n != 0 {
		t.Errorf("re-upsert changed=%d, want 0", n)
	}

	a, c := once.All(), twice.All()
	if len(a) != len(c) {
		t.Fatalf("len mismatch: %d vs %d", len(a), len(c))
	}
	for i := range a {
		if !a[i].Equal(c[i]) {
			t.Errorf("bar %d differs: %+v vs %+v", i, a[i], c[i])
		}
	}
}

func TestUpsert_ReplaceSameKey(t *testing.T) {
	s := New()
	s.Upsert(bar("FCEL", 0, 10), bar("FCEL", 1, 11))
	s.TakeDirty()

	if n := s.Upsert(bar("FCEL", 1, 12)); n != 1 {
		t.Fatalf("replace changed=%d, want 1", n)
	}
	if s.Len("FCEL") != 2 {
		t.Fatalf("len=%d, want 2", s.Len("FCEL"))
	}
	last, _ := s.Last("FCEL")
	if last.Close != 12 {
		t.Errorf("last close=%v, want 12", last.Close)
	}
	if d := s.TakeDirty(); d["FCEL"] != 1 {
		t.Errorf("dirty=%v, want FCEL:1", d)
	}
}

func TestUpsert_SortInvariantRandomOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	perm := rng.Perm(200)

	s := New()
	for k, m := range perm {
		// Mix single and small-batch inserts, with duplicates
		if k%3 == 0 {
			s.Upsert(bar("AAA", m, float64(m)), bar("BBB", m, float64(m)), bar("AAA", m, float64(m)))
		} else {
			s.Upsert(bar("AAA", m, float64(m)))
			s.Upsert(bar("BBB", m, float64(m)))
		}
	}

	for _, sym := range []string{"AAA", "BBB"} {
		if s.Len(sym) != 200 {
			t.Fatalf("%s len=%d, want 200", sym, s.Len(sym))
		}
		all := s.Latest(sym, 1000)
		assertSorted(t, all)
		for i, b := range all {
			if b.Close != float64(i) {
				t.Fatalf("%s bar %d close=%v, want %d", sym, i, b.Close, i)
			}
		}
		assertSorted(t, s.Range(sym, t0, t0.Add(500*time.Minute)))
	}
}

func TestUpsert_BulkLastArrivalWins(t *testing.T) {
	s := New()
	s.Upsert(bar("FCEL", 2, 1), bar("FCEL", 0, 1), bar("FCEL", 2, 3), bar("FCEL", 1, 2))
	got := s.Latest("FCEL", 10)
	if len(got) != 3 {
		t.Fatalf("len=%d, want 3", len(got))
	}
	if got[2].Close != 3 {
		t.Errorf("duplicate key: close=%v, want last arrival 3", got[2].Close)
	}
}

func TestUpsert_BulkMergeMarksFirstChange(t *testing.T) {
	s := New()
	s.Upsert(bar("FCEL", 0, 1), bar("FCEL", 2, 3), bar("FCEL", 4, 5))
	s.TakeDirty()

	// identical bar at index 0 plus a new bar between 2 and 4
	n := s.Upsert(bar("FCEL", 0, 1), bar("FCEL", 3, 4))
	if n != 1 {
		t.Errorf("changed=%d, want 1", n)
	}
	if d := s.TakeDirty(); d["FCEL"] != 2 {
		t.Errorf("dirty=%v, want FCEL:2", d)
	}
	assertSorted(t, s.Latest("FCEL", 10))
}

func TestUpsert_IgnoresInvalid(t *testing.T) {
	s := New()
	n := s.Upsert(model.Bar{Symbol: "", TS: t0}, model.Bar{Symbol: "X"})
	if n != 0 || len(s.Symbols()) != 0 {
		t.Errorf("invalid bars stored: n=%d symbols=%v", n, s.Symbols())
	}
}

func TestLatest_ShortSeries(t *testing.T) {
	s := New()
	s.Upsert(bar("FCEL", 0, 1), bar("FCEL", 1, 2))
	if got := s.Latest("FCEL", 5); len(got) != 2 {
		t.Errorf("latest(5) on 2 bars returned %d", len(got))
	}
	if got := s.Latest("FCEL", 1); len(got) != 1 || got[0].Close != 2 {
		t.Errorf("latest(1)=%v, want close 2", got)
	}
}

func TestQueries_UnknownSymbolEmpty(t *testing.T) {
	s := New()
	if got := s.Latest("NOPE", 3); got == nil || len(got) != 0 {
		t.Errorf("latest unknown: %v", got)
	}
	if got := s.Range("NOPE", t0, t0.Add(time.Hour)); got == nil || len(got) != 0 {
		t.Errorf("range unknown: %v", got)
	}
	if _, ok := s.Last("NOPE"); ok {
		t.Error("last unknown: ok=true")
	}
}

func TestRange_Inclusive(t *testing.T) {
	s := New()
	for i := 0; i < 10; i++ {
		s.Upsert(bar("FCEL", i, float64(i)))
	}
	got := s.Range("FCEL", t0.Add(2*time.Minute), t0.Add(5*time.Minute))
	if len(got) != 4 {
		t.Fatalf("range len=%d, want 4", len(got))
	}
	if got[0].Close != 2 || got[3].Close != 5 {
		t.Errorf("range bounds: first=%v last=%v", got[0].Close, got[3].Close)
	}
}

func TestTakeDirty(t *testing.T) {
	s := New()
	s.Upsert(bar("A", 0, 1), bar("A", 1, 1), bar("B", 0, 1))
	d := s.TakeDirty()
	if d["A"] != 0 || d["B"] != 0 || len(d) != 2 {
		t.Fatalf("dirty=%v", d)
	}
	if d := s.TakeDirty(); len(d) != 0 {
		t.Errorf("dirty after take=%v, want empty", d)
	}

	s.Upsert(bar("A", 2, 1))
	if d := s.TakeDirty(); d["A"] != 2 {
		t.Errorf("append dirty=%v, want A:2", d)
	}

	s.Upsert(bar("A", 3, 1))
	s.Upsert(bar("A", -1, 1)) // older than everything
	if d := s.TakeDirty(); d["A"] != 0 {
		t.Errorf("out-of-order dirty=%v, want A:0", d)
	}
}

func TestAll_OrderedBySymbolThenTime(t *testing.T) {
	s := New()
	s.Upsert(bar("ZZZ", 1, 1), bar("AAA", 1, 1), bar("AAA", 0, 1), bar("ZZZ", 0, 1))
	all := s.All()
	want := []string{"AAA", "AAA", "ZZZ", "ZZZ"}
	for i, b := range all {
		if b.Symbol != want[i] {
			t.Fatalf("all[%d]=%s, want %s", i, b.Symbol, want[i])
		}
	}
	assertSorted(t, all[:2])
	assertSorted(t, all[2:])
	if got := s.LastTS(); !got.Equal(t0.Add(time.Minute)) {
		t.Errorf("LastTS=%v", got)
	}
}
