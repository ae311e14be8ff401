package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"trading-robot/internal/model"
)

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func bar(sym string, minute int, close float64) model.Bar {
	return model.Bar{Symbol: sym, TS: t0.Add(time.Duration(minute) * time.Minute), Open: close, High: close + 1, Low: close - 1, Close: close, Volume: int64(100 + minute)}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bars.db")

	w, err := New(WriterConfig{DBPath: path, BatchSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	var bars []model.Bar
	for i := 0; i < 10; i++ {
		bars = append(bars, bar("FCEL", i, float64(5+i)), bar("AAPL", i, float64(200+i)))
	}
	if err := w.WriteBars(ctx, bars); err != nil {
		t.Fatal(err)
	}
	// Same key replaces
	if err := w.WriteBars(ctx, []model.Bar{bar("FCEL", 9, 99)}); err != nil {
		t.Fatal(err)
	}

	last, err := w.GetLastTimestamp(ctx, "FCEL")
	if err != nil || !last.Equal(t0.Add(9*time.Minute)) {
		t.Errorf("last ts %v %v", last, err)
	}
	if none, _ := w.GetLastTimestamp(ctx, "MSFT"); !none.IsZero() {
		t.Errorf("unknown symbol last ts %v", none)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := r.ReadBars(ctx, "FCEL", t0.Add(2*time.Minute), t0.Add(9*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 8 {
		t.Fatalf("got %d bars, want 8", len(got))
	}
	if !got[0].Equal(bar("FCEL", 2, 7)) {
		t.Errorf("first bar %+v", got[0])
	}
	if got[7].Close != 99 {
		t.Errorf("replaced bar close %v", got[7].Close)
	}

	all, err := r.ReadAll(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 20 || all[0].Symbol != "AAPL" || all[1].Symbol != "FCEL" || !all[1].TS.Equal(t0) {
		t.Errorf("ReadAll ordering: %d bars, first %v %v", len(all), all[0].Symbol, all[1].Symbol)
	}

	syms, err := r.Symbols(ctx)
	if err != nil || len(syms) != 2 || syms[0] != "AAPL" {
		t.Errorf("symbols %v %v", syms, err)
	}
}
