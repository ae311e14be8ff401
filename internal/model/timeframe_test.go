package model

import (
	"testing"
	"time"
)

func TestTimeframe(t *testing.T) {
	cases := []struct {
		size    int
		barType string
		span    time.Duration
		label   string
	}{
		{1, "minute", time.Minute, "1m"},
		{5, "minute", 5 * time.Minute, "5m"},
		{60, "minute", time.Hour, "1h"},
		{1, "day", 24 * time.Hour, "1d"},
		{7, "day", 7 * 24 * time.Hour, "1w"},
		{2, "Hour", 2 * time.Hour, "2h"},
	}
	for _, tc := range cases {
		span, err := BarSpan(tc.size, tc.barType)
		if err != nil || span != tc.span {
			t.Errorf("BarSpan(%d,%q) = %v, %v", tc.size, tc.barType, span, err)
		}
		label, err := Timeframe(tc.size, tc.barType)
		if err != nil || label != tc.label {
			t.Errorf("Timeframe(%d,%q) = %q, %v; want %q", tc.size, tc.barType, label, err, tc.label)
		}
	}
	if _, err := BarSpan(0, "minute"); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := BarSpan(1, "month"); err == nil {
		t.Error("expected error for month")
	}
}

func TestKeyAndStreamKey(t *testing.T) {
	b := Bar{Symbol: "FCEL", TS: time.Date(2026, 3, 2, 9, 30, 0, 0, time.FixedZone("EST", -5*3600))}
	if b.Key().TS.Location() != time.UTC {
		t.Error("key timestamp should be UTC")
	}
	if b.StreamKey() != "bars:FCEL" {
		t.Errorf("stream key = %q", b.StreamKey())
	}
}
