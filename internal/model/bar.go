package model

import (
	"cmp"
	"encoding/json"
	"slices"
	"strconv"
	"time"
)

// Bar is one OHLCV observation for a symbol.
// Prices are in dollars; TS is the bar open time in UTC.
type Bar struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Key uniquely identifies a bar: a later bar with the same key replaces the earlier one.
type Key struct {
	Symbol string
	TS     time.Time
}

// Key returns the (symbol, timestamp) identity of the bar.
func (b *Bar) Key() Key {
	return Key{Symbol: b.Symbol, TS: b.TS.UTC()}
}

// String returns "symbol@unixNano".
func (k Key) String() string {
	return k.Symbol + "@" + strconv.FormatInt(k.TS.UnixNano(), 10)
}

// StreamKey returns the Redis stream key for the bar's symbol: "bars:{symbol}".
func (b *Bar) StreamKey() string {
	return BarStreamKey(b.Symbol)
}

// BarStreamKey returns the Redis stream key for a symbol.
func BarStreamKey(symbol string) string {
	return "bars:" + symbol
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// Equal reports whether two bars carry identical content.
func (b Bar) Equal(o Bar) bool {
	return b.Symbol == o.Symbol && b.TS.Equal(o.TS) &&
		b.Open == o.Open && b.High == o.High && b.Low == o.Low &&
		b.Close == o.Close && b.Volume == o.Volume
}

// SortBars orders bars by timestamp, then symbol. Equal keys keep their
// relative order so the last duplicate still wins on upsert.
func SortBars(bars []Bar) {
	slices.SortStableFunc(bars, func(a, b Bar) int {
		if c := a.TS.Compare(b.TS); c != 0 {
			return c
		}
		return cmp.Compare(a.Symbol, b.Symbol)
	})
}
