package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These decouple the robot loop from concrete storage (SQLite, Redis, Postgres).

// BarWriter archives ingested bars.
type BarWriter interface {
	// WriteBars upserts bars by (symbol, ts).
	WriteBars(ctx context.Context, bars []Bar) error

	// Close releases underlying resources.
	Close() error
}

// BarReader reads archived bars for backfill and replay.
type BarReader interface {
	// ReadBars returns bars for symbol with start <= ts <= end, ascending.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// FillRecorder persists confirmed fills for audit.
type FillRecorder interface {
	RecordFill(fill Fill) error
}
