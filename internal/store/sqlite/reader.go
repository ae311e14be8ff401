package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"trading-robot/internal/model"
)

var (
	_ model.BarReader = (*Reader)(nil)
	_ model.BarWriter = (*Writer)(nil)
)

// Reader provides read-only access to archived bars.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars returns the bars of symbol with start <= ts <= end, ascending.
// A zero end means no upper bound.
func (r *Reader) ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	hi := int64(1<<62 - 1)
	if !end.IsZero() {
		hi = end.Unix()
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, symbol, start.Unix(), hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	return scanBars(rows)
}

// ReadAll returns every archived bar in [start, end], ordered by ts then symbol,
// which is the order a replay should feed them.
func (r *Reader) ReadAll(ctx context.Context, start, end time.Time) ([]model.Bar, error) {
	hi := int64(1<<62 - 1)
	if !end.IsZero() {
		hi = end.Unix()
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts ASC, symbol ASC
	`, start.Unix(), hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite query all bars: %w", err)
	}
	return scanBars(rows)
}

// Symbols lists the archived symbols.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanBars(rows *sql.Rows) ([]model.Bar, error) {
	defer rows.Close()
	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		if err := rows.Scan(&b.Symbol, &tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
