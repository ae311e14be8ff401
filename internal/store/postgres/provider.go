// Package postgres reads historical bars from a PostgreSQL or TimescaleDB
// table (ohlcv_data) maintained by an external ingestion job.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"trading-robot/internal/model"
)

// Schema is the table the provider reads. EnsureSchema creates it for tests
// and fresh installs; production tables are usually Timescale hypertables.
const Schema = `
CREATE TABLE IF NOT EXISTS ohlcv_data (
	symbol    TEXT             NOT NULL,
	timeframe TEXT             NOT NULL,
	timestamp TIMESTAMPTZ      NOT NULL,
	open      DOUBLE PRECISION NOT NULL,
	high      DOUBLE PRECISION NOT NULL,
	low       DOUBLE PRECISION NOT NULL,
	close     DOUBLE PRECISION NOT NULL,
	volume    BIGINT           NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, timeframe, timestamp)
)`

// Provider serves bars from ohlcv_data.
type Provider struct {
	db *sql.DB
}

// NewProvider opens and pings the database.
func NewProvider(ctx context.Context, dsn string) (*Provider, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	log.Printf("[postgres] connected")
	return &Provider{db: db}, nil
}

// EnsureSchema creates ohlcv_data if it does not exist.
func (p *Provider) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, Schema)
	return err
}

// Fetch returns bars of the given symbols and bar size in [start, end],
// ordered by timestamp then symbol.
func (p *Provider) Fetch(ctx context.Context, symbols []string, start, end time.Time, barSize int, barType string) ([]model.Bar, error) {
	tf, err := model.Timeframe(barSize, barType)
	if err != nil {
		return nil, err
	}
	var out []model.Bar
	for _, sym := range symbols {
		bars, err := p.GetBars(ctx, sym, tf, start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, bars...)
	}
	model.SortBars(out)
	return out, nil
}

// GetBars returns one symbol's bars for a timeframe label in [start, end].
func (p *Provider) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM ohlcv_data
		WHERE symbol = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp <= $4
		ORDER BY timestamp ASC
	`, symbol, timeframe, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query ohlcv_data: %w", err)
	}
	return scan(rows)
}

// GetBarsLimit returns the last n bars of symbol, oldest first.
func (p *Provider) GetBarsLimit(ctx context.Context, symbol, timeframe string, n int) ([]model.Bar, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM ohlcv_data
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY timestamp DESC
		LIMIT $3
	`, symbol, timeframe, n)
	if err != nil {
		return nil, fmt.Errorf("query ohlcv_data: %w", err)
	}
	bars, err := scan(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// WriteBars upserts bars under a timeframe label.
func (p *Provider) WriteBars(ctx context.Context, timeframe string, bars []model.Bar) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ohlcv_data (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, timeframe, b.TS.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert %s: %w", b.Key(), err)
		}
	}
	return tx.Commit()
}

// Close closes the connection pool.
func (p *Provider) Close() error { return p.db.Close() }

func scan(rows *sql.Rows) ([]model.Bar, error) {
	defer rows.Close()
	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.Symbol, &b.TS, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan ohlcv row: %w", err)
		}
		b.TS = b.TS.UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ohlcv rows: %w", err)
	}
	return bars, nil
}
