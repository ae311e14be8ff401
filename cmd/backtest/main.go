// cmd/backtest replays archived bars from SQLite through the robot cycle
// (bar store, indicators, signals, paper dispatch) and prints the resulting
// fills and final ownership.
//
// Usage:
//
//	go run ./cmd/backtest --strategy=strategy.yaml --db=data/bars.db --from=2026-03-02
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-robot/internal/config"
	"trading-robot/internal/execution"
	"trading-robot/internal/feed"
	"trading-robot/internal/logger"
	"trading-robot/internal/robot"
	sqlitestore "trading-robot/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	strategyPath := flag.String("strategy", "strategy.yaml", "Strategy file")
	dbPath := flag.String("db", "data/bars.db", "Path to SQLite bar archive")
	fromStr := flag.String("from", "", "Replay start date YYYY-MM-DD (default: all); earlier bars seed history")
	toStr := flag.String("to", "", "Replay end date YYYY-MM-DD (default: all)")
	slippage := flag.Float64("slippage", 0, "Paper slippage in basis points")
	level := flag.String("log", "WARN", "Log level")
	flag.Parse()

	logger.Init("backtest", logger.ParseLevel(*level))

	strat, err := config.LoadStrategy(*strategyPath)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	from, err := parseDate(*fromStr, time.Time{})
	if err != nil {
		log.Fatalf("[backtest] --from: %v", err)
	}
	to, err := parseDate(*toStr, time.Now().AddDate(100, 0, 0))
	if err != nil {
		log.Fatalf("[backtest] --to: %v", err)
	}

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	archive := feed.Archive{Reader: reader}
	bars, err := archive.Fetch(ctx, strat.Symbols, from, to, strat.BarSize, strat.BarType)
	if err != nil {
		log.Fatalf("[backtest] read bars: %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("[backtest] no bars for %v in %s", strat.Symbols, *dbPath)
	}
	rp := newReplay(bars)

	paper := execution.NewPaperBroker(*slippage, execution.WithClock(rp.Now))
	dispatch := execution.NewDispatch(paper, strat.Trades, execution.NewBook(strat.Owned), nil, nil)

	history := feed.Historical(nil)
	if !from.IsZero() {
		history = archive
	}
	bot, err := robot.New(robot.Config{
		Symbols:     strat.Symbols,
		BarSize:     strat.BarSize,
		BarType:     strat.BarType,
		HistoryDays: strat.HistoryDays,
		Indicators:  strat.Indicators,
		Rules:       strat.Rules,
	}, robot.Deps{
		History:  history,
		Live:     rp,
		Gate:     rp,
		Dispatch: dispatch,
		Now:      func() time.Time { return from },
	})
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	started := time.Now()
	if err := bot.Run(ctx); err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	fills := paper.GetFills()
	count := countFills(fills)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Bars replayed:     %-16d ║\n", rp.Replayed())
	fmt.Printf("║  Fills:             %-16d ║\n", count.Total)
	fmt.Printf("║  Elapsed:           %-16s ║\n", time.Since(started).Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")
	for _, f := range fills {
		fmt.Printf("  [%s] %-6s %-4s %d @ %.4f (%s)\n",
			f.FilledAt.Format("2006-01-02 15:04"), f.Symbol, f.Side, f.Qty, f.Price, f.TradeID)
	}
	book := dispatch.Book().Snapshot()
	for _, sym := range strat.Symbols {
		sides := count.BySymbol[sym]
		fmt.Printf("  %-6s buys=%d sells=%d final=%s\n", sym, sides["BUY"], sides["SELL"], book[sym])
	}
}

func parseDate(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}
