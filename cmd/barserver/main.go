// cmd/barserver serves bars over WebSocket for the robot's ws feed: either
// simulated random-walk bars or bars replayed from a SQLite archive.
//
// Usage:
//
//	go run ./cmd/barserver --symbols=FCEL,SQQQ --interval=1m
//	go run ./cmd/barserver --db=data/bars.db --speed=60
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trading-robot/internal/feed"
	"trading-robot/internal/model"
	sqlitestore "trading-robot/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	addr := flag.String("addr", ":9001", "Listen address")
	symbols := flag.String("symbols", "FCEL", "Comma-separated symbols to simulate")
	interval := flag.Duration("interval", time.Minute, "Simulated bar interval")
	dbPath := flag.String("db", "", "Replay bars from this SQLite archive instead of simulating")
	speed := flag.Float64("speed", 1, "Replay speed multiplier (0 = as fast as possible)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hub := feed.NewHub()
	if *dbPath != "" {
		go replay(ctx, hub, *dbPath, *speed)
	} else {
		go simulate(ctx, hub, parseSymbols(*symbols), *interval)
	}

	mux := http.NewServeMux()
	mux.Handle("/bars", hub)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"status":"ok","service":"barserver","clients":%d}`+"\n", hub.Clients())
	})
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[barserver] listening on %s (WebSocket: ws://localhost%s/bars)", *addr, *addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("[barserver] server error: %v", err)
	}
}

func parseSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// simulate emits one random-walk bar per symbol at every interval boundary.
func simulate(ctx context.Context, hub *feed.Hub, symbols []string, interval time.Duration) {
	if len(symbols) == 0 {
		log.Fatalf("[barserver] no symbols configured")
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	price := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		price[s] = 5 + rng.Float64()*20
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ts := now.UTC().Truncate(interval).Add(-interval)
			for _, s := range symbols {
				open := price[s]
				c := open * (1 + (rng.Float64()*0.4-0.2)/100)
				hi, lo := max(open, c), min(open, c)
				price[s] = c
				hub.Broadcast(model.Bar{
					Symbol: s, TS: ts,
					Open: open, High: hi * 1.0005, Low: lo * 0.9995, Close: c,
					Volume: int64(rng.Intn(5000) + 100),
				})
			}
		}
	}
}

// replay streams an archive in timestamp order, pacing by bar time / speed.
func replay(ctx context.Context, hub *feed.Hub, path string, speed float64) {
	reader, err := sqlitestore.NewReader(path)
	if err != nil {
		log.Fatalf("[barserver] open archive: %v", err)
	}
	defer reader.Close()
	bars, err := reader.ReadAll(ctx, time.Time{}, time.Time{})
	if err != nil {
		log.Fatalf("[barserver] read archive: %v", err)
	}
	log.Printf("[barserver] replaying %d bars at %.1fx", len(bars), speed)

	var prev time.Time
	for _, b := range bars {
		if speed > 0 && !prev.IsZero() && b.TS.After(prev) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(float64(b.TS.Sub(prev)) / speed)):
			}
		}
		prev = b.TS
		hub.Broadcast(b)
	}
	log.Printf("[barserver] replay complete")
}
