// cmd/robot runs the trading robot for one market session: it loads history,
// then fetches bars, refreshes indicators, evaluates signals and dispatches
// paper (or live) orders at every bar until the session closes.
//
// Configuration comes from the environment (see internal/config) and the
// strategy file at STRATEGY_PATH.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-robot/internal/config"
	"trading-robot/internal/execution"
	"trading-robot/internal/feed"
	"trading-robot/internal/logger"
	"trading-robot/internal/markethours"
	"trading-robot/internal/metrics"
	"trading-robot/internal/model"
	"trading-robot/internal/notification"
	"trading-robot/internal/robot"
	"trading-robot/internal/store/postgres"
	redisstore "trading-robot/internal/store/redis"
	sqlitestore "trading-robot/internal/store/sqlite"
	"trading-robot/pkg/broker"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	envFile := flag.String("env", ".env", "Optional .env file")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("[robot] %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[robot] config: %v", err)
	}
	slogger := logger.Init("robot", logger.ParseLevel(cfg.LogLevel))

	strat, err := config.LoadStrategy(cfg.StrategyPath)
	if err != nil {
		log.Fatalf("[robot] %v", err)
	}
	span, _ := model.BarSpan(strat.BarSize, strat.BarType)
	slogger.Info("starting", "symbols", strat.Symbols, "bar", span.String(), "paper", cfg.Paper, "feed", cfg.Feed)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---- Metrics & health ----
	prom := metrics.New(nil)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, prom, health)
	metricsSrv.Start()
	defer func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		metricsSrv.Stop(shutdownCtx)
	}()

	// ---- Broker session ----
	var client *broker.Client
	if cfg.NeedsBroker() {
		client = broker.New(broker.Config{
			APIKey:    cfg.BrokerAPIKey,
			AccountID: cfg.BrokerAccountID,
			RootURL:   cfg.BrokerURL,
		})
		if err := client.Login(ctx, cfg.BrokerUser, cfg.BrokerPassword, cfg.BrokerTOTPSecret); err != nil {
			log.Fatalf("[robot] broker login: %v", err)
		}
		client.SessionExpiryHook = func() {
			log.Println("[robot] broker session expired, renewing")
			renewCtx, c := context.WithTimeout(context.Background(), 10*time.Second)
			defer c()
			if err := client.RenewAccessToken(renewCtx); err != nil {
				log.Printf("[robot] renew failed: %v", err)
			}
		}
		defer client.TerminateSession(context.Background())
		log.Printf("[robot] broker session ready for %s", client.UserID())
	}

	// ---- Archive ----
	var archive robot.Archiver
	var sqliteDB *sql.DB
	if cfg.SQLitePath != "" {
		os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Fatalf("[robot] sqlite archive: %v", err)
		}
		defer w.Close()
		archive, sqliteDB = w, w.DB()
	}

	// ---- History ----
	var history feed.Historical
	switch cfg.HistoryFrom {
	case "broker":
		history = &feed.BrokerHistorical{Client: client}
	case "sqlite":
		r, err := sqlitestore.NewReader(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[robot] sqlite history: %v", err)
		}
		defer r.Close()
		history = feed.Archive{Reader: r}
	case "postgres":
		p, err := postgres.NewProvider(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("[robot] postgres history: %v", err)
		}
		defer p.Close()
		history = p
	}

	// ---- Redis ----
	var rdb *goredis.Client
	if cfg.Feed == config.FeedRedis || cfg.RedisPublish {
		rdb, err = redisstore.Connect(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			log.Fatalf("[robot] redis: %v", err)
		}
		defer rdb.Close()
	}
	var publisher robot.Publisher
	if cfg.RedisPublish {
		pub := redisstore.NewPublisher(rdb, redisstore.DefaultPublisherConfig())
		pub.OnBreakerChange = func(s redisstore.BreakerState) { prom.BreakerState.Set(float64(s)) }
		publisher = pub
	}
	health.StartLivenessChecker(ctx, rdb, sqliteDB, 10*time.Second)

	// ---- Live feed ----
	var live feed.Live
	switch cfg.Feed {
	case config.FeedBroker:
		live, err = feed.NewBrokerLive(client, strat.Symbols, strat.BarSize, strat.BarType)
	case config.FeedRedis:
		live, err = redisstore.NewStreamSource(ctx, rdb, strat.Symbols, false)
	case config.FeedWS:
		var ws *feed.WSSource
		ws, err = feed.NewWSSource(feed.WSConfig{URL: cfg.WSURL, Symbols: strat.Symbols})
		if err == nil {
			ws.OnReconnect = prom.WSReconnects.Inc
			go ws.Run(ctx)
			go reportDrops(ctx, ws, prom)
			live = ws
		}
	}
	if err != nil {
		log.Fatalf("[robot] live feed: %v", err)
	}

	// ---- Execution ----
	var orderBroker execution.Broker
	if cfg.Paper {
		orderBroker = execution.NewPaperBroker(cfg.SlippageBps)
	} else {
		orderBroker = execution.NewLiveBroker(client)
	}
	os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755)
	journal, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		log.Fatalf("[robot] journal: %v", err)
	}
	defer journal.Close()
	notifier := notification.FromOptions(notification.Options{
		WebhookURL:       cfg.WebhookURL,
		TelegramBotToken: cfg.TelegramBotToken,
		TelegramChatID:   cfg.TelegramChatID,
		MinLevel:         notification.AlertLevel(cfg.AlertMinLevel),
	})
	dispatch := execution.NewDispatch(orderBroker, strat.Trades, execution.NewBook(strat.Owned), journal, notifier)

	// ---- Session gate ----
	session, err := markethours.ParseSession(cfg.Session)
	if err != nil {
		log.Fatalf("[robot] %v", err)
	}
	gate := markethours.NewGate(span)
	gate.Session = session
	gate.PollInterval = cfg.Poll
	gate.Settle = cfg.Settle
	log.Printf("[robot] %s", markethours.StatusString(time.Now()))

	// ---- Robot ----
	bot, err := robot.New(robot.Config{
		Symbols:     strat.Symbols,
		BarSize:     strat.BarSize,
		BarType:     strat.BarType,
		HistoryDays: strat.HistoryDays,
		Indicators:  strat.Indicators,
		Rules:       strat.Rules,
		AuditPath:   cfg.AuditPath,
	}, robot.Deps{
		History:   history,
		Live:      live,
		Gate:      gate,
		Dispatch:  dispatch,
		Archive:   archive,
		Publisher: publisher,
		Metrics:   prom,
		Health:    health,
		Logger:    slogger,
	})
	if err != nil {
		log.Fatalf("[robot] %v", err)
	}

	notifier.Send(ctx, notification.Alert{Level: notification.AlertInfo, Title: "robot started", Message: markethours.StatusString(time.Now())})
	if err := bot.Run(ctx); err != nil {
		log.Fatalf("[robot] %v", err)
	}
	if err := execution.WriteSubmitted(submittedPath(cfg.AuditPath), dispatch); err != nil {
		log.Printf("[robot] write submitted orders: %v", err)
	}
	notifier.Send(context.Background(), notification.Alert{Level: notification.AlertInfo, Title: "robot stopped", Message: markethours.StatusString(time.Now())})
	slog.Info("shutdown complete")
}

// submittedPath puts the submitted-orders audit next to the strategy audit.
func submittedPath(audit string) string {
	return filepath.Join(filepath.Dir(audit), "submitted.json")
}

func reportDrops(ctx context.Context, ws *feed.WSSource, prom *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prom.WSDropped.Set(float64(ws.Dropped()))
		}
	}
}
