package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"woox-trader/internal/api"
	"woox-trader/internal/events"
	"woox-trader/internal/indicators"
	"woox-trader/internal/market"
	"woox-trader/internal/monitor"
	"woox-trader/internal/persistence"
	"woox-trader/internal/reconciliation"
	"woox-trader/internal/strategy"
	"woox-trader/pkg/cache"
	"woox-trader/pkg/config"
	"woox-trader/pkg/db"
	"woox-trader/pkg/exchange"
	"woox-trader/pkg/exchange/paper"
	"woox-trader/pkg/exchange/woox"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("❌ open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("❌ apply migrations: %v", err)
	}
	store := db.NewStore(database)

	// ---- Strategy configuration ----
	groups, err := strategy.LoadConfig(cfg.StrategyConfigPath)
	if err != nil {
		log.Printf("⚠️ strategy config %s: %v, using defaults", cfg.StrategyConfigPath, err)
		groups = []strategy.GroupConfig{{
			ID:               "tfg-default-15m",
			Symbol:           cfg.Symbol,
			TimeframeMinutes: 15,
			RSI:              strategy.DefaultRSI,
			Params:           strategy.Params{OrderQuantity: 0.001, TriggerPriceOffset: 1, StopLossOffset: 10, MaxConsecutiveStops: 3},
			IsActive:         true,
		}}
	}
	if err := store.SyncTimeframeGroups(groups); err != nil {
		log.Fatalf("❌ sync timeframe groups: %v", err)
	}

	// ---- Events and metrics ----
	bus := events.NewBus()
	metrics := monitor.NewMetrics()
	prices := cache.NewPriceCache()
	watcher := &monitor.Watcher{Bus: bus, Metrics: metrics, Prices: prices}
	watcher.Start(ctx)
	recorder := &monitor.BusRecorder{Next: store, Bus: bus}

	// ---- Gateway and order status stream ----
	paperMode := cfg.PaperTrading || !cfg.LiveTradingReady()
	if paperMode && !cfg.PaperTrading {
		log.Printf("⚠️ WOO X credentials missing, falling back to paper trading")
	}

	wooCfg := woox.Config{
		APIKey:        cfg.WooAPIKey,
		APISecret:     cfg.WooAPISecret,
		ApplicationID: cfg.WooApplicationID,
		BaseURL:       cfg.WooBaseURL,
		Timeout:       cfg.WooHTTPTimeout,
	}

	var (
		gateway  exchange.Gateway
		statusCh <-chan exchange.OrderStatusEvent
		source   market.Source
	)
	if paperMode {
		pg := paper.New(paper.Config{SlippageBps: 2})
		gateway = pg
		statusCh = pg.Events()

		// Drive simulated fills from 1m closes.
		go func() {
			ch, unsub := bus.Subscribe(events.EventKlineClosed, 64)
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-ch:
					if !ok {
						return
					}
					if k, isKline := payload.(market.Kline); isKline && k.TimeframeMinutes == 1 {
						pg.Tick(k.Symbol, k.Close)
					}
				}
			}
		}()
		log.Printf("✓ paper trading gateway ready")
	} else {
		client := woox.NewClient(wooCfg)
		client.Recorder = recorder
		gateway = client
		source = client

		private := &woox.PrivateStream{Config: wooCfg}
		statusCh = private.Start(ctx)
		log.Printf("✓ WOO X gateway ready (%s)", cfg.WooBaseURL)
	}

	// ---- Reconciliation ----
	engine := reconciliation.NewEngine(store, gateway, bus)
	auditor := reconciliation.NewAuditor(store, cfg.AuditInterval)
	auditor.Start(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-statusCh:
				if !ok {
					return
				}
				if err := engine.HandleOrderUpdate(ctx, ev); err != nil {
					log.Printf("❌ order update %d: %v", ev.OrderID, err)
				}
			}
		}
	}()

	// ---- Indicators ----
	rsiPeriod := strategy.DefaultRSI.Period
	timeframes := []int{1}
	for _, g := range groups {
		if g.RSI.Period > rsiPeriod {
			rsiPeriod = g.RSI.Period
		}
		timeframes = append(timeframes, g.TimeframeMinutes)
	}
	indEngine := indicators.NewEngine(rsiPeriod, rsiPeriod+50)
	for _, g := range groups {
		closes, err := store.RecentCloses(ctx, g.Symbol, g.TimeframeMinutes, rsiPeriod+50)
		if err != nil {
			log.Printf("⚠️ warm indicators for %s %dm: %v", g.Symbol, g.TimeframeMinutes, err)
			continue
		}
		indEngine.Warm(g.Symbol, g.TimeframeMinutes, closes)
	}

	// ---- Market data ----
	writer := persistence.NewKlineWriter(database.DB, 50, 500*time.Millisecond)
	defer writer.Close()

	var stream <-chan market.Kline
	if paperMode && cfg.UseMockFeed {
		mock := &market.MockStream{Symbol: cfg.Symbol}
		ch, stopMock := mock.Start()
		defer stopMock()
		stream = ch
		log.Printf("✓ mock kline stream for %s", cfg.Symbol)
	} else {
		ms := &woox.MarketStream{Config: wooCfg, Symbol: cfg.Symbol}
		stream = ms.Start(ctx)
		log.Printf("✓ live kline stream for %s", cfg.Symbol)
	}

	latest, err := store.LatestKlineStart(ctx, cfg.Symbol)
	if err != nil {
		log.Printf("⚠️ latest kline lookup: %v", err)
	}

	feed := &market.Feed{
		Source:      source,
		Stream:      stream,
		Writer:      writer,
		Bus:         bus,
		Symbol:      cfg.Symbol,
		Aggregator:  market.NewAggregator(timeframes),
		LatestStart: latest,
		BackfillMax: cfg.BackfillMax,
	}
	if err := feed.Start(ctx); err != nil {
		log.Fatalf("❌ start market feed: %v", err)
	}

	// ---- Signal routing ----
	router := &strategy.Router{
		Groups:     groups,
		Indicators: indEngine,
		Store:      store,
		Handler:    engine,
		Bus:        bus,
	}
	go router.Run(ctx)

	// ---- Diagnostics API ----
	server := api.NewServer(bus, store, metrics, auditor, api.SystemMeta{
		PaperTrading: paperMode,
		Symbol:       cfg.Symbol,
		Timeframes:   timeframes,
		Version:      version,
	}, cfg.JWTSecret)
	server.Prices = prices

	go func() {
		log.Printf("✓ API listening on :%s", cfg.Port)
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Printf("❌ API server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Printf("🛑 shutting down")
	if err := writer.Flush(); err != nil {
		log.Printf("⚠️ final kline flush: %v", err)
	}
}
