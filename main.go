package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"signal-bridge/internal/api"
	"signal-bridge/internal/bridge"
	"signal-bridge/internal/broker"
	"signal-bridge/internal/events"
	"signal-bridge/internal/execution"
	"signal-bridge/internal/monitor"
	"signal-bridge/internal/notify"
	"signal-bridge/internal/ocr"
	"signal-bridge/internal/pipeline"
	"signal-bridge/internal/queue"
	"signal-bridge/internal/risk"
	"signal-bridge/pkg/config"
	"signal-bridge/pkg/db"
	"signal-bridge/pkg/i18n"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}

	i18n.SetLanguage(i18n.Language(cfg.Language))
	log.Println(i18n.Get("Starting"))
	log.Printf(i18n.Get("ConfigLoaded"), cfg.Port, cfg.TradingMode)
	log.Printf(i18n.Get("UsingDBPath"), cfg.DBPath)

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()
	sysMetrics := monitor.NewSystemMetrics()
	log.Println(i18n.Get("SystemMetricsInit"))

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf(i18n.Get("DBInitFailed"), err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf(i18n.Get("DBMigrationsFailed"), err)
	}

	store, err := queue.NewStore(cfg.SignalsDir)
	if err != nil {
		log.Fatalf(i18n.Get("QueueInitFailed"), err)
	}
	log.Printf(i18n.Get("QueueDirReady"), store.PendingDir())
	reportPending(ctx, store)

	// Execution
	riskCfg := risk.Config{
		MaxTradeSize:      cfg.MaxTradeSize,
		MinTradeSize:      cfg.MinTradeSize,
		RiskPercentage:    cfg.RiskPercentage,
		ReferenceDistance: cfg.ReferenceStopDistance,
	}
	mode := execution.ResolveMode(cfg.TradingMode, cfg.HasRemoteCredentials())
	log.Printf(i18n.Get("TradingModeSelected"), mode)

	deps := execution.Deps{
		Store: store,
		IDs:   queue.NewIDGenerator(),
		Risk:  riskCfg,
		Simulation: execution.SimulationConfig{
			ConnectDelay: 2 * cfg.SimulationDelay,
			OrderDelay:   cfg.SimulationDelay,
			SuccessRate:  cfg.SimulationSuccessRate,
			Balance:      cfg.SimulationBalance,
		},
		Remote: execution.DefaultRemoteConfig(),
	}
	switch mode {
	case execution.ModeMetaAPI:
		client, err := broker.NewGRPCClient(broker.GRPCConfig{
			Addr:      cfg.BrokerAddr,
			Token:     cfg.MetaAPIToken,
			AccountID: cfg.MetaAPIAccountID,
			Timeout:   cfg.BrokerTimeout,
		})
		if err != nil {
			log.Printf(i18n.Get("BrokerClientFailed"), err)
		} else {
			deps.Broker = client
		}
	case execution.ModeBridge:
		deps.Bridge = bridge.New(bridge.Addr(cfg.MT5Host, cfg.MT5Port), cfg.BridgeTimeout)
	}

	primary, err := execution.New(mode, deps)
	if err != nil {
		log.Printf(i18n.Get("StrategyBuildFailed"), mode, err)
	}
	var fallback execution.Strategy
	if mode != execution.ModeFile {
		fallback = execution.NewFileStrategy(store, deps.IDs, riskCfg)
	}
	strategy, degraded := execution.Start(ctx, primary, fallback)
	activeMode := string(pipeline.StageParseOnly)
	switch {
	case strategy == nil:
		log.Println(i18n.Get("ExecutionUnavailable"))
	case degraded:
		activeMode = strategy.Name()
		log.Printf(i18n.Get("ExecutionDegraded"), mode, activeMode)
	default:
		activeMode = strategy.Name()
		log.Printf(i18n.Get("ExecutionReady"), activeMode)
	}
	if strategy != nil {
		defer strategy.Close()
	}
	sysMetrics.SetExecutionState(activeMode, degraded)

	// OCR
	var extractor ocr.Extractor
	if cfg.OCRAddr == "" {
		log.Println(i18n.Get("OCRDisabled"))
	} else if grpcOCR, err := ocr.NewGRPCExtractor(cfg.OCRAddr, 30*time.Second); err != nil {
		log.Printf(i18n.Get("OCRClientFailed"), err)
	} else {
		defer grpcOCR.Close()
		extractor = grpcOCR
	}

	// Notifications and alerting
	var notifier pipeline.Notifier
	if cfg.HasBot() {
		tg, err := notify.NewTelegram("", cfg.BotToken, cfg.NotifyTarget())
		if err != nil {
			log.Printf(i18n.Get("NotifyFailed"), err)
		} else {
			notifier = tg
			mon := &monitor.Monitor{Bus: bus, AlertFn: monitor.SinkFunc(tg)}
			mon.Start(ctx)
			log.Println(i18n.Get("NotifierEnabled"))
		}
	} else {
		log.Println(i18n.Get("NotifierDisabled"))
	}
	if degraded {
		bus.Publish(events.EventAlert, events.Alert{
			Level:   "critical",
			Message: fmt.Sprintf("execution backend %s unreachable, running as %s", mode, activeMode),
			At:      time.Now(),
		})
	}

	// Pipeline
	p := pipeline.New(pipeline.Options{
		OCR:      extractor,
		Strategy: strategy,
		Bus:      bus,
		Audit:    database,
		Metrics:  sysMetrics,
		Notifier: notifier,
	})
	worker := pipeline.NewWorker(p, cfg.QueueSize)
	worker.Start(ctx)

	// API
	server := api.NewServer(api.Options{
		Bus:              bus,
		DB:               database,
		Store:            store,
		Worker:           worker,
		Pipeline:         p,
		Metrics:          sysMetrics,
		JWTSecret:        cfg.JWTSecret,
		AllowedChannelID: cfg.AllowedChannelID,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
		Meta: api.SystemMeta{
			Mode:     activeMode,
			Degraded: degraded,
			Version:  buildVersion,
		},
	})
	go func() {
		log.Printf(i18n.Get("ServerListening"), cfg.Port)
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf(i18n.Get("APIServerError"), err)
		}
	}()

	// Telegram intake
	botDone := make(chan struct{})
	botCtx, stopBot := context.WithCancel(ctx)
	if tg, err := notify.NewTelegram("", cfg.BotToken, cfg.NotifyTarget()); err == nil && cfg.AllowedChannelID != "" {
		bot, err := notify.NewBot(tg, worker, notify.BotConfig{
			AllowedChatID: cfg.AllowedChannelID,
			NotifyChatID:  cfg.NotifyTarget(),
			Status:        server.Status,
		})
		if err != nil {
			log.Printf("⚠️ Telegram intake not started: %v", err)
			close(botDone)
		} else {
			go func() {
				defer close(botDone)
				bot.Run(botCtx)
			}()
		}
	} else {
		log.Println(i18n.Get("BotDisabled"))
		close(botDone)
	}

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println(i18n.Get("ShuttingDown"))

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	stopBot()
	select {
	case <-botDone:
	case <-shutdownCtx.Done():
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		log.Printf("⚠️ worker did not drain: %v", err)
	}
	cancel()
	log.Println(i18n.Get("ShutdownComplete"))
}

func reportPending(ctx context.Context, store *queue.Store) {
	recs, err := store.ListPending(ctx)
	if err != nil {
		log.Printf(i18n.Get("QueueListFailed"), err)
		return
	}
	if len(recs) > 0 {
		log.Printf(i18n.Get("PendingOnStartup"), len(recs))
	}
}
