package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"FamilyPoints/internal/bot"
	"FamilyPoints/internal/config"
	"FamilyPoints/internal/dialogue"
	"FamilyPoints/internal/httpapi"
	"FamilyPoints/internal/ledger"
	"FamilyPoints/internal/model"
	"FamilyPoints/internal/notifier"
	"FamilyPoints/internal/recorder"
	"FamilyPoints/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath    string
		summaryNow bool
	)
	flags := pflag.NewFlagSet("familypoints", pflag.ContinueOnError)
	flags.StringVarP(&cfgPath, "config", "c", "", "path to config.yaml (default $CONFIG_PATH or configs/config.yaml)")
	flags.BoolVar(&summaryNow, "summary-now", false, "send the weekly summary once at startup")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			cfgPath = v
		}
	}

	// Load config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()
	logger.Info("FamilyPoints starting", zap.String("config", cfgPath))

	// Init recorder
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
			logger.Warn("create sqlite dir failed, using noop", zap.Error(err))
		} else if sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger); err != nil {
			logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		} else {
			rec = sr
		}
	}
	defer rec.Close()

	// Init ledger
	members := make(map[model.AccountID]string, len(cfg.Members))
	for id, name := range cfg.Members {
		members[model.AccountID(id)] = name
	}
	store, err := ledger.Open(cfg.Ledger.StateFile, ledger.Options{
		Members: members,
		Pool: ledger.PoolPolicy{
			ID:               model.AccountID(cfg.GoalPool.ID),
			Name:             cfg.GoalPool.Name,
			AllowDebit:       cfg.GoalPool.Debitable,
			AllowTransferOut: cfg.GoalPool.TransferSource,
		},
		BackupDir:  cfg.Ledger.BackupDir,
		BackupKeep: cfg.Ledger.BackupKeep,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	registry := ledger.NewRegistry(store)
	engine := ledger.NewEngine(store, rec, logger)
	views := bot.NewViews(store, registry, cfg.History.RecentLimit)
	machine := dialogue.New(dialogue.Deps{
		Accounts: registry,
		Balances: store,
		Engine:   engine,
		Views:    views,
		Policy:   store.Policy(),
		Logger:   logger,
	})

	// Init Telegram notifier
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.APIBase, cfg.Proxy, logger)
	router := bot.NewRouter(bot.Deps{
		Messenger: tn,
		Machine:   machine,
		Registry:  registry,
		Engine:    engine,
		Views:     views,
		AdminID:   model.AccountID(cfg.Telegram.AdminID),
		Logger:    logger,
	})

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	weekday, _ := cfg.SummaryWeekday()
	hour, minute, _ := cfg.SummaryClock()
	sched := scheduler.NewScheduler(ctx, store, registry, machine, tn, rec, scheduler.Options{
		PruneCron:       cfg.Schedule.PruneCron,
		Retention:       cfg.History.Retention,
		SummaryWeekday:  weekday,
		SummaryHour:     hour,
		SummaryMinute:   minute,
		BroadcastChatID: cfg.Telegram.BroadcastChatID,
		RecentLimit:     cfg.History.RecentLimit,
		SessionTTL:      cfg.Dialogue.SessionTTL,
	}, logger)
	if err := sched.RegisterAll(); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	if _, err := sched.RunPruneNow(); err != nil {
		logger.Error("initial prune", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	if summaryNow {
		logger.Info("--summary-now set, sending weekly summary")
		go func() {
			if err := sched.RunSummaryNow(); err != nil {
				logger.Error("summary now", zap.Error(err))
			}
		}()
	}

	// Status API
	var api *httpapi.Server
	if cfg.HTTP.Listen != "" {
		api = httpapi.NewServer(store, registry, logger)
		if err := api.Start(cfg.HTTP.Listen); err != nil {
			return fmt.Errorf("start status api: %w", err)
		}
	}

	// Start Telegram polling
	polling := make(chan struct{})
	go func() {
		defer close(polling)
		tn.StartPolling(ctx, router.HandleUpdate)
	}()

	logger.Info("FamilyPoints is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping...")
	cancel()
	<-polling
	if api != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := api.Stop(shutdownCtx); err != nil {
			logger.Warn("status api shutdown", zap.Error(err))
		}
	}
	logger.Info("FamilyPoints stopped")
	return nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
