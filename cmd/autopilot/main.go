package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sp500-autopilot/internal/analysis"
	"sp500-autopilot/internal/broker"
	"sp500-autopilot/internal/config"
	"sp500-autopilot/internal/coordinator"
	"sp500-autopilot/internal/model"
	"sp500-autopilot/internal/notifier"
	"sp500-autopilot/internal/recorder"
	"sp500-autopilot/internal/settings"
)

func main() {
	_ = godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Info().Msg("sp500-autopilot starting")

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}

	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Persisted runtime settings, seeded from config on first run.
	sm, err := settings.NewManager(cfg.Settings.StateFile, settings.State{
		Schedules: []model.ScheduleEntry{
			{Name: model.TriggerBulkAnalysis, Enabled: cfg.Schedule.BulkEnabled, TimeOfDay: cfg.Schedule.BulkTime},
			{Name: model.TriggerFinalistAnalysis, Enabled: cfg.Schedule.FinalistEnabled, TimeOfDay: cfg.Schedule.FinalistTime},
			{Name: model.TriggerAutoBuy, Enabled: cfg.Schedule.AutoBuyEnabled, TimeOfDay: cfg.Trading.AutoBuyTime},
			{Name: model.TriggerAutoThreshold, Enabled: cfg.Schedule.ThresholdEnabled, TimeOfDay: cfg.Schedule.ThresholdTime},
		},
		Trading: model.TradingConfig{
			AutoBuyTime:       cfg.Trading.AutoBuyTime,
			AutoSellTime:      cfg.Trading.AutoSellTime,
			InvestmentPercent: cfg.Trading.InvestmentPercent,
			TakeProfitPercent: cfg.Trading.TakeProfitPercent,
			StopLossPercent:   cfg.Trading.StopLossPercent,
			InitialAmount:     cfg.Trading.InitialAmount,
			Currency:          cfg.Trading.Currency,
		},
		Threshold: model.CycleConfig{
			Enabled:            cfg.Threshold.Enabled,
			TargetScore:        cfg.Threshold.TargetScore,
			MaxCycles:          cfg.Threshold.MaxCycles,
			DelayBetweenCycles: cfg.Threshold.DelayBetweenCycles,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init settings manager")
	}

	an := analysis.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Proxy)
	br := broker.NewClient(cfg.Broker.BaseURL, cfg.Broker.KeyID, cfg.Broker.SecretKey, cfg.Proxy, cfg.Broker.RateLimit)
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)

	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := coordinator.New(ctx, time.Now, sm, an, br, tn, rec)
	coord.Bootstrap()

	cr := cron.New(cron.WithSeconds())
	if err := coord.RegisterJobs(cr); err != nil {
		log.Fatal().Err(err).Msg("register cron jobs")
	}
	cr.Start()
	defer cr.Stop()

	go tn.StartPolling(ctx, coord.HandleCommand)
	log.Info().Msg("telegram polling started")

	log.Info().Msg("sp500-autopilot is running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping")
	cancel()
	log.Info().Msg("sp500-autopilot stopped")
}
