package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/olegsm/retaildesk/internal/adapters/clickhouse"
	"github.com/olegsm/retaildesk/internal/adapters/config"
	"github.com/olegsm/retaildesk/internal/adapters/database"
	redisAdapter "github.com/olegsm/retaildesk/internal/adapters/redis"
	"github.com/olegsm/retaildesk/internal/adapters/telegram"
	"github.com/olegsm/retaildesk/internal/dashboard"
	"github.com/olegsm/retaildesk/internal/forecasts"
	"github.com/olegsm/retaildesk/internal/health"
	"github.com/olegsm/retaildesk/internal/ingest"
	"github.com/olegsm/retaildesk/internal/queries"
	"github.com/olegsm/retaildesk/internal/realtime"
	"github.com/olegsm/retaildesk/internal/stocksync"
	"github.com/olegsm/retaildesk/internal/workers"
	"github.com/olegsm/retaildesk/pkg/logger"
	"github.com/olegsm/retaildesk/pkg/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("stock-signal sync service starting",
		zap.Duration("interval", cfg.Sync.Interval),
		zap.Int("lookback_minutes", cfg.Sync.LookbackMinutes),
	)

	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(db.Conn(), cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Redis is a read-cache accelerator only; run without it if unavailable
	redisClient, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		logger.Warn("redis not available, dashboard cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	recorder := initMetrics(cfg)
	if recorder != nil {
		defer recorder.Close()
	}

	hub := realtime.NewHub()
	go hub.Run(ctx)

	queryRepo := queries.NewRepository(db.DB())
	forecastRepo := forecasts.NewRepository(db.DB())

	orch := stocksync.NewOrchestrator(queryRepo, forecastRepo, stocksync.Options{
		LookbackMinutes: cfg.Sync.LookbackMinutes,
		AlertThreshold:  cfg.Sync.AlertThreshold,
		Sink:            initAlertSink(cfg, hub),
	})

	// Stock-tagged writes schedule an extra run between scheduled ticks
	trigger := stocksync.NewTrigger(orch)
	trigger.Start(ctx)

	var runRecorder workers.RunRecorder
	if recorder != nil {
		runRecorder = recorder
	}

	group := worker.NewGroup(ctx,
		worker.NewPeriodic(workers.NewSyncWorker(orch, runRecorder), cfg.Sync.Interval),
	)
	group.Start()

	var cache dashboard.Cache
	if redisClient != nil {
		cache = redisClient
	}
	dashboards := dashboard.NewService(queryRepo, forecastRepo, cache)
	writePath := ingest.NewService(queryRepo, trigger, dashboards)

	opsServer := health.NewServer(cfg.Health.Port, db, redisClient, hub, dashboards, writePath, forecastRepo)
	opsServer.Start()
	opsServer.SetReady(true)

	<-ctx.Done()
	logger.Info("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	opsServer.SetReady(false)
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown failed", zap.Error(err))
	}

	group.Stop(10 * time.Second)
	trigger.Stop(10 * time.Second)

	return nil
}

// initAlertSink builds the alert fan-out: the realtime feed always gets the
// batch, telegram joins when configured, and with nothing else available the
// orchestrator's per-alert logging covers it.
func initAlertSink(cfg *config.Config, hub *realtime.Hub) stocksync.AlertSink {
	sinks := stocksync.FanoutSink{realtime.NewAlertSink(hub)}

	if cfg.Telegram.BotToken != "" {
		notifier, err := telegram.NewNotifier(&cfg.Telegram)
		if err != nil {
			logger.Error("failed to create telegram notifier", zap.Error(err))
		} else {
			sinks = append(sinks, notifier)
		}
	}

	sinks = append(sinks, stocksync.LogSink{})
	return sinks
}

// initMetrics connects the optional clickhouse run-metrics recorder
func initMetrics(cfg *config.Config) *clickhouse.MetricsRecorder {
	if !cfg.ClickHouse.Enabled {
		return nil
	}

	chDB, err := clickhouse.Connect(&cfg.ClickHouse)
	if err != nil {
		logger.Warn("clickhouse not available, run metrics disabled", zap.Error(err))
		return nil
	}

	return clickhouse.NewMetricsRecorder(chDB, 50, 15*time.Second)
}
