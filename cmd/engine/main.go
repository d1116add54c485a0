package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/adpilot/internal/config"
	"github.com/ignite/adpilot/internal/notify"
	"github.com/ignite/adpilot/internal/pkg/distlock"
	"github.com/ignite/adpilot/internal/pkg/logger"
	"github.com/ignite/adpilot/internal/platform"
	"github.com/ignite/adpilot/internal/reenable"
	"github.com/ignite/adpilot/internal/repository/postgres"
	"github.com/ignite/adpilot/internal/revenue"
	"github.com/ignite/adpilot/internal/scaling"
	"github.com/ignite/adpilot/internal/scheduler"
	"github.com/ignite/adpilot/internal/suppression"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err.Error())
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		logger.Error("database unreachable", "error", err.Error())
		os.Exit(1)
	}
	cancelPing()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, task registry runs on the database alone",
				"addr", cfg.Redis.Addr, "error", err.Error())
			redisClient = nil
		}
		cancel()
	}

	client := platform.NewHTTPClient(cfg.Platform.BaseURL, cfg.Platform.Timeout())
	stats := platform.NewStatsFetcher(client, platform.StatsFetcherConfig{
		BatchSize:  cfg.Platform.StatsBatchSize,
		BatchDelay: time.Duration(cfg.Platform.StatsBatchDelayMS) * time.Millisecond,
		MaxRetries: cfg.Platform.StatsMaxRetries,
		RetryDelay: time.Duration(cfg.Platform.StatsRetryDelayMS) * time.Millisecond,
	})

	var rev revenue.Provider
	if cfg.Leadstech.Enabled {
		rev = revenue.NewLeadstechClient(revenue.LeadstechConfig{
			BaseURL: cfg.Leadstech.BaseURL,
			APIKey:  cfg.Leadstech.APIKey,
		})
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.Enabled {
		notifier = notify.NewTelegram(notify.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
		})
	}

	ruleRepo := postgres.NewRuleRepo(db)
	configRepo := postgres.NewConfigRepo(db)
	accountRepo := postgres.NewAccountRepo(db)
	taskRepo := postgres.NewTaskRepo(db)
	logRepo := postgres.NewLogRepo(db)
	actionRepo := postgres.NewActionRepo(db)
	processRepo := postgres.NewProcessRepo(db)

	registry := scaling.NewRegistry(processRepo, redisClient)
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := registry.Recover(startupCtx); err != nil {
		cancelStartup()
		logger.Error("task registry recovery failed", "error", err.Error())
		os.Exit(1)
	}
	cancelStartup()

	classifier := scaling.NewClassifier(client, stats, rev)
	orch := scaling.NewOrchestrator(client, taskRepo, logRepo, registry, notifier)
	dup := scaling.NewDuplicator(client, taskRepo, logRepo, registry, notifier)
	service := scaling.NewService(classifier, orch, dup, taskRepo, registry, accountRepo)

	suppressor := suppression.NewEngine(client, stats, rev, ruleRepo, actionRepo, notifier, cfg.Engine.DryRun)
	analyzer := reenable.NewAnalyzer(client, stats, rev, ruleRepo, actionRepo, notifier, cfg.Engine.DryRun)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		locks := func(key string) distlock.DistLock {
			return distlock.NewLock(redisClient, db, key, time.Hour)
		}
		sched = scheduler.New(configRepo, service, locks, cfg.Scheduler.TickInterval())
		sched.Start()
	}

	logger.Info("engine started",
		"dry_run", cfg.Engine.DryRun,
		"scheduler", cfg.Scheduler.Enabled,
		"leadstech", cfg.Leadstech.Enabled)

	runCtx, cancelRuns := context.WithCancel(context.Background())
	go runPasses(runCtx, cfg, accountRepo, suppressor, analyzer)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("shutting down")
	cancelRuns()
	if sched != nil {
		sched.Stop()
	}
	logger.Info("engine stopped")
}

// runPasses executes the suppression and re-enable passes on a fixed cadence.
// Scaling runs are driven separately by the scheduler.
func runPasses(ctx context.Context, cfg *config.Config, accounts scaling.AccountSource, suppressor *suppression.Engine, analyzer *reenable.Analyzer) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		runOnce(ctx, cfg, accounts, suppressor, analyzer)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, cfg *config.Config, accounts scaling.AccountSource, suppressor *suppression.Engine, analyzer *reenable.Analyzer) {
	list, err := accounts.ListAccounts(ctx)
	if err != nil {
		logger.Error("failed to list accounts", "error", err.Error())
		return
	}
	window := platform.LastDays(cfg.Engine.LookbackDays)

	if _, err := suppressor.Run(ctx, list, window); err != nil {
		logger.Error("suppression pass failed", "error", err.Error())
	}

	since := time.Now().UTC().Add(-time.Duration(cfg.Engine.ReenableLookbackHours) * time.Hour)
	if _, err := analyzer.ReenableByRules(ctx, list, window, since); err != nil {
		logger.Error("re-enable pass failed", "error", err.Error())
	}
	if cfg.Leadstech.Enabled {
		if _, err := analyzer.ReenableByROI(ctx, list, window, cfg.Engine.ReenableROIThreshold); err != nil {
			logger.Error("roi re-enable pass failed", "error", err.Error())
		}
	}
}
