package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/pricescope/backend/internal/config"
	"github.com/pricescope/backend/internal/email"
	"github.com/pricescope/backend/internal/logger"
	"github.com/pricescope/backend/internal/repository"
	"github.com/pricescope/backend/internal/scheduler"
	"github.com/pricescope/backend/internal/scraper"
	"github.com/pricescope/backend/internal/scraper/browser"
	"github.com/pricescope/backend/internal/service"
)

func main() {
	cfg := config.Load()
	slogger := logger.Logger()

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = db.Close() }()

	pool, err := browser.NewPool(browser.Config{
		MaxPages:    cfg.Scraper.MaxPages,
		PageTimeout: cfg.Scraper.PageTimeout,
		Headless:    cfg.Scraper.Headless,
	}, slogger)
	if err != nil {
		log.Fatalf("Failed to launch browser pool: %v", err)
	}
	defer func() { _ = pool.Close() }()

	// Repositories
	jobRepo := repository.NewJobRepository(db)
	toolRepo := repository.NewToolRepository(db)
	historyRepo := repository.NewPricingHistoryRepository(db)
	changeRepo := repository.NewPriceChangeRepository(db)
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Outbound email: real API sender in production, log sink otherwise
	var sender email.Sender
	if cfg.Email.Enabled {
		sender = email.NewAPISender(cfg.Email.APIURL, cfg.Email.APIKey, cfg.Email.From, slogger)
	} else {
		sender = email.NewLogSender(slogger)
	}

	// Services
	fetcher := scraper.NewFetcher(pool)
	runner := service.NewJobRunner(jobRepo, toolRepo, historyRepo, fetcher, service.RunnerConfig{
		JobTimeout: cfg.Scraper.JobTimeout,
		Workers:    cfg.Scraper.Workers,
		MinDelay:   service.DefaultRunnerConfig().MinDelay,
		MaxDelay:   service.DefaultRunnerConfig().MaxDelay,
	}, slogger)
	detector := service.NewChangeDetector(historyRepo, changeRepo, slogger)
	notifier := service.NewNotificationService(userRepo, toolRepo, notificationRepo, changeRepo, sender, slogger)

	sched := scheduler.New(cfg.Scheduler, runner, detector, notifier, toolRepo, jobRepo, cfg.Scraper.BatchSize, slogger)
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	slogger.Info("price monitor started",
		slog.String("env", cfg.Env),
		slog.Bool("email_enabled", cfg.Email.Enabled),
		slog.Int("workers", cfg.Scraper.Workers),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogger.Info("shutting down")
	<-sched.Stop().Done()
	slogger.Info("shutdown complete")
}
