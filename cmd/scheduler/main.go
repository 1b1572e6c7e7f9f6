package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segyhp/amortization-engine/internal/amortization"
	"github.com/segyhp/amortization-engine/internal/config"
	"github.com/segyhp/amortization-engine/internal/lock"
	"github.com/segyhp/amortization-engine/internal/metrics"
	"github.com/segyhp/amortization-engine/internal/repository"
	"github.com/segyhp/amortization-engine/internal/service"
)

// overdueSweeper is the part of the loan service the scheduler drives
type overdueSweeper interface {
	SweepOverdue(ctx context.Context, asOf time.Time) (service.SweepResult, error)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogger(cfg)
	log.Info().Msg("starting overdue scheduler")

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	redisClient, err := initRedis(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis")
	}
	defer redisClient.Close()

	m := metrics.New()
	loanService := service.NewLoanService(
		repository.NewLoanRepository(db),
		repository.NewLedgerRepository(db),
		service.NewRedisCache(redisClient),
		lock.NewRedisLocker(redisClient, cfg.Engine.LoanLockTTL),
		amortization.NewEngine(cfg.EngineOptions()),
		m,
		cfg.Redis.CacheTTL,
	)

	// Initialize cron scheduler
	location := cfg.GetSchedulerLocation()
	c := cron.New(cron.WithSeconds(), cron.WithLocation(location))

	if err := setupCronJobs(c, cfg, loanService, location); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule jobs")
	}

	// Gauges set by the sweep are scraped from here
	metricsServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Scheduler.MetricsPort,
		Handler:      metricsMux(cfg.Metrics.Path, m),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	// Start the scheduler
	c.Start()
	log.Info().Str("cron", cfg.Scheduler.OverdueSweepCron).Str("timezone", location.String()).Msg("scheduler started")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down scheduler")
	// Stop returns a context that is done once running jobs finish
	<-c.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("metrics server forced to shutdown")
	}
	log.Info().Msg("scheduler stopped")
}

func setupCronJobs(c *cron.Cron, cfg *config.Config, sweeper overdueSweeper, location *time.Location) error {
	_, err := c.AddFunc(cfg.Scheduler.OverdueSweepCron, func() {
		runOverdueSweep(context.Background(), sweeper, time.Now().In(location))
	})
	return err
}

func runOverdueSweep(ctx context.Context, sweeper overdueSweeper, asOf time.Time) {
	start := time.Now()
	result, err := sweeper.SweepOverdue(ctx, asOf)
	if err != nil {
		log.Error().Err(err).Time("as_of", asOf).Msg("overdue sweep failed")
		return
	}

	log.Info().
		Time("as_of", asOf).
		Int("loans_scanned", result.LoansScanned).
		Int("overdue_loans", result.OverdueLoans).
		Int("overdue_installments", result.OverdueInstallments).
		Dur("duration", time.Since(start)).
		Msg("overdue sweep finished")
}

func metricsMux(path string, m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return mux
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "console" || cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "amortization-scheduler").Logger()
}

func initRedis(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}), nil
}
