package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tripmate/points-ledger/internal/api"
	"github.com/tripmate/points-ledger/internal/api/handlers"
	"github.com/tripmate/points-ledger/internal/auth"
	"github.com/tripmate/points-ledger/internal/config"
	"github.com/tripmate/points-ledger/internal/db"
	"github.com/tripmate/points-ledger/internal/jobs"
	"github.com/tripmate/points-ledger/internal/logger"
	"github.com/tripmate/points-ledger/internal/metrics"
	"github.com/tripmate/points-ledger/internal/middleware"
	"github.com/tripmate/points-ledger/internal/repository/postgres"
	"github.com/tripmate/points-ledger/internal/services"
	"github.com/tripmate/points-ledger/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if os.Getenv("APP_MIGRATE") == "true" {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	metrics.Init()

	repos := postgres.NewRepositories(pool)
	wp := worker.NewPool(cfg.Workers)
	defer wp.Stop()

	tm := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTIssuer, 15*time.Minute, 7*24*time.Hour)

	userSvc := services.NewUserService(repos.Users, tm)
	ledgerSvc := services.NewLedgerService(repos.Ledger, repos.Balances, repos.Transactions, repos.AuditLogs)
	rankSvc := services.NewRankingService(repos.Balances, repos.AuditLogs)

	cronJobs, err := jobs.Schedule(cfg, wp, rankSvc)
	if err != nil {
		log.Error("cron schedule", "err", err)
		os.Exit(1)
	}
	defer cronJobs.Stop()

	r := api.NewRouter(api.RouterDeps{
		Cfg:     cfg,
		Auth:    handlers.NewAuthHandler(userSvc),
		AuthMW:  middleware.NewAuthMiddleware(tm),
		Ledger:  ledgerSvc,
		Ranking: rankSvc,
		Users:   userSvc,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
