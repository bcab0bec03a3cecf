package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/odyssey-access/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-access/internal/jobs"
	"github.com/odyssey-erp/odyssey-access/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	_ = godotenv.Load()
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg).With("process", "worker")
	if cfg.AppStore != app.StorePostgres {
		logger.Warn("in-memory store: expiry only sees associations created by this process")
	}

	rt, err := app.OpenRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("open runtime", slog.Any("error", err))
		return 1
	}
	defer rt.Close()

	ledger := app.BuildServices(rt.Deps).Ledger
	metrics := rt.Deps.Metrics
	expire := jobs.NewExpireJob(ledger, logger.With("job", jobs.TaskAssociationsExpire), jobmetrics.NewMetrics(metrics.Registerer()))
	if cfg.WorkerMetricsAddr != "" {
		srv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// A zero evaluation instant lets each cron firing use the worker clock.
	sweep, err := jobs.NewExpireTask(time.Time{})
	if err != nil {
		logger.Error("build expire task", slog.Any("error", err))
		return 1
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: app.RedisOptions(cfg).AsynqOpt(),
		Logger:    logger,
		Handlers:  []jobs.TaskHandler{{Type: jobs.TaskAssociationsExpire, Handler: expire.Handle}},
		Cron: []jobs.CronRegistration{{
			Spec:    cfg.ExpireCron,
			Task:    sweep,
			Options: []asynq.Option{asynq.Unique(time.Minute)},
		}},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		return 1
	}

	logger.Info("worker started", slog.String("expire_cron", cfg.ExpireCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		return 1
	}
	return 0
}
