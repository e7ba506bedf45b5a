package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/app"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	zl.Info("calendar-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Int("days_ahead", cfg.Scheduling.ReconcileDays),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(rootCtx, "clinic-calendar-worker", cfg, zl)
	if err != nil {
		zl.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()
	if a.Redis == nil {
		zl.Warn("no shared calendar configured, reconciliation only affects this process")
	}

	// Run once at startup
	runOnce(rootCtx, a.Service, cfg, zl)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			zl.Info("shutdown signal received, stopping calendar worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, a.Service, cfg, zl)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, cfg config.Config, zl *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, cfg.WorkerInterval)
	defer cancel()

	start := time.Now()
	from := start.In(cfg.Scheduling.Location)
	to := from.AddDate(0, 0, cfg.Scheduling.ReconcileDays)

	report, err := svc.ReconcileCalendar(runCtx, from, to)
	if err != nil {
		zl.Error("reconcile run failed", zap.Error(err))
		return
	}

	zl.Info("reconcile run complete",
		zap.Int("practitioners", report.Practitioners),
		zap.Int("days", report.Days),
		zap.Int("added", report.Added),
		zap.Int("removed", report.Removed),
		zap.Duration("took", time.Since(start)),
	)
}
