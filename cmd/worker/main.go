package main

import (
	"context"
	"os/signal"
	"syscall"

	"cadence/config"
	"cadence/internal/app"
	"cadence/internal/jobs"
	"cadence/internal/logger"

	"go.uber.org/zap"
)

// The worker process runs the queue workers and the daily scheduler. Events
// emitted by job handlers still reach the listeners, minus the realtime ones.
func main() {
	cfg := config.Load()
	log := logger.Must(cfg.Server.Env, cfg.Log.Level).Named("worker")
	defer log.Sync()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	a.RegisterListeners(nil)

	pool := a.StartWorkers(context.Background())
	var sched *jobs.Scheduler
	if cfg.Queue.SchedulerEnabled {
		sched = jobs.NewScheduler(a.Queue, cfg.Queue.ReminderHour, log)
		sched.Start(ctx)
	}
	log.Info("workers started")

	<-ctx.Done()
	log.Info("shutting down")
	if sched != nil {
		sched.Stop()
	}
	pool.Close()
	a.Close()
	log.Info("worker stopped")
}
